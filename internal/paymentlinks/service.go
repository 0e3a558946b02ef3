package paymentlinks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/internal/ledger"
	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/db/models"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/metrics"
	"github.com/fabrevive/pickup-payments/pkg/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

const (
	referencePrefix = "pickup:"
	noteSource      = "pickup"

	msgDocIDRequired = "docId is required"
	msgInvalidAmount = "invalid amount (pickupDetails.totalAmount or totalAmount)"
	msgAlreadyPaid   = "booking already paid"
	msgMergeFailed   = "payment link created but booking update failed"

	gatewayOperation = "create_payment_link"
)

// Compensator queues a booking merge that could not be applied inline.
type Compensator interface {
	PublishMerge(ctx context.Context, docID string, patch bookings.Patch) error
}

// EventRecorder writes audit events. Implementations must not block on failure.
type EventRecorder interface {
	Record(ctx context.Context, input ledger.RecordEventInput)
}

type ServiceParams struct {
	Clients       Clients
	Payment       config.PaymentConfig
	GatewayPolicy resilience.Policy
	Cache         LinkCache
	Compensator   Compensator
	Ledger        EventRecorder
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
}

type Service struct {
	clients       Clients
	payment       config.PaymentConfig
	gatewayPolicy resilience.Policy
	cache         LinkCache
	compensator   Compensator
	ledger        EventRecorder
	metrics       *metrics.PaymentMetrics
	logger        *logger.Logger
}

// IssueResult is what the caller gets back for a successful issuance.
type IssueResult struct {
	LinkURL        string
	CustomerName   string
	CustomerMobile string
	Amount         float64
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Clients == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "clients provider required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	currency := strings.TrimSpace(params.Payment.Currency)
	if currency == "" {
		params.Payment.Currency = "INR"
	}
	return &Service{
		clients:       params.Clients,
		payment:       params.Payment,
		gatewayPolicy: params.GatewayPolicy,
		cache:         params.Cache,
		compensator:   params.Compensator,
		ledger:        params.Ledger,
		metrics:       params.Metrics,
		logger:        params.Logger,
	}, nil
}

// ReferenceID is the gateway reference for a booking.
func ReferenceID(docID string) string {
	return referencePrefix + docID
}

// MinorUnits converts a major-unit amount to minor units, rounding half away from zero.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Issue creates (or reuses) a payment link for a delivered booking and records
// it on the booking as Pending.
func (s *Service) Issue(ctx context.Context, docID string) (*IssueResult, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, s.reject(pkgerrors.New(pkgerrors.CodeValidation, msgDocIDRequired))
	}
	ctx = s.logger.WithDocID(ctx, docID)

	store, err := s.clients.Store(ctx)
	if err != nil {
		return nil, s.reject(err)
	}
	gateway, err := s.clients.Gateway(ctx)
	if err != nil {
		return nil, s.reject(err)
	}

	booking, err := store.Get(ctx, docID)
	if err != nil {
		return nil, s.reject(err)
	}
	if !booking.IsChargeable() {
		return nil, s.reject(pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status: %s", booking.Status)))
	}
	amount, ok := booking.ResolveAmount()
	if !ok {
		return nil, s.reject(pkgerrors.New(pkgerrors.CodeValidation, msgInvalidAmount))
	}
	amountMinor := MinorUnits(amount)
	if amountMinor < 1 {
		return nil, s.reject(pkgerrors.New(pkgerrors.CodeValidation, msgInvalidAmount))
	}
	if booking.IsPaid() {
		return nil, s.reject(pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyPaid))
	}

	key := IdempotencyKey(docID, amountMinor)
	outcome := metrics.OutcomeCached
	link := s.cachedLink(ctx, key)
	if link == nil {
		outcome = metrics.OutcomeIssued
		link, err = s.createLink(ctx, gateway, s.buildRequest(docID, key, amountMinor, booking))
		if err != nil {
			s.metrics.IncLinkIssued(metrics.OutcomeFailed)
			return nil, err
		}
		s.rememberLink(ctx, key, link)
	}

	patch := bookings.PendingLinkPatch(bookings.GatewayLink{
		LinkID:         link.ID,
		LinkURL:        link.PreferredURL(),
		RecordedAmount: amount,
	})
	if err := store.MergeUpdate(ctx, docID, patch); err != nil {
		s.compensate(ctx, docID, patch, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, msgMergeFailed)
	}

	s.metrics.IncLinkIssued(outcome)
	if s.ledger != nil {
		s.ledger.Record(ctx, ledger.RecordEventInput{
			DocID:       docID,
			Kind:        models.PaymentEventLinkIssued,
			LinkID:      link.ID,
			AmountMinor: amountMinor,
		})
	}
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"link_id": link.ID,
		"outcome": outcome,
	}), "payment_link.issued")

	return &IssueResult{
		LinkURL:        link.PreferredURL(),
		CustomerName:   booking.DisplayName(),
		CustomerMobile: booking.ContactDigits(),
		Amount:         amount,
	}, nil
}

func (s *Service) buildRequest(docID, key string, amountMinor int64, booking *bookings.Booking) razorpay.PaymentLinkRequest {
	ref := ReferenceID(docID)
	description := ref
	if prefix := strings.TrimSpace(s.payment.DescriptionPrefix); prefix != "" {
		description = prefix + " - " + ref
	}
	return razorpay.PaymentLinkRequest{
		AmountMinor: amountMinor,
		Currency:    s.payment.Currency,
		ReferenceID: ref,
		Description: description,
		Notes: map[string]string{
			"source":          noteSource,
			"docId":           docID,
			"idempotency_key": key,
		},
		Customer: razorpay.Customer{
			Name:    booking.DisplayName(),
			Contact: booking.ContactDigits(),
		},
		CallbackURL: strings.TrimSpace(s.payment.CallbackURL),
	}
}

func (s *Service) createLink(ctx context.Context, gateway Gateway, req razorpay.PaymentLinkRequest) (*razorpay.PaymentLink, error) {
	var link *razorpay.PaymentLink
	start := time.Now()
	err := resilience.Do(ctx, s.gatewayPolicy, razorpay.IsTransient, func(ctx context.Context) error {
		var createErr error
		link, createErr = gateway.CreatePaymentLink(ctx, req)
		return createErr
	})
	if err != nil {
		s.metrics.ObserveGateway(gatewayOperation, metrics.OutcomeFailed, time.Since(start))
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "RAZORPAY: "+err.Error())
		}
		return nil, err
	}
	s.metrics.ObserveGateway(gatewayOperation, metrics.OutcomeSucceeded, time.Since(start))
	if link == nil || link.ID == "" || link.PreferredURL() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "RAZORPAY: response missing link id or url")
	}
	return link, nil
}

func (s *Service) cachedLink(ctx context.Context, key string) *razorpay.PaymentLink {
	if s.cache == nil {
		return nil
	}
	link, err := s.cache.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "payment_link.cache_read_failed")
		return nil
	}
	return link
}

func (s *Service) rememberLink(ctx context.Context, key string, link *razorpay.PaymentLink) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Remember(ctx, key, link); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "payment_link.cache_write_failed")
	}
}

func (s *Service) compensate(ctx context.Context, docID string, patch bookings.Patch, cause error) {
	s.logger.Error(ctx, "payment_link.merge_failed", cause)
	if s.compensator == nil {
		s.metrics.IncLinkIssued(metrics.OutcomeFailed)
		return
	}
	if err := s.compensator.PublishMerge(ctx, docID, patch); err != nil {
		s.logger.Error(ctx, "payment_link.compensation_publish_failed", err)
		s.metrics.IncLinkIssued(metrics.OutcomeFailed)
		return
	}
	s.metrics.IncLinkIssued(metrics.OutcomeCompensated)
}

func (s *Service) reject(err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		s.metrics.IncLinkIssued(metrics.OutcomeRejected)
	default:
		s.metrics.IncLinkIssued(metrics.OutcomeFailed)
	}
	return err
}
