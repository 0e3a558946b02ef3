package paymentlinks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/internal/bookings/bookingstest"
	"github.com/fabrevive/pickup-payments/internal/ledger"
	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/db/models"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

type fakeClients struct {
	store      bookings.Repository
	gateway    Gateway
	storeErr   error
	gatewayErr error
}

func (f *fakeClients) Store(context.Context) (bookings.Repository, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return f.store, nil
}

func (f *fakeClients) Gateway(context.Context) (Gateway, error) {
	if f.gatewayErr != nil {
		return nil, f.gatewayErr
	}
	return f.gateway, nil
}

type fakeGateway struct {
	requests []razorpay.PaymentLinkRequest
	errs     []error
	link     *razorpay.PaymentLink
	latency  time.Duration
}

func (f *fakeGateway) CreatePaymentLink(ctx context.Context, req razorpay.PaymentLinkRequest) (*razorpay.PaymentLink, error) {
	f.requests = append(f.requests, req)
	if f.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, ctx.Err(), "RAZORPAY: request timed out")
		case <-time.After(f.latency):
		}
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.link != nil {
		return f.link, nil
	}
	return &razorpay.PaymentLink{ID: "plink_123", ShortURL: "https://rzp.io/i/abc", URL: "https://razorpay.com/pl/abc"}, nil
}

type memoryCache struct {
	links map[string]*razorpay.PaymentLink
}

func (m *memoryCache) Lookup(_ context.Context, key string) (*razorpay.PaymentLink, error) {
	return m.links[key], nil
}

func (m *memoryCache) Remember(_ context.Context, key string, link *razorpay.PaymentLink) error {
	m.links[key] = link
	return nil
}

type recordingCompensator struct {
	docID string
	patch bookings.Patch
	err   error
}

func (r *recordingCompensator) PublishMerge(_ context.Context, docID string, patch bookings.Patch) error {
	r.docID = docID
	r.patch = patch
	return r.err
}

type recordingLedger struct {
	events []ledger.RecordEventInput
}

func (r *recordingLedger) Record(_ context.Context, input ledger.RecordEventInput) {
	r.events = append(r.events, input)
}

type refusedErr struct{}

func (refusedErr) Error() string   { return "dial tcp: connection refused" }
func (refusedErr) Timeout() bool   { return false }
func (refusedErr) Temporary() bool { return true }

type harness struct {
	svc         *Service
	store       *bookingstest.Store
	gateway     *fakeGateway
	clients     *fakeClients
	cache       *memoryCache
	compensator *recordingCompensator
	ledger      *recordingLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:       bookingstest.New(nil),
		gateway:     &fakeGateway{},
		cache:       &memoryCache{links: map[string]*razorpay.PaymentLink{}},
		compensator: &recordingCompensator{},
		ledger:      &recordingLedger{},
	}
	h.clients = &fakeClients{store: h.store, gateway: h.gateway}
	svc, err := NewService(ServiceParams{
		Clients: h.clients,
		Payment: config.PaymentConfig{
			Currency:          "INR",
			DescriptionPrefix: "Fab Revive Laundry",
		},
		GatewayPolicy: resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond},
		Cache:         h.cache,
		Compensator:   h.compensator,
		Ledger:        h.ledger,
		Logger:        logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func deliveredBooking(docID string) bookings.Booking {
	return bookings.Booking{
		DocID:             docID,
		Status:            " Delivered ",
		PickupTotalAmount: "250.50",
		TotalAmount:       999.0,
		CustomerName:      "  Asha  ",
		CustomerMobile:    "+91 98765-43210",
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code, message string) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
	if message != "" && typed.Message() != message {
		t.Fatalf("expected message %q, got %q", message, typed.Message())
	}
}

func TestIssueCreatesLinkAndMarksPending(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("booking-1"))

	res, err := h.svc.Issue(context.Background(), " booking-1 ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if res.LinkURL != "https://rzp.io/i/abc" || res.CustomerName != "Asha" || res.CustomerMobile != "919876543210" || res.Amount != 250.50 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(h.gateway.requests) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(h.gateway.requests))
	}
	req := h.gateway.requests[0]
	if req.AmountMinor != 25050 || req.Currency != "INR" || req.ReferenceID != "pickup:booking-1" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Description != "Fab Revive Laundry - pickup:booking-1" {
		t.Fatalf("unexpected description %q", req.Description)
	}
	if req.Notes["source"] != "pickup" || req.Notes["docId"] != "booking-1" || req.Notes["idempotency_key"] != "pickup:booking-1:25050" {
		t.Fatalf("unexpected notes %+v", req.Notes)
	}
	if req.Customer.Name != "Asha" || req.Customer.Contact != "919876543210" {
		t.Fatalf("unexpected customer %+v", req.Customer)
	}

	stored, _ := h.store.Snapshot("booking-1")
	if stored.PaymentStatus != bookings.PaymentStatusPending {
		t.Fatalf("expected Pending, got %q", stored.PaymentStatus)
	}
	if stored.Gateway == nil || stored.Gateway.LinkID != "plink_123" || stored.Gateway.LinkURL != "https://rzp.io/i/abc" || stored.Gateway.RecordedAmount != 250.50 {
		t.Fatalf("unexpected linkage %+v", stored.Gateway)
	}
	if stored.CashStatus != "" || stored.PaidAt != nil {
		t.Fatalf("issuance must not touch cash status or paidAt: %+v", stored)
	}

	if len(h.ledger.events) != 1 || h.ledger.events[0].Kind != models.PaymentEventLinkIssued || h.ledger.events[0].AmountMinor != 25050 {
		t.Fatalf("unexpected ledger events %+v", h.ledger.events)
	}
	if h.cache.links["pickup:booking-1:25050"] == nil {
		t.Fatalf("expected link to be cached")
	}
}

func TestIssueRejections(t *testing.T) {
	cases := []struct {
		name    string
		docID   string
		booking *bookings.Booking
		setup   func(*harness)
		code    pkgerrors.Code
		message string
	}{
		{name: "empty doc id", docID: "  ", code: pkgerrors.CodeValidation, message: "docId is required"},
		{
			name:    "missing booking",
			docID:   "ghost",
			code:    pkgerrors.CodeNotFound,
			message: "booking not found",
		},
		{
			name:    "not delivered",
			docID:   "b",
			booking: &bookings.Booking{DocID: "b", Status: "picked_up", TotalAmount: 10.0},
			code:    pkgerrors.CodeValidation,
			message: "invalid status: picked_up",
		},
		{
			name:    "pickup amount invalid does not fall back",
			docID:   "b",
			booking: &bookings.Booking{DocID: "b", Status: "delivered", PickupTotalAmount: "abc", TotalAmount: 10.0},
			code:    pkgerrors.CodeValidation,
			message: "invalid amount (pickupDetails.totalAmount or totalAmount)",
		},
		{
			name:    "zero amount",
			docID:   "b",
			booking: &bookings.Booking{DocID: "b", Status: "delivered", TotalAmount: 0.0},
			code:    pkgerrors.CodeValidation,
			message: "invalid amount (pickupDetails.totalAmount or totalAmount)",
		},
		{
			name:    "amount rounds to nothing",
			docID:   "b",
			booking: &bookings.Booking{DocID: "b", Status: "delivered", TotalAmount: 0.004},
			code:    pkgerrors.CodeValidation,
			message: "invalid amount (pickupDetails.totalAmount or totalAmount)",
		},
		{
			name:    "already paid",
			docID:   "b",
			booking: &bookings.Booking{DocID: "b", Status: "delivered", TotalAmount: 10.0, PaymentStatus: bookings.PaymentStatusPaid},
			code:    pkgerrors.CodeValidation,
			message: "booking already paid",
		},
		{
			name:  "store misconfigured",
			docID: "b",
			setup: func(h *harness) {
				h.clients.storeErr = pkgerrors.New(pkgerrors.CodeMisconfigured, "SERVER_MISCONFIG: missing store credentials (PICKUP_GCP_CREDENTIALS_JSON)")
			},
			code:    pkgerrors.CodeMisconfigured,
			message: "SERVER_MISCONFIG: missing store credentials (PICKUP_GCP_CREDENTIALS_JSON)",
		},
		{
			name:  "gateway misconfigured",
			docID: "b",
			setup: func(h *harness) {
				h.clients.gatewayErr = pkgerrors.New(pkgerrors.CodeMisconfigured, "SERVER_MISCONFIG: missing PICKUP_RAZORPAY_KEY_SECRET")
			},
			code:    pkgerrors.CodeMisconfigured,
			message: "SERVER_MISCONFIG: missing PICKUP_RAZORPAY_KEY_SECRET",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.booking != nil {
				h.store.Put(*tc.booking)
			}
			if tc.setup != nil {
				tc.setup(h)
			}
			_, err := h.svc.Issue(context.Background(), tc.docID)
			assertCode(t, err, tc.code, tc.message)
			if len(h.gateway.requests) != 0 {
				t.Fatalf("gateway must not be called")
			}
			if len(h.store.Merges) != 0 {
				t.Fatalf("store must not be written")
			}
		})
	}
}

func TestIssueGatewayFailureLeavesBookingUntouched(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.gateway.errs = []error{pkgerrors.New(pkgerrors.CodeGateway, "RAZORPAY: The amount must be atleast INR 1.00")}

	_, err := h.svc.Issue(context.Background(), "b")
	assertCode(t, err, pkgerrors.CodeGateway, "RAZORPAY: The amount must be atleast INR 1.00")
	if len(h.gateway.requests) != 1 {
		t.Fatalf("non-transient failure must not be retried, got %d calls", len(h.gateway.requests))
	}
	if len(h.store.Merges) != 0 {
		t.Fatalf("store must not be written on gateway failure")
	}
}

func TestIssueRetriesTransientGatewayFailure(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.gateway.errs = []error{pkgerrors.Wrap(pkgerrors.CodeGateway, refusedErr{}, "RAZORPAY: connection refused")}

	if _, err := h.svc.Issue(context.Background(), "b"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(h.gateway.requests) != 2 {
		t.Fatalf("expected two gateway calls, got %d", len(h.gateway.requests))
	}
}

func TestIssueDoesNotRetryTimedOutCreate(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.gateway.latency = 50 * time.Millisecond
	h.svc.gatewayPolicy = resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}

	_, err := h.svc.Issue(context.Background(), "b")
	assertCode(t, err, pkgerrors.CodeGateway, "RAZORPAY: request timed out")
	if len(h.gateway.requests) != 1 {
		t.Fatalf("a timed out create must not be repeated, got %d calls", len(h.gateway.requests))
	}
	if len(h.store.Merges) != 0 {
		t.Fatalf("store must not be written on gateway failure")
	}
}

func TestIssueDoesNotRevertBookingPaidDuringCreate(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	paidAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h.store.BeforeMerge = func(docID string) {
		paid := deliveredBooking(docID)
		paid.PaymentStatus = bookings.PaymentStatusPaid
		paid.CashStatus = bookings.CashStatusReceived
		paid.PaidAt = &paidAt
		h.store.Put(paid)
	}

	if _, err := h.svc.Issue(context.Background(), "b"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	stored, _ := h.store.Snapshot("b")
	if !stored.IsPaid() || stored.CashStatus != bookings.CashStatusReceived || !stored.PaidAt.Equal(paidAt) {
		t.Fatalf("webhook payment was overwritten: %+v", stored)
	}
	if stored.Gateway != nil {
		t.Fatalf("pending linkage should not land on a paid booking: %+v", stored.Gateway)
	}
	if h.compensator.docID != "" {
		t.Fatalf("a skipped merge is not a failure, got compensation for %q", h.compensator.docID)
	}
}

func TestIssueUntypedGatewayErrorIsWrapped(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.gateway.errs = []error{errors.New("boom")}

	_, err := h.svc.Issue(context.Background(), "b")
	assertCode(t, err, pkgerrors.CodeGateway, "RAZORPAY: boom")
}

func TestIssueMergeFailurePublishesCompensation(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.store.MergeErrs = []error{pkgerrors.New(pkgerrors.CodeInternal, "merge booking")}

	_, err := h.svc.Issue(context.Background(), "b")
	assertCode(t, err, pkgerrors.CodeInternal, "payment link created but booking update failed")

	if h.compensator.docID != "b" {
		t.Fatalf("expected compensation for b, got %q", h.compensator.docID)
	}
	if h.compensator.patch.PaymentStatus != bookings.PaymentStatusPending || h.compensator.patch.Gateway == nil || h.compensator.patch.Gateway.LinkID != "plink_123" {
		t.Fatalf("unexpected compensation patch %+v", h.compensator.patch)
	}
	if len(h.ledger.events) != 0 {
		t.Fatalf("failed issuance must not be recorded")
	}

	// A client retry reuses the cached link and converges.
	res, err := h.svc.Issue(context.Background(), "b")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.LinkURL != "https://rzp.io/i/abc" || len(h.gateway.requests) != 1 {
		t.Fatalf("expected cached link reuse, got %+v after %d gateway calls", res, len(h.gateway.requests))
	}
}

func TestIssueCacheHitSkipsGateway(t *testing.T) {
	h := newHarness(t)
	h.store.Put(deliveredBooking("b"))
	h.cache.links[IdempotencyKey("b", 25050)] = &razorpay.PaymentLink{ID: "plink_old", URL: "https://razorpay.com/pl/old"}

	res, err := h.svc.Issue(context.Background(), "b")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(h.gateway.requests) != 0 {
		t.Fatalf("gateway must not be called on cache hit")
	}
	if res.LinkURL != "https://razorpay.com/pl/old" {
		t.Fatalf("unexpected link %q", res.LinkURL)
	}
	stored, _ := h.store.Snapshot("b")
	if stored.Gateway == nil || stored.Gateway.LinkID != "plink_old" {
		t.Fatalf("expected cached linkage to be merged, got %+v", stored.Gateway)
	}
}

func TestIssueWithoutOptionalCollaborators(t *testing.T) {
	store := bookingstest.New(nil)
	store.Put(deliveredBooking("b"))
	gateway := &fakeGateway{}
	svc, err := NewService(ServiceParams{
		Clients: &fakeClients{store: store, gateway: gateway},
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Issue(context.Background(), "b"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := gateway.requests[0]
	if req.Currency != "INR" || req.Description != "pickup:b" {
		t.Fatalf("unexpected defaults %+v", req)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := map[float64]int64{
		250.5:  25050,
		10.005: 1001,
		19.999: 2000,
		0.005:  1,
		0.004:  0,
		1:      100,
	}
	for amount, want := range cases {
		if got := MinorUnits(amount); got != want {
			t.Errorf("MinorUnits(%v) = %d, want %d", amount, got, want)
		}
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil || !strings.Contains(err.Error(), "clients") {
		t.Fatalf("expected clients error, got %v", err)
	}
	if _, err := NewService(ServiceParams{Clients: &fakeClients{}}); err == nil {
		t.Fatalf("expected logger error")
	}
}
