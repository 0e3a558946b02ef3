package razorpaywebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/internal/ledger"
	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/db/models"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

// StoreSource hands out the booking store once its credentials check out.
type StoreSource interface {
	Store(ctx context.Context) (bookings.Repository, error)
}

// EventRecorder writes audit events without failing the caller.
type EventRecorder interface {
	Record(ctx context.Context, input ledger.RecordEventInput)
}

type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeReconciled Outcome = "reconciled"
)

// Result describes what a reconciliation did.
type Result struct {
	Outcome Outcome
	DocID   string
}

type ReconcilerParams struct {
	Stores       StoreSource
	PaidAtPolicy string
	Ledger       EventRecorder
	Logger       *logger.Logger
}

// Reconciler applies paid events to bookings.
type Reconciler struct {
	stores     StoreSource
	paidAtMode bookings.PaidAtMode
	ledger     EventRecorder
	logger     *logger.Logger
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Stores == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store source required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	mode, err := paidAtMode(params.PaidAtPolicy)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		stores:     params.Stores,
		paidAtMode: mode,
		ledger:     params.Ledger,
		logger:     params.Logger,
	}, nil
}

func paidAtMode(policy string) (bookings.PaidAtMode, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", config.PaidAtFirstWrite:
		return bookings.PaidAtServerNowIfUnset, nil
	case config.PaidAtAlwaysLatest:
		return bookings.PaidAtServerNow, nil
	default:
		return bookings.PaidAtUnchanged, pkgerrors.New(pkgerrors.CodeMisconfigured, fmt.Sprintf("SERVER_MISCONFIG: unknown paidAt policy %q", policy))
	}
}

// Reconcile marks the referenced booking paid. Events that are not payments,
// or whose booking cannot be identified, succeed without touching the store.
// deliveryID is the gateway's event id when known and is only recorded.
func (r *Reconciler) Reconcile(ctx context.Context, event *Event, deliveryID string) (Result, error) {
	if event == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	ctx = r.logger.WithField(ctx, "event_type", event.Event)

	if !event.IsPaid() {
		r.logger.Debug(ctx, "webhook.ignored")
		r.record(ctx, models.PaymentEventWebhookIgnored, "", event, deliveryID)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	docID := event.DocID()
	if docID == "" || !bookings.ValidDocID(docID) {
		r.logger.Warn(r.logger.WithField(ctx, "reference", event.Reference()), "webhook.doc_id_unresolved")
		r.record(ctx, models.PaymentEventWebhookUnresolved, "", event, deliveryID)
		return Result{Outcome: OutcomeUnresolved}, nil
	}
	ctx = r.logger.WithDocID(ctx, docID)

	store, err := r.stores.Store(ctx)
	if err != nil {
		return Result{DocID: docID}, err
	}
	if err := store.MergeUpdate(ctx, docID, bookings.PaidPatch(r.paidAtMode)); err != nil {
		return Result{DocID: docID}, err
	}

	r.logger.Info(ctx, "webhook.reconciled")
	r.record(ctx, models.PaymentEventWebhookReconciled, docID, event, deliveryID)
	return Result{Outcome: OutcomeReconciled, DocID: docID}, nil
}

func (r *Reconciler) record(ctx context.Context, kind models.PaymentEventKind, docID string, event *Event, deliveryID string) {
	if r.ledger == nil {
		return
	}
	r.ledger.Record(ctx, ledger.RecordEventInput{
		DocID:          docID,
		Kind:           kind,
		GatewayEventID: deliveryID,
		EventType:      event.Event,
		LinkID:         event.LinkID(),
	})
}
