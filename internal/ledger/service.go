package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fabrevive/pickup-payments/pkg/db/models"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

// Service records payment events.
type Service interface {
	RecordEvent(ctx context.Context, input RecordEventInput) (*models.PaymentEvent, error)
	ListByDocID(ctx context.Context, docID string) ([]models.PaymentEvent, error)
}

type service struct {
	repo Repository
}

// RecordEventInput captures the data a payment event requires.
type RecordEventInput struct {
	DocID          string                  `json:"doc_id"`
	Kind           models.PaymentEventKind `json:"kind"`
	GatewayEventID string                  `json:"gateway_event_id"`
	EventType      string                  `json:"event_type"`
	LinkID         string                  `json:"link_id"`
	AmountMinor    int64                   `json:"amount_minor"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, input RecordEventInput) (*models.PaymentEvent, error) {
	if !input.Kind.IsValid() {
		return nil, fmt.Errorf("invalid payment event kind %q", input.Kind)
	}
	if input.AmountMinor < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}

	event := &models.PaymentEvent{
		ID:             uuid.New(),
		DocID:          input.DocID,
		Kind:           input.Kind,
		GatewayEventID: input.GatewayEventID,
		EventType:      input.EventType,
		LinkID:         input.LinkID,
		AmountMinor:    input.AmountMinor,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) ListByDocID(ctx context.Context, docID string) ([]models.PaymentEvent, error) {
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}
	return s.repo.ListByDocID(ctx, docID)
}

// Recorder writes events without ever failing the caller. A nil Recorder is a no-op.
type Recorder struct {
	svc    Service
	logger *logger.Logger
}

func NewRecorder(svc Service, logg *logger.Logger) *Recorder {
	return &Recorder{svc: svc, logger: logg}
}

// Record stores the event and logs a warning when that fails.
func (r *Recorder) Record(ctx context.Context, input RecordEventInput) {
	if r == nil || r.svc == nil {
		return
	}
	if _, err := r.svc.RecordEvent(ctx, input); err != nil && r.logger != nil {
		fields := map[string]any{"kind": string(input.Kind)}
		for k, v := range pkgerrors.Dump(err).Fields() {
			fields[k] = v
		}
		r.logger.Warn(r.logger.WithFields(ctx, fields), "ledger.record_failed")
	}
}
