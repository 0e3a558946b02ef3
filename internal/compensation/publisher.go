package compensation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/outbox"
)

// EventTypeBookingMerge tags messages carrying a booking merge to replay.
const EventTypeBookingMerge = "booking.merge"

const defaultPublishTimeout = 5 * time.Second

// MergePayload is the envelope data for a pending booking merge.
type MergePayload struct {
	DocID string         `json:"docId"`
	Patch bookings.Patch `json:"patch"`
}

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// Publisher sends booking merges that failed inline to the compensation topic.
type Publisher struct {
	pub     publisher
	timeout time.Duration
	now     func() time.Time
	logg    *logger.Logger
}

func NewPublisher(p *pubsub.Publisher, logg *logger.Logger) (*Publisher, error) {
	if p == nil {
		return nil, fmt.Errorf("compensation publisher required")
	}
	return newPublisher(&gcpPublisher{Publisher: p}, logg)
}

func newPublisher(pub publisher, logg *logger.Logger) (*Publisher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Publisher{pub: pub, timeout: defaultPublishTimeout, now: time.Now, logg: logg}, nil
}

// PublishMerge enqueues docID's patch and waits for the broker to accept it.
func (p *Publisher) PublishMerge(ctx context.Context, docID string, patch bookings.Patch) error {
	envelope, err := outbox.NewEnvelope(MergePayload{DocID: docID, Patch: patch}, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id":    envelope.EventID,
			"event_type":  EventTypeBookingMerge,
			"doc_id":      docID,
			"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	// Detached from the request deadline.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	result := p.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	serverID, err := result.Get(publishCtx)
	if err != nil {
		return fmt.Errorf("publish compensation: %w", err)
	}

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"message_id": serverID,
	}), "compensation.published")
	return nil
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
