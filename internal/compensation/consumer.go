package compensation

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/metrics"
	"github.com/fabrevive/pickup-payments/pkg/outbox"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer replays booking merges from the compensation subscription.
type Consumer struct {
	store        bookings.Repository
	subscription receiver
	dedup        *MergeDedup
	metrics      *metrics.PaymentMetrics
	logg         *logger.Logger
}

// NewConsumer builds a compensation consumer. dedup is optional; without it
// redeliveries are applied again, which merges tolerate.
func NewConsumer(store bookings.Repository, subscription *pubsub.Subscriber, dedup *MergeDedup, m *metrics.PaymentMetrics, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("compensation subscription required")
	}
	return newConsumer(store, subscription, dedup, m, logg)
}

func newConsumer(store bookings.Repository, subscription receiver, dedup *MergeDedup, m *metrics.PaymentMetrics, logg *logger.Logger) (*Consumer, error) {
	if store == nil {
		return nil, fmt.Errorf("booking store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		store:        store,
		subscription: subscription,
		dedup:        dedup,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != EventTypeBookingMerge {
		c.logg.Info(logCtx, "skipping non-compensation event")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.IncCompensation(metrics.OutcomeMalformed)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithEventID(logCtx, eventID.String())

	var payload MergePayload
	if err := envelope.DecodeData(&payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		c.metrics.IncCompensation(metrics.OutcomeMalformed)
		return processResult{ack: true}
	}
	if !bookings.ValidDocID(payload.DocID) || payload.Patch.IsEmpty() {
		c.logg.Warn(logCtx, "compensation payload has nothing to apply")
		c.metrics.IncCompensation(metrics.OutcomeMalformed)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithDocID(logCtx, payload.DocID)

	if c.dedup != nil {
		duplicate, err := c.dedup.Claim(ctx, eventID, payload.DocID)
		if err != nil {
			c.logg.Error(logCtx, "compensation dedup claim failed", err)
			return processResult{nack: true}
		}
		if duplicate {
			c.logg.Info(logCtx, "event already processed")
			c.metrics.IncCompensation(metrics.OutcomeDuplicate)
			return processResult{ack: true}
		}
	}

	if err := c.store.MergeUpdate(ctx, payload.DocID, payload.Patch); err != nil {
		c.logg.Error(logCtx, "compensation merge failed", err)
		c.metrics.IncCompensation(metrics.OutcomeFailed)
		if c.dedup != nil {
			if releaseErr := c.dedup.Release(ctx, eventID); releaseErr != nil {
				c.logg.Warn(c.logg.WithField(logCtx, "error", releaseErr.Error()), "compensation.dedup_release_failed")
			}
		}
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "compensation applied")
	c.metrics.IncCompensation(metrics.OutcomeApplied)
	return processResult{ack: true}
}
