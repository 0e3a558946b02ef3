package razorpaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fabrevive/pickup-payments/pkg/redis"
)

// guardScope namespaces delivery markers: pickup:idempotency:razorpay-webhook:<event id>.
const guardScope = "razorpay-webhook"

// DeliveryGuard claims webhook deliveries by event id so redeliveries of an
// already handled event short-circuit. A claim lives for claimTTL while the
// event is reconciled; Complete keeps it for processedTTL.
type DeliveryGuard struct {
	store        redis.CacheStore
	claimTTL     time.Duration
	processedTTL time.Duration
	now          func() time.Time
}

func NewDeliveryGuard(store redis.CacheStore, claimTTL, processedTTL time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if claimTTL <= 0 || processedTTL <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if claimTTL > processedTTL {
		return nil, errors.New("claim ttl must not exceed processed ttl")
	}
	return &DeliveryGuard{store: store, claimTTL: claimTTL, processedTTL: processedTTL, now: time.Now}, nil
}

// Claim marks eventID as in flight. duplicate is true when another delivery
// already holds the claim or the event was completed.
func (g *DeliveryGuard) Claim(ctx context.Context, eventID string) (duplicate bool, err error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), g.marker("claimed"), g.claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", eventID, err)
	}
	return !set, nil
}

// Complete records eventID as processed for the full retention window.
func (g *DeliveryGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.key(eventID), g.marker("processed"), g.processedTTL); err != nil {
		return fmt.Errorf("complete delivery %s: %w", eventID, err)
	}
	return nil
}

// Release drops the claim so the gateway's retry is processed.
func (g *DeliveryGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *DeliveryGuard) key(eventID string) string {
	return g.store.IdempotencyKey(guardScope, eventID)
}

func (g *DeliveryGuard) marker(state string) string {
	return state + ":" + strconv.FormatInt(g.now().Unix(), 10)
}
