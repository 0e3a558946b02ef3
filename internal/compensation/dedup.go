package compensation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fabrevive/pickup-payments/pkg/redis"
)

const dedupScope = "compensation:merge"

// MergeDedup records which compensation envelopes have already been merged.
// The marker value is the booking document ID, which makes stray keys easy to
// trace back from Redis.
type MergeDedup struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewMergeDedup keeps applied markers for ttl.
func NewMergeDedup(store redis.IdempotencyStore, ttl time.Duration) (*MergeDedup, error) {
	if store == nil {
		return nil, errors.New("dedup store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("dedup ttl must be positive")
	}
	return &MergeDedup{store: store, ttl: ttl}, nil
}

// Claim marks the envelope as applied. It reports duplicate when an earlier
// delivery already holds the marker.
func (d *MergeDedup) Claim(ctx context.Context, eventID uuid.UUID, docID string) (duplicate bool, err error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	set, err := d.store.SetNX(ctx, d.key(eventID), docID, d.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops the marker so the next redelivery merges again.
func (d *MergeDedup) Release(ctx context.Context, eventID uuid.UUID) error {
	return d.store.Del(ctx, d.key(eventID))
}

func (d *MergeDedup) key(eventID uuid.UUID) string {
	return d.store.IdempotencyKey(dedupScope, eventID.String())
}
