package paymentlinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fabrevive/pickup-payments/pkg/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/redis"
)

const linkCacheScope = "payment-link"

// IdempotencyKey identifies one issuance attempt: the same booking at the same
// amount maps to the same key.
func IdempotencyKey(docID string, amountMinor int64) string {
	return fmt.Sprintf("%s%s:%d", referencePrefix, docID, amountMinor)
}

// LinkCache remembers links already created for an idempotency key.
type LinkCache interface {
	Lookup(ctx context.Context, key string) (*razorpay.PaymentLink, error)
	Remember(ctx context.Context, key string, link *razorpay.PaymentLink) error
}

type redisLinkCache struct {
	store redis.CacheStore
	ttl   time.Duration
}

func NewRedisLinkCache(store redis.CacheStore, ttl time.Duration) (LinkCache, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &redisLinkCache{store: store, ttl: ttl}, nil
}

// Lookup returns nil without error on a miss.
func (c *redisLinkCache) Lookup(ctx context.Context, key string) (*razorpay.PaymentLink, error) {
	raw, err := c.store.Get(ctx, c.store.IdempotencyKey(linkCacheScope, key))
	if err != nil {
		if redis.IsMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read link cache: %w", err)
	}
	var link razorpay.PaymentLink
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	if link.ID == "" || link.PreferredURL() == "" {
		return nil, nil
	}
	return &link, nil
}

func (c *redisLinkCache) Remember(ctx context.Context, key string, link *razorpay.PaymentLink) error {
	if link == nil {
		return errors.New("link is required")
	}
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	if err := c.store.Set(ctx, c.store.IdempotencyKey(linkCacheScope, key), payload, c.ttl); err != nil {
		return fmt.Errorf("write link cache: %w", err)
	}
	return nil
}
