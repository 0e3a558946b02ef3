package resilience

import (
	"context"
	"time"

	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/sethvargo/go-retry"
)

const defaultMaxDelay = 2 * time.Second

// Policy bounds one logical call: how many attempts, how long each may take,
// and how long to wait between them.
type Policy struct {
	Attempts       uint64
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// StorePolicy is the policy for booking store calls.
func StorePolicy(cfg config.ResilienceConfig) Policy {
	return Policy{
		Attempts:       cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxDelay:       defaultMaxDelay,
		AttemptTimeout: cfg.StoreTimeout,
	}
}

// GatewayPolicy is the policy for payment gateway calls.
func GatewayPolicy(cfg config.ResilienceConfig) Policy {
	return Policy{
		Attempts:       cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxDelay:       defaultMaxDelay,
		AttemptTimeout: cfg.GatewayTimeout,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempts
// run out. Each attempt gets its own timeout derived from ctx.
func Do(ctx context.Context, p Policy, transient func(error) bool, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	backoff := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if transient != nil && transient(err) && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
}
