// Package retry provides the bounded exponential backoff policy shared by every
// call raga makes to an external service (vector index, embedding model, chat
// model, dictionary API).
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first call.
	DefaultMaxAttempts = 3
	// DefaultInitialInterval is the wait before the first retry.
	DefaultInitialInterval = 200 * time.Millisecond
	// DefaultMaxInterval caps the wait between retries.
	DefaultMaxInterval = 2 * time.Second
	// DefaultMultiplier grows the wait after each failed attempt.
	DefaultMultiplier = 2.0
)

// Policy is a bounded retry schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first call.
	MaxAttempts int
	// InitialInterval is the wait before the first retry. It must be
	// positive when MaxAttempts > 1.
	InitialInterval time.Duration
	// MaxInterval caps any single wait. It must be positive when
	// MaxAttempts > 1.
	MaxInterval time.Duration
	// Multiplier grows the wait after each failed attempt. Zero keeps the
	// backoff default of 1.5.
	Multiplier float64
	// Jitter is the randomization factor in [0,1). Zero gives a fixed schedule.
	Jitter float64
	// OnRetry, when set, is called before each retry wait.
	OnRetry func(op string, attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns the policy used when configuration supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		Jitter:          0.2,
	}
}

// Validate reports a configuration error for an unusable policy.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return apperr.Newf(apperr.KindConfiguration, "retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.InitialInterval < 0 || p.MaxInterval < 0:
		return apperr.New(apperr.KindConfiguration, "retry: intervals must not be negative")
	case p.MaxAttempts > 1 && (p.InitialInterval == 0 || p.MaxInterval == 0):
		return apperr.New(apperr.KindConfiguration, "retry: initial and max interval must be set when retrying")
	case p.Multiplier != 0 && p.Multiplier < 1:
		return apperr.Newf(apperr.KindConfiguration, "retry: multiplier must be >= 1, got %g", p.Multiplier)
	case p.Jitter < 0 || p.Jitter >= 1:
		return apperr.Newf(apperr.KindConfiguration, "retry: jitter must be in [0,1), got %g", p.Jitter)
	}
	return nil
}

// Do calls fn until it succeeds, returns a non-retryable error, the context is
// done, or the policy's attempt ceiling is reached. The last error is returned
// unchanged so callers can classify it.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !apperr.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retrying external call",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt, err, wait)
		}
	}

	v, err := backoff.RetryNotifyWithData(operation, p.schedule(ctx), notify)
	if err != nil {
		return v, fmt.Errorf("%s: attempt %d/%d: %w", op, attempt, p.MaxAttempts, err)
	}
	return v, nil
}

// schedule builds the backoff for one Do call. BackOff values are stateful so
// each call gets its own.
func (p Policy) schedule(ctx context.Context) backoff.BackOff {
	opts := []backoff.ExponentialBackOffOpts{
		backoff.WithRandomizationFactor(p.Jitter),
		backoff.WithMaxElapsedTime(0),
	}
	if p.InitialInterval > 0 {
		opts = append(opts, backoff.WithInitialInterval(p.InitialInterval))
	}
	if p.MaxInterval > 0 {
		opts = append(opts, backoff.WithMaxInterval(p.MaxInterval))
	}
	if p.Multiplier >= 1 {
		opts = append(opts, backoff.WithMultiplier(p.Multiplier))
	}
	b := backoff.NewExponentialBackOff(opts...)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}
