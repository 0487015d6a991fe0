package model

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// RetryOptions tune the transient-failure retry policy applied by WithRetry.
type RetryOptions struct {
	// MaxAttempts bounds the total number of Decide attempts (first try
	// included). Minimum 1.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff schedule.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration
}

// DefaultRetryOptions is a conservative production default: four attempts
// with 1s/2s/4s backoff plus jitter.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts: 4,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// retryingPlanner decorates a Planner with bounded exponential backoff for
// transient transport failures. Authorization and malformed-output errors
// pass through immediately: the former is fatal, the latter is the
// executor's repair loop to handle.
type retryingPlanner struct {
	inner Planner
	opts  RetryOptions
}

var _ Planner = (*retryingPlanner)(nil)

// WithRetry wraps a planner in the transient-failure retry policy.
func WithRetry(p Planner, optFns ...func(o *RetryOptions)) Planner {
	opts := DefaultRetryOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &retryingPlanner{inner: p, opts: opts}
}

// Decide implements Planner.
func (r *retryingPlanner) Decide(ctx context.Context, req Request) ([]core.Action, error) {
	var lastErr error
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, r.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
		actions, err := r.inner.Decide(ctx, req)
		if err == nil {
			return actions, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoffDelay computes the sleep before the given (1-based) retry attempt:
// exponential growth with 10% jitter, capped at MaxDelay.
func (r *retryingPlanner) backoffDelay(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * r.opts.BaseDelay
	if d > r.opts.MaxDelay {
		d = r.opts.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(d))
	return d + jitter
}

// Info implements Planner.
func (r *retryingPlanner) Info() Info { return r.inner.Info() }

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
