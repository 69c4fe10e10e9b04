// Package retry implements the retry executor from section 4.9: a
// configurable backoff policy wrapped around an arbitrary callable, with
// per-attempt observability and error-kind-aware retry eligibility.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/pyferris/pyferris/internal/config"
	"github.com/pyferris/pyferris/pkg/pferrors"
)

// AttemptObserver is invoked after every failed attempt, before the next
// backoff sleep (or before giving up on the final attempt).
type AttemptObserver func(attempt int, err error)

// Executor retries a callable according to a configured backoff strategy,
// stopping early if the failure's Kind is not in the retryable set.
type Executor struct {
	cfg config.RetryConfig
}

// New builds an Executor from the given configuration.
func New(cfg config.RetryConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Executor{cfg: cfg}
}

// Execute runs fn, retrying on failure per the configured strategy. It
// surfaces the final attempt's error wrapped as AllRetriesExhausted once
// MaxAttempts is reached, or immediately if an error's Kind is not
// retryable. observer, if non-nil, is called after every failed attempt.
func (e *Executor) Execute(ctx context.Context, operation string, fn func() (any, error), observer AttemptObserver) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if observer != nil {
			observer(attempt, err)
		}

		if !e.retryable(err) {
			return nil, err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.delayFor(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, pferrors.New(pferrors.KindAllRetriesExhausted, operation, lastErr).WithAttempts(e.cfg.MaxAttempts)
}

// retryable reports whether err's pferrors.Kind (if any) is listed in the
// configured RetryableKinds. An unclassified error (not a *pferrors.Error)
// or an empty RetryableKinds list is always retryable.
func (e *Executor) retryable(err error) bool {
	if len(e.cfg.RetryableKinds) == 0 {
		return true
	}
	pfe, ok := err.(*pferrors.Error)
	if !ok {
		return true
	}
	for _, k := range e.cfg.RetryableKinds {
		if string(pfe.Kind) == k {
			return true
		}
	}
	return false
}

// delayFor computes the backoff delay before the given attempt's retry,
// per the fixed/linear/exponential formulas of section 4.9, capped at
// MaxDelay.
func (e *Executor) delayFor(attempt int) time.Duration {
	var delay time.Duration
	switch e.cfg.Strategy {
	case config.RetryLinear:
		delay = e.cfg.InitialDelay * time.Duration(attempt)
	case config.RetryExponential:
		factor := math.Pow(e.cfg.BackoffMultiplier, float64(attempt-1))
		delay = time.Duration(float64(e.cfg.InitialDelay) * factor)
	default: // config.RetryFixed
		delay = e.cfg.InitialDelay
	}
	if e.cfg.MaxDelay > 0 && delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	return delay
}
