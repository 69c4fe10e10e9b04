// Package breaker implements the circuit breaker state machine from
// section 4.10: Closed -> Open on a consecutive-failure threshold,
// Open -> HalfOpen after a recovery timeout, HalfOpen -> Closed on
// success or back to Open on failure.
package breaker

import (
	"sync"
	"time"

	"github.com/pyferris/pyferris/internal/config"
	"github.com/pyferris/pyferris/pkg/pferrors"
)

// State is one of the breaker's three states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Breaker guards a callable, tripping open after FailureThreshold
// consecutive failures and probing for recovery after RecoveryTimeout.
type Breaker struct {
	cfg config.BreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// New builds a Breaker in the Closed state.
func New(cfg config.BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// State returns the breaker's current state, transitioning Open ->
// HalfOpen first if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = HalfOpen
	}
}

// Execute runs fn if the breaker permits it. An Open breaker fails fast
// with a CircuitOpen error without invoking fn at all.
func (b *Breaker) Execute(operation string, fn func() (any, error)) (any, error) {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		b.mu.Unlock()
		return nil, pferrors.New(pferrors.KindCircuitOpen, operation, pferrors.ErrCircuitOpen)
	}
	b.mu.Unlock()

	result, err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailureLocked()
		return result, err
	}
	b.recordSuccessLocked()
	return result, nil
}

func (b *Breaker) recordFailureLocked() {
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.consecutiveFailures = b.cfg.FailureThreshold
	default:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
		}
	}
}

func (b *Breaker) recordSuccessLocked() {
	b.state = Closed
	b.consecutiveFailures = 0
}

// Reset forces the breaker back to Closed with a clean failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFailures = 0
}
