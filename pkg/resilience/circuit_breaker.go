// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/arbiter/pkg/errors"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = "closed"

	// StateOpen refuses calls until the cooldown elapses.
	StateOpen BreakerState = "open"

	// StateHalfOpen lets calls through on probation.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in errors and logs.
	Name string

	// FailureThreshold is the number of consecutive failures that open
	// the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open.
	Cooldown time.Duration
}

// Breaker stops calling a failing dependency for a while. It is safe for
// concurrent use; the guarded call runs outside the breaker's lock.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "breaker"
	}
	return &Breaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Allow reports whether a call may proceed, moving an open breaker to
// half-open once its cooldown has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.successes = 0
	}
	if b.state == StateOpen {
		return errors.New(errors.CodeUnavailable, "circuit breaker open", nil).
			WithContext("breaker", b.cfg.Name).
			WithRecoverable(false)
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.successes = 0
		}
		return
	}
	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.successes = 0
		}
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Guard runs fn through b. A nil breaker calls fn directly.
func Guard[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	if err := b.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.Record(err)
	return v, err
}
