// SPDX-License-Identifier: Apache-2.0

// Package resilience guards calls into host code with retries, deadlines
// and circuit breakers. Every failure it produces is an ArbiterError.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/arbiter/pkg/errors"
)

// Retry controls retry behavior with exponential backoff.
type Retry struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// InitialDelay is the pause before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts (default 2.0).
	Multiplier float64

	// Jitter is the fraction of each delay randomized; 0.1 means ±10%.
	Jitter float64

	// IsRecoverable decides whether an error is worth another attempt.
	// Nil uses Recoverable.
	IsRecoverable func(error) bool
}

// DefaultRetry returns three attempts starting at 50ms.
func DefaultRetry() Retry {
	return Retry{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NoRetry makes a single attempt.
func NoRetry() Retry { return Retry{MaxAttempts: 1} }

// WithMaxAttempts returns a copy with MaxAttempts set.
func (r Retry) WithMaxAttempts(n int) Retry {
	r.MaxAttempts = n
	return r
}

// WithInitialDelay returns a copy with InitialDelay set.
func (r Retry) WithInitialDelay(d time.Duration) Retry {
	r.InitialDelay = d
	return r
}

// WithIsRecoverable returns a copy with IsRecoverable set.
func (r Retry) WithIsRecoverable(fn func(error) bool) Retry {
	r.IsRecoverable = fn
	return r
}

// Do calls fn until it succeeds, returns an unrecoverable error or runs out
// of attempts. The last error is returned.
func (r Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Retry.Do for calls that produce a value.
func Do[T any](ctx context.Context, r Retry, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(r.MaxAttempts, 1)
	recoverable := r.IsRecoverable
	if recoverable == nil {
		recoverable = Recoverable
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, errors.New(errors.CodeTimeout, "context done during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", attempts).
					WithContext("last_error", lastErr.Error())
			case <-time.After(r.backoff(attempt)):
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !recoverable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func (r Retry) backoff(attempt int) time.Duration {
	mult := r.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	d := time.Duration(float64(r.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if r.Jitter > 0 {
		d += time.Duration(float64(d) * r.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

// Recoverable reports whether err should be retried. ArbiterErrors carry
// their own flag; a refused breaker and plain errors are retried,
// cancellation is not.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	var ae *errors.ArbiterError
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return true
}
