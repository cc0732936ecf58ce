// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jllopis/arbiter/pkg/errors"
)

func fastRetry(attempts int) Retry {
	return Retry{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, stderrors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d and %v", got, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	err := fastRetry(2).Do(context.Background(), func(context.Context) error {
		attempts++
		return stderrors.New("always")
	})
	if err == nil || attempts != 2 {
		t.Fatalf("expected failure after 2 attempts, got %d and %v", attempts, err)
	}
}

func TestRetrySkipsUnrecoverable(t *testing.T) {
	attempts := 0
	err := fastRetry(5).Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New(errors.CodeInvalidInput, "bad request", nil).WithRecoverable(false)
	})
	if !errors.IsCode(err, errors.CodeInvalidInput) || attempts != 1 {
		t.Fatalf("expected a single attempt, got %d and %v", attempts, err)
	}

	attempts = 0
	_ = fastRetry(5).WithIsRecoverable(func(error) bool { return false }).
		Do(context.Background(), func(context.Context) error {
			attempts++
			return stderrors.New("x")
		})
	if attempts != 1 {
		t.Fatalf("custom classifier ignored, got %d attempts", attempts)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retry{MaxAttempts: 3, InitialDelay: time.Hour}
	err := r.Do(ctx, func(context.Context) error {
		cancel()
		return stderrors.New("first")
	})
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	r := Retry{InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond}
	if d := r.backoff(1); d != 10*time.Millisecond {
		t.Fatalf("first backoff %v", d)
	}
	if d := r.backoff(2); d != 20*time.Millisecond {
		t.Fatalf("second backoff %v", d)
	}
	if d := r.backoff(5); d != 25*time.Millisecond {
		t.Fatalf("capped backoff %v", d)
	}
}

func TestRecoverable(t *testing.T) {
	if Recoverable(nil) || Recoverable(context.Canceled) {
		t.Fatalf("nil and cancellation are not recoverable")
	}
	if !Recoverable(stderrors.New("plain")) {
		t.Fatalf("plain errors are recoverable")
	}
	if !Recoverable(errors.New(errors.CodeTimeout, "slow", nil).WithRecoverable(true)) {
		t.Fatalf("flagged errors are recoverable")
	}
}

func TestWithTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	got, err := WithTimeout(context.Background(), 0, func(context.Context) (string, error) { return "direct", nil })
	if err != nil || got != "direct" {
		t.Fatalf("zero timeout should call directly, got %q %v", got, err)
	}

	_, err = WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if !Recoverable(err) {
		t.Fatalf("timeouts are retried")
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerConfig{Name: "food", FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, stderrors.New("down") }
	ok := func(context.Context) (int, error) { return 1, nil }
	ctx := context.Background()

	_, _ = Guard(ctx, b, fail)
	if b.State() != StateClosed {
		t.Fatalf("one failure must not open the breaker")
	}
	_, _ = Guard(ctx, b, fail)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	var calls atomic.Int32
	_, err := Guard(ctx, b, func(context.Context) (int, error) { calls.Add(1); return 1, nil })
	if !errors.IsCode(err, errors.CodeUnavailable) || calls.Load() != 0 {
		t.Fatalf("open breaker must refuse, got %v after %d calls", err, calls.Load())
	}
	if Recoverable(err) {
		t.Fatalf("a refused call is not retried")
	}

	now = now.Add(time.Second)
	_, _ = Guard(ctx, b, fail)
	if b.State() != StateOpen {
		t.Fatalf("a half-open failure reopens, got %s", b.State())
	}

	now = now.Add(time.Second)
	if v, err := Guard(ctx, b, ok); err != nil || v != 1 {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	b.Record(stderrors.New("x"))
	if b.State() != StateOpen {
		t.Fatalf("expected open")
	}
	b.Reset()
	if err := b.Allow(); err != nil {
		t.Fatalf("reset breaker refused: %v", err)
	}
}

func TestGuardWithoutBreaker(t *testing.T) {
	v, err := Guard(context.Background(), nil, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("nil breaker should pass through")
	}
}
