package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/resilience"
)

type flakyFetcher struct {
	calls    int
	failFrom int
	failTo   int
}

func (f *flakyFetcher) Fetch(ctx context.Context, _ core.AgentID, _ core.PawnID) ([]core.ContextRef, error) {
	f.calls++
	if f.calls >= f.failFrom && f.calls <= f.failTo {
		return nil, errors.New("host unavailable")
	}
	return []core.ContextRef{"stew"}, nil
}

func guarded(p Policy) *Registry {
	return NewRegistry(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithPolicy(p))
}

func TestPolicyRetriesFailedFetch(t *testing.T) {
	f := &flakyFetcher{failFrom: 1, failTo: 2}
	reg := guarded(Policy{Retry: resilience.Retry{MaxAttempts: 3, InitialDelay: time.Millisecond}})
	if err := reg.Register("food", f); err != nil {
		t.Fatalf("register: %v", err)
	}
	got := reg.Contexts(context.Background(), request("food"))
	if diff := cmp.Diff([]core.ContextRef{"stew"}, got); diff != "" {
		t.Fatalf("contexts mismatch (-want +got):\n%s", diff)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestPolicyTimeout(t *testing.T) {
	reg := guarded(Policy{Timeout: 5 * time.Millisecond})
	_ = reg.Register("slow", Func(func(ctx context.Context, _ core.AgentID, _ core.PawnID) ([]core.ContextRef, error) {
		<-ctx.Done()
		return []core.ContextRef{"late"}, ctx.Err()
	}))
	if got := reg.Contexts(context.Background(), request("slow")); len(got) != 0 {
		t.Fatalf("timed out fetch should yield nothing, got %v", got)
	}
}

func TestPolicyBreakerOpensPerFetcher(t *testing.T) {
	f := &flakyFetcher{failFrom: 1, failTo: 100}
	reg := guarded(Policy{BreakerThreshold: 2, BreakerCooldown: time.Hour})
	_ = reg.Register("food", f)
	_ = reg.Register("beds", Func(func(context.Context, core.AgentID, core.PawnID) ([]core.ContextRef, error) {
		return []core.ContextRef{"cot"}, nil
	}))

	for range 4 {
		reg.Contexts(context.Background(), request("food"))
	}
	if f.calls != 2 {
		t.Fatalf("breaker should stop calls after 2 failures, got %d", f.calls)
	}
	if reg.BreakerState("food") != resilience.StateOpen {
		t.Fatalf("expected food breaker open")
	}
	if reg.BreakerState("beds") != resilience.StateClosed {
		t.Fatalf("beds breaker must be unaffected")
	}
	if got := reg.Contexts(context.Background(), request("beds")); len(got) != 1 {
		t.Fatalf("healthy fetcher blocked: %v", got)
	}
}

func TestPolicyServesStaleContexts(t *testing.T) {
	f := &flakyFetcher{failFrom: 2, failTo: 2}
	reg := guarded(Policy{ServeStale: true})
	_ = reg.Register("food", f)

	ctx := context.Background()
	first := reg.Contexts(ctx, request("food"))
	second := reg.Contexts(ctx, request("food"))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expected the last good contexts (-first +second):\n%s", diff)
	}

	other := request("food")
	other.Agent = "npc-2"
	f.failFrom, f.failTo = 3, 3
	if got := reg.Contexts(ctx, other); len(got) != 0 {
		t.Fatalf("stale contexts are per agent, got %v", got)
	}
}

func TestBreakerStateWithoutPolicy(t *testing.T) {
	if newQuietRegistry().BreakerState("food") != resilience.StateClosed {
		t.Fatalf("unguarded registries report closed")
	}
}
