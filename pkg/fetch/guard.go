package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/resilience"
)

// Policy guards every fetcher call made through a Registry. The zero
// Policy makes one unbounded attempt.
type Policy struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retry controls repeated attempts after a failure.
	Retry resilience.Retry
	// BreakerThreshold opens a per-fetcher breaker after this many
	// consecutive failures. Zero disables breakers.
	BreakerThreshold int
	// BreakerCooldown is how long an open breaker refuses calls.
	BreakerCooldown time.Duration
	// ServeStale answers a failed call with the last contexts the same
	// fetcher produced for the same agent.
	ServeStale bool
}

// WithPolicy guards fetcher calls with p.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.guard = newGuard(p) }
}

type staleKey struct {
	fetcher string
	agent   core.AgentID
}

type guard struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
	stale    map[staleKey][]core.ContextRef
}

func newGuard(p Policy) *guard {
	return &guard{
		policy:   p,
		breakers: make(map[string]*resilience.Breaker),
		stale:    make(map[staleKey][]core.ContextRef),
	}
}

func (g *guard) breaker(key string) *resilience.Breaker {
	if g.policy.BreakerThreshold < 1 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[key]
	if !ok {
		b = resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "fetch." + key,
			FailureThreshold: g.policy.BreakerThreshold,
			Cooldown:         g.policy.BreakerCooldown,
		})
		g.breakers[key] = b
	}
	return b
}

func (g *guard) call(ctx context.Context, key string, f Fetcher, req Request, logger *slog.Logger) ([]core.ContextRef, error) {
	p := g.policy
	out, err := resilience.Do(ctx, p.Retry, func(ctx context.Context) ([]core.ContextRef, error) {
		return resilience.Guard(ctx, g.breaker(key), func(ctx context.Context) ([]core.ContextRef, error) {
			return resilience.WithTimeout(ctx, p.Timeout, func(ctx context.Context) ([]core.ContextRef, error) {
				return f.Fetch(ctx, req.Agent, req.Pawn)
			})
		})
	})
	if !p.ServeStale {
		return out, err
	}

	sk := staleKey{fetcher: key, agent: req.Agent}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		g.stale[sk] = out
		return out, nil
	}
	if prev, ok := g.stale[sk]; ok {
		logger.DebugContext(ctx, "fetch.fetcher.stale",
			slog.String("fetcher", key),
			slog.String("agent", string(req.Agent)),
			slog.String("error", err.Error()),
		)
		return prev, nil
	}
	return nil, err
}

// BreakerState reports the breaker state for a fetcher key. Keys without a
// breaker report closed.
func (r *Registry) BreakerState(key string) resilience.BreakerState {
	if r.guard == nil || r.guard.policy.BreakerThreshold < 1 {
		return resilience.StateClosed
	}
	return r.guard.breaker(key).State()
}
