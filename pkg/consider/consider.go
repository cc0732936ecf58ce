// Package consider defines the consideration contract: host scoring
// functions that each contribute one factor to a candidate's utility.
package consider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/errors"
)

// Consideration returns a raw, unbounded score for one context. The engine
// rescales and curves it. Implementations should be read-only with respect
// to shared state.
type Consideration interface {
	Evaluate(ctx context.Context, agent core.AgentID, pawn core.PawnID, c core.ContextRef) (float64, error)
}

// Func adapts a function to Consideration.
type Func func(ctx context.Context, agent core.AgentID, pawn core.PawnID, c core.ContextRef) (float64, error)

// Evaluate implements Consideration.
func (f Func) Evaluate(ctx context.Context, agent core.AgentID, pawn core.PawnID, c core.ContextRef) (float64, error) {
	return f(ctx, agent, pawn, c)
}

// Const returns a consideration that always scores v.
func Const(v float64) Consideration {
	return Func(func(context.Context, core.AgentID, core.PawnID, core.ContextRef) (float64, error) {
		return v, nil
	})
}

// Registry maps consideration keys to host implementations.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Consideration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Consideration)}
}

// Register binds key to c. Keys are registered once.
func (r *Registry) Register(key string, c Consideration) error {
	if strings.TrimSpace(key) == "" || c == nil {
		return errors.New(errors.CodeInvalidInput, "consideration key and implementation are required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return errors.New(errors.CodeDuplicateKey, "consideration already registered", nil).
			WithContext("consideration", key)
	}
	r.items[key] = c
	return nil
}

// Lookup returns the consideration registered under key.
func (r *Registry) Lookup(key string) (Consideration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[key]
	return c, ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
