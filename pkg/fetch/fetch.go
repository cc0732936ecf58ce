// Package fetch defines the context fetcher contract: host code that
// enumerates the candidate contexts of a template for one agent.
package fetch

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/errors"
)

// Fetcher enumerates candidate contexts. Implementations should not mutate
// shared world state; they may run concurrently for distinct agents. The
// returned slice is treated as a snapshot for the rest of the tick.
type Fetcher interface {
	Fetch(ctx context.Context, agent core.AgentID, pawn core.PawnID) ([]core.ContextRef, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, agent core.AgentID, pawn core.PawnID) ([]core.ContextRef, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, agent core.AgentID, pawn core.PawnID) ([]core.ContextRef, error) {
	return f(ctx, agent, pawn)
}

// Request asks for the contexts of one template on behalf of one agent.
type Request struct {
	RoundID  string
	Tick     uint64
	Agent    core.AgentID
	Pawn     core.PawnID
	Template catalog.Template
}

// Response carries the contexts produced for a Request. Tick is the tick
// the response was produced in, which may be later than the request's.
type Response struct {
	Request  Request
	Tick     uint64
	Contexts []core.ContextRef
}

// Registry maps fetcher keys to host implementations.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	logger   *slog.Logger
	guard    *guard
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds key to f. Keys are registered once.
func (r *Registry) Register(key string, f Fetcher) error {
	if strings.TrimSpace(key) == "" || f == nil {
		return errors.New(errors.CodeInvalidInput, "fetcher key and implementation are required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fetchers[key]; ok {
		return errors.New(errors.CodeDuplicateKey, "fetcher already registered", nil).
			WithContext("fetcher", key)
	}
	r.fetchers[key] = f
	return nil
}

// Lookup returns the fetcher registered under key.
func (r *Registry) Lookup(key string) (Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[key]
	return f, ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.fetchers))
	for k := range r.fetchers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contexts runs the fetcher named by the request's template under the
// registry's Policy. A missing fetcher or a failed call yields an empty
// list and a warning.
func (r *Registry) Contexts(ctx context.Context, req Request) []core.ContextRef {
	key := req.Template.ContextFetcher
	f, ok := r.Lookup(key)
	if !ok {
		r.logger.WarnContext(ctx, "fetch.fetcher.missing",
			slog.String("fetcher", key),
			slog.String("template", req.Template.Name),
			slog.String("agent", string(req.Agent)),
		)
		return nil
	}
	var out []core.ContextRef
	var err error
	if r.guard != nil {
		out, err = r.guard.call(ctx, key, f, req, r.logger)
	} else {
		out, err = f.Fetch(ctx, req.Agent, req.Pawn)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "fetch.fetcher.failed",
			slog.String("fetcher", key),
			slog.String("template", req.Template.Name),
			slog.String("agent", string(req.Agent)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return out
}

// Serve answers req synchronously.
func (r *Registry) Serve(ctx context.Context, req Request) Response {
	return Response{Request: req, Tick: req.Tick, Contexts: r.Contexts(ctx, req)}
}
