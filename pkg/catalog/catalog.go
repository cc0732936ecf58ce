package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/arbiter/pkg/errors"
)

// Catalog stores action sets by name and indexes their templates by name.
// Every upsert or removal bumps the revision counter.
type Catalog struct {
	mu        sync.RWMutex
	sets      map[string]ActionSet
	templates map[string]Template
	revision  uint64
	logger    *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for catalog warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		sets:      make(map[string]ActionSet),
		templates: make(map[string]Template),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert validates set and stores a copy of it, replacing any set with the
// same name.
func (c *Catalog) Upsert(set ActionSet) error {
	stored := set.clone()
	if err := stored.Validate(); err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid action set", err).
			WithContext("action_set", set.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[stored.Name] = stored
	c.revision++
	c.reindexLocked()
	return nil
}

// Remove drops the named set. It reports whether the set existed.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sets[name]; !ok {
		return false
	}
	delete(c.sets, name)
	c.revision++
	c.reindexLocked()
	return true
}

// Set returns a copy of the named action set.
func (c *Catalog) Set(name string) (ActionSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.sets[name]
	if !ok {
		return ActionSet{}, false
	}
	return set.clone(), true
}

// Template returns the template registered under name.
func (c *Catalog) Template(name string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	return t, ok
}

// Names lists stored set names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sets))
	for name := range c.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Revision returns the current catalog revision.
func (c *Catalog) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Resolve gathers the templates reachable from an agent's behavior sources,
// in source order. A template reachable from several sources is returned
// once. Unknown source names are skipped with a warning.
func (c *Catalog) Resolve(ctx context.Context, sources []string) []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[Identity]struct{})
	var out []Template
	for _, src := range sources {
		set, ok := c.sets[src]
		if !ok {
			c.logger.WarnContext(ctx, "catalog.source.missing", slog.String("action_set", src))
			continue
		}
		for _, t := range set.Actions {
			id := t.Identity()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func (c *Catalog) reindexLocked() {
	names := make([]string, 0, len(c.sets))
	for name := range c.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	index := make(map[string]Template)
	for _, name := range names {
		for _, t := range c.sets[name].Actions {
			if prev, ok := index[t.Name]; ok {
				if !prev.Equal(t) {
					c.logger.Warn("catalog.template.conflict",
						slog.String("template", t.Name),
						slog.String("action_set", name),
						slog.String("kept_action_key", prev.ActionKey),
					)
				}
				continue
			}
			index[t.Name] = t
		}
	}
	c.templates = index
}
