// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/telemetry"
)

// Tracker is a snapshot of one in-flight action.
type Tracker struct {
	ID         string
	Pick       core.Pick
	State      State
	Extensions Extensions

	seq uint64
}

// Agent returns the agent that picked the action.
func (t Tracker) Agent() core.AgentID { return t.Pick.Agent }

func (t *Tracker) clone() Tracker {
	out := *t
	out.Extensions = t.Extensions.clone()
	return out
}

// Dispatch asks the host to run one step of a ticking action.
type Dispatch struct {
	TrackerID string
	Agent     core.AgentID
	Pawn      core.PawnID
	ActionKey string
	Context   core.ContextRef
	State     State
}

// TerminalHook runs during Cleanup for each terminal tracker, before it is
// despawned.
type TerminalHook func(ctx context.Context, t Tracker)

// Store owns every tracker. Each tracker is written only through the store's
// lifecycle operations.
type Store struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	byAgent  map[core.AgentID]map[string]struct{}
	removed  map[core.AgentID]struct{}
	seq      uint64
	defaults SpawnConfig
	hooks    []TerminalHook

	emitter core.EventEmitter
	logger  *slog.Logger
	metrics *telemetry.DecisionMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDefaults sets the host-wide spawn configuration.
func WithDefaults(cfg SpawnConfig) Option {
	return func(s *Store) { s.defaults = cfg }
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(s *Store) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records transitions.
func WithMetrics(m *telemetry.DecisionMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the time source used for timers.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty tracker store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		trackers: make(map[string]*Tracker),
		byAgent:  make(map[core.AgentID]map[string]struct{}),
		removed:  make(map[core.AgentID]struct{}),
		defaults: DefaultSpawnConfig(),
		emitter:  core.NoopEventEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("arbiter/tracker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDefaults replaces the host-wide spawn configuration. Existing trackers
// keep the extensions they were spawned with.
func (s *Store) SetDefaults(cfg SpawnConfig) {
	s.mu.Lock()
	s.defaults = cfg
	s.mu.Unlock()
}

// Defaults returns the host-wide spawn configuration.
func (s *Store) Defaults() SpawnConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// OnTerminal registers a hook run by Cleanup.
func (s *Store) OnTerminal(hook TerminalHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Spawn creates a Ready tracker for pick. A nil override uses the store
// defaults. Spawning for a removed agent returns a recoverable STALE_AGENT
// error.
func (s *Store) Spawn(ctx context.Context, pick core.Pick, override *SpawnConfig) (Tracker, error) {
	s.mu.Lock()
	if _, gone := s.removed[pick.Agent]; gone {
		s.mu.Unlock()
		return Tracker{}, s.stale(ctx, "spawn", pick.Agent)
	}
	cfg := s.defaults
	if override != nil {
		cfg = *override
	}
	s.seq++
	t := &Tracker{
		ID:         uuid.NewString(),
		Pick:       pick,
		State:      Ready,
		Extensions: newExtensions(cfg, pick, s.now()),
		seq:        s.seq,
	}
	s.trackers[t.ID] = t
	owned, ok := s.byAgent[pick.Agent]
	if !ok {
		owned = make(map[string]struct{})
		s.byAgent[pick.Agent] = owned
	}
	owned[t.ID] = struct{}{}
	snapshot := t.clone()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "tracker.spawn",
		slog.String("tracker_id", t.ID),
		slog.String("agent", string(pick.Agent)),
		slog.String("action_key", pick.ActionKey),
	)
	s.emitter.Emit(ctx, core.NewEvent(core.EventTrackerSpawned, pick.Agent, t.ID, map[string]any{
		"action_key": pick.ActionKey,
		"state":      Ready.String(),
	}))
	return snapshot, nil
}

// Transition moves a tracker to next. Illegal moves return an
// INVALID_TRANSITION error and leave the tracker unchanged. Moving to the
// current state is a no-op.
func (s *Store) Transition(ctx context.Context, id string, next State) (Tracker, error) {
	s.mu.Lock()
	t, ok := s.trackers[id]
	if !ok {
		s.mu.Unlock()
		return Tracker{}, errors.New(errors.CodeNotFound, "tracker not found", nil).
			WithContext("tracker_id", id).
			WithRecoverable(true)
	}
	from := t.State
	if from == next {
		snapshot := t.clone()
		s.mu.Unlock()
		return snapshot, nil
	}
	if !from.CanTransition(next) {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "tracker.transition.rejected",
			slog.String("tracker_id", id),
			slog.String("from", from.String()),
			slog.String("to", next.String()),
		)
		return Tracker{}, errors.New(errors.CodeInvalidTransition, "illegal lifecycle transition", nil).
			WithContext("tracker_id", id).
			WithContext("from", from.String()).
			WithContext("to", next.String())
	}
	t.State = next
	if rt, has := t.Extensions.RuntimeTimer(); has {
		now := s.now()
		if next == Running && rt.Start.IsZero() {
			rt.Start = now
		}
		if next.IsTerminal() {
			rt.End = now
		}
		t.Extensions.replace(rt)
	}
	snapshot := t.clone()
	s.mu.Unlock()

	s.metrics.RecordTransition(ctx, from.String(), next.String())
	s.logger.DebugContext(ctx, "tracker.transition",
		slog.String("tracker_id", id),
		slog.String("agent", string(snapshot.Pick.Agent)),
		slog.String("from", from.String()),
		slog.String("to", next.String()),
	)
	s.emitter.Emit(ctx, core.NewEvent(core.EventTrackerTransition, snapshot.Pick.Agent, id, map[string]any{
		"action_key": snapshot.Pick.ActionKey,
		"from":       from.String(),
		"to":         next.String(),
	}))
	return snapshot, nil
}

// Tick returns one dispatch per ticking tracker whose state should be
// processed, in spawn order, and advances their tick timers.
func (s *Store) Tick(ctx context.Context) []Dispatch {
	ctx, span := s.tracer.Start(ctx, "tracker.tick")
	defer span.End()

	s.mu.Lock()
	now := s.now()
	var due []*Tracker
	for _, t := range s.trackers {
		if t.Extensions.Ticking() && t.State.ShouldProcess() {
			due = append(due, t)
		}
	}
	sortBySeq(due)
	out := make([]Dispatch, 0, len(due))
	for _, t := range due {
		if tt, has := t.Extensions.TickTimer(); has {
			tt.Last = now
			tt.Ticks++
			t.Extensions.replace(tt)
		}
		out = append(out, Dispatch{
			TrackerID: t.ID,
			Agent:     t.Pick.Agent,
			Pawn:      t.Pick.Pawn,
			ActionKey: t.Pick.ActionKey,
			Context:   t.Pick.Context,
			State:     t.State,
		})
	}
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("arbiter.tracker.dispatched", len(out)))
	for _, d := range out {
		s.emitter.Emit(ctx, core.NewEvent(core.EventTrackerDispatched, d.Agent, d.TrackerID, map[string]any{
			"action_key": d.ActionKey,
			"state":      d.State.String(),
		}))
	}
	return out
}

// Cleanup runs the terminal hooks for every terminal tracker and then
// despawns them. It returns the despawned trackers in spawn order.
func (s *Store) Cleanup(ctx context.Context) []Tracker {
	s.mu.Lock()
	var done []*Tracker
	for _, t := range s.trackers {
		if t.State.IsTerminal() {
			done = append(done, t)
		}
	}
	sortBySeq(done)
	snapshots := make([]Tracker, len(done))
	for i, t := range done {
		snapshots[i] = t.clone()
	}
	hooks := append([]TerminalHook(nil), s.hooks...)
	s.mu.Unlock()

	for _, t := range snapshots {
		for _, hook := range hooks {
			hook(ctx, t)
		}
	}

	out := snapshots[:0]
	for _, t := range snapshots {
		if s.remove(ctx, t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// Despawn removes a tracker and its extensions.
func (s *Store) Despawn(ctx context.Context, id string) error {
	if !s.remove(ctx, id) {
		return errors.New(errors.CodeNotFound, "tracker not found", nil).
			WithContext("tracker_id", id).
			WithRecoverable(true)
	}
	return nil
}

// RemoveAgent despawns every tracker the agent owns and marks the agent
// gone. Later spawns for it fail with STALE_AGENT until RegisterAgent.
func (s *Store) RemoveAgent(ctx context.Context, agent core.AgentID) int {
	s.mu.Lock()
	s.removed[agent] = struct{}{}
	ids := make([]string, 0, len(s.byAgent[agent]))
	for id := range s.byAgent[agent] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	removed := 0
	for _, id := range ids {
		if s.remove(ctx, id) {
			removed++
		}
	}
	s.logger.InfoContext(ctx, "tracker.agent.removed",
		slog.String("agent", string(agent)),
		slog.Int("trackers", removed),
	)
	return removed
}

// RegisterAgent clears a previous removal.
func (s *Store) RegisterAgent(agent core.AgentID) {
	s.mu.Lock()
	delete(s.removed, agent)
	s.mu.Unlock()
}

// Get returns a tracker snapshot.
func (s *Store) Get(id string) (Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		return Tracker{}, false
	}
	return t.clone(), true
}

// ForAgent returns the agent's trackers in spawn order. Operations naming a
// removed agent are logged and return nothing.
func (s *Store) ForAgent(ctx context.Context, agent core.AgentID) []Tracker {
	s.mu.Lock()
	if _, gone := s.removed[agent]; gone {
		s.mu.Unlock()
		_ = s.stale(ctx, "list", agent)
		return nil
	}
	owned := make([]*Tracker, 0, len(s.byAgent[agent]))
	for id := range s.byAgent[agent] {
		owned = append(owned, s.trackers[id])
	}
	sortBySeq(owned)
	out := make([]Tracker, len(owned))
	for i, t := range owned {
		out[i] = t.clone()
	}
	s.mu.Unlock()
	return out
}

// List returns every tracker in spawn order.
func (s *Store) List() []Tracker {
	s.mu.Lock()
	all := make([]*Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		all = append(all, t)
	}
	sortBySeq(all)
	out := make([]Tracker, len(all))
	for i, t := range all {
		out[i] = t.clone()
	}
	s.mu.Unlock()
	return out
}

// Len returns the number of live trackers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

func (s *Store) remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	t, ok := s.trackers[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.trackers, id)
	if owned := s.byAgent[t.Pick.Agent]; owned != nil {
		delete(owned, id)
		if len(owned) == 0 {
			delete(s.byAgent, t.Pick.Agent)
		}
	}
	state := t.State
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "tracker.despawn",
		slog.String("tracker_id", id),
		slog.String("agent", string(t.Pick.Agent)),
		slog.String("state", state.String()),
	)
	s.emitter.Emit(ctx, core.NewEvent(core.EventTrackerDespawned, t.Pick.Agent, id, map[string]any{
		"action_key": t.Pick.ActionKey,
		"state":      state.String(),
	}))
	return true
}

func (s *Store) stale(ctx context.Context, op string, agent core.AgentID) error {
	s.logger.WarnContext(ctx, "tracker.agent.stale",
		slog.String("op", op),
		slog.String("agent", string(agent)),
	)
	return errors.New(errors.CodeStaleAgent, "agent no longer exists", nil).
		WithContext("agent", string(agent)).
		WithContext("op", op).
		WithRecoverable(true)
}

func sortBySeq(ts []*Tracker) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].seq < ts[j].seq })
}
