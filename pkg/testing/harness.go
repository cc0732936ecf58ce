// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/consider"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/pipeline"
	"github.com/jllopis/arbiter/pkg/tracker"
)

// HarnessOption configures how a scenario is wired.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	logger       *slog.Logger
	loader       *catalog.Loader
	emitters     core.Emitters
	engineOpts   []engine.Option
	pipelineOpts []pipeline.Option
	trackerOpts  []tracker.Option
	fetchOpts    []fetch.Option
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(c *harnessConfig) { c.logger = logger }
}

// WithLoader sets the loader used for action-set files.
func WithLoader(loader *catalog.Loader) HarnessOption {
	return func(c *harnessConfig) { c.loader = loader }
}

// WithEmitter receives pick and tracker events alongside the harness's
// own collector.
func WithEmitter(emitter core.EventEmitter) HarnessOption {
	return func(c *harnessConfig) { c.emitters = append(c.emitters, emitter) }
}

// WithEngineOptions appends engine options after the scenario's own.
func WithEngineOptions(opts ...engine.Option) HarnessOption {
	return func(c *harnessConfig) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithPipelineOptions appends pipeline options.
func WithPipelineOptions(opts ...pipeline.Option) HarnessOption {
	return func(c *harnessConfig) { c.pipelineOpts = append(c.pipelineOpts, opts...) }
}

// WithTrackerOptions appends tracker store options. Scenario tracker
// defaults still win.
func WithTrackerOptions(opts ...tracker.Option) HarnessOption {
	return func(c *harnessConfig) { c.trackerOpts = append(c.trackerOpts, opts...) }
}

// WithFetchOptions appends options for the fetcher registry, such as a
// fetch.Policy guarding the scripted fetchers.
func WithFetchOptions(opts ...fetch.Option) HarnessOption {
	return func(c *harnessConfig) { c.fetchOpts = append(c.fetchOpts, opts...) }
}

// Harness is a scenario wired to a live pipeline.
type Harness struct {
	Catalog        *catalog.Catalog
	Pipeline       *pipeline.Pipeline
	Trackers       *tracker.Store
	Events         *EventCollector
	Fetchers       map[string]*ScriptedFetcher
	Considerations map[string]*ScriptedConsideration

	scenario   *Scenario
	registry   *fetch.Registry
	logger     *slog.Logger
	deliveries []delivery
}

type delivery struct {
	due  uint64
	resp fetch.Response
}

// StepReport is one tick's pipeline report plus the tracker steps applied
// before it.
type StepReport struct {
	pipeline.TickReport
	Transitions []AppliedStep
}

// AppliedStep records the outcome of one TrackerStep.
type AppliedStep struct {
	Step    TrackerStep
	Tracker tracker.Tracker
	Err     error
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	Steps  []StepReport
	Events []core.Event
	// Err is the error that stopped the run, if any.
	Err error
}

// Build wires the scenario: catalog, scripted registries, engine, tracker
// store and pipeline.
func (s *Scenario) Build(opts ...HarnessOption) (*Harness, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg := harnessConfig{logger: slog.Default(), loader: catalog.NewLoader()}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Harness{
		Catalog:        catalog.New(catalog.WithLogger(cfg.logger)),
		Events:         NewEventCollector(),
		Fetchers:       make(map[string]*ScriptedFetcher),
		Considerations: make(map[string]*ScriptedConsideration),
		scenario:       s,
		registry:       fetch.NewRegistry(append([]fetch.Option{fetch.WithLogger(cfg.logger)}, cfg.fetchOpts...)...),
		logger:         cfg.logger,
	}

	for _, file := range s.ActionSetFiles {
		if !filepath.IsAbs(file) && s.baseDir != "" {
			file = filepath.Join(s.baseDir, file)
		}
		set, err := cfg.loader.LoadFile(file)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load action set", err).WithContext("path", file)
		}
		if err := h.Catalog.Upsert(*set); err != nil {
			return nil, err
		}
	}
	for _, set := range s.ActionSets {
		if err := h.Catalog.Upsert(set); err != nil {
			return nil, err
		}
	}

	var deferred []string
	for _, key := range sortedKeys(s.Fetchers) {
		script := s.Fetchers[key]
		f := NewScriptedFetcher(refs(script.Contexts)...)
		for agent, contexts := range script.Agents {
			f.ForAgent(core.AgentID(agent), refs(contexts)...)
		}
		if err := h.registry.Register(key, f); err != nil {
			return nil, err
		}
		h.Fetchers[key] = f
		if script.Deferred {
			deferred = append(deferred, key)
		}
	}

	considerations := consider.NewRegistry()
	for _, key := range sortedKeys(s.Considerations) {
		script := s.Considerations[key]
		c := NewScriptedConsideration(script.Default)
		for ref, v := range script.Scores {
			c.Score(ref, v)
		}
		for _, ref := range script.Fail {
			c.Fail(ref, errors.New(errors.CodeInternal, "scripted failure", nil).WithContext("context", ref))
		}
		if err := considerations.Register(key, c); err != nil {
			return nil, err
		}
		h.Considerations[key] = c
	}

	engineOpts := []engine.Option{engine.WithLogger(cfg.logger)}
	if s.CurveMissStrategy != "" {
		strategy, _ := engine.ParseCurveMissStrategy(s.CurveMissStrategy)
		engineOpts = append(engineOpts, engine.WithCurveMissStrategy(strategy))
	}
	e := engine.New(h.Catalog, h.registry, considerations, append(engineOpts, cfg.engineOpts...)...)

	emitter := append(core.Emitters{h.Events}, cfg.emitters...)
	trackerOpts := append([]tracker.Option{
		tracker.WithLogger(cfg.logger),
		tracker.WithMetrics(e.Metrics()),
	}, cfg.trackerOpts...)
	trackerOpts = append(trackerOpts, tracker.WithEmitter(emitter))
	if s.TrackerDefaults != nil {
		trackerOpts = append(trackerOpts, tracker.WithDefaults(*s.TrackerDefaults))
	}
	h.Trackers = tracker.NewStore(trackerOpts...)

	pipelineOpts := append([]pipeline.Option{
		pipeline.WithLogger(cfg.logger),
		pipeline.WithTrackers(h.Trackers),
		pipeline.WithEmitter(emitter),
		pipeline.WithDeferredFetchers(deferred...),
	}, cfg.pipelineOpts...)
	h.Pipeline = pipeline.New(e, pipelineOpts...)
	return h, nil
}

// Step submits the requests and deliveries due this tick, applies tracker
// steps, runs one pipeline tick and answers the deferred fetches it left.
func (h *Harness) Step(ctx context.Context) (StepReport, error) {
	tick := h.Pipeline.CurrentTick() + 1

	for _, a := range h.scenario.Agents {
		if !a.due(tick) {
			continue
		}
		h.Pipeline.Submit(pipeline.Request{
			Agent:   core.AgentID(a.ID),
			Pawn:    core.PawnID(a.Pawn),
			LOD:     a.level,
			Sources: a.Sources,
			Spawn:   a.Spawn,
		})
	}

	remaining := h.deliveries[:0]
	for _, d := range h.deliveries {
		if d.due <= tick {
			h.Pipeline.DeliverContexts(d.resp)
			continue
		}
		remaining = append(remaining, d)
	}
	h.deliveries = remaining

	var step StepReport
	for _, ts := range h.scenario.TrackerSteps {
		if ts.Tick == tick {
			step.Transitions = append(step.Transitions, h.apply(ctx, ts))
		}
	}

	report, err := h.Pipeline.Tick(ctx)
	step.TickReport = report
	if err != nil {
		return step, err
	}

	for _, req := range h.Pipeline.PendingFetches() {
		after := uint64(max(h.scenario.Fetchers[req.Template.ContextFetcher].DeliverAfter, 1))
		h.deliveries = append(h.deliveries, delivery{due: tick + after, resp: h.registry.Serve(ctx, req)})
	}
	return step, nil
}

// Run drives ticks steps, or the scenario's Ticks when ticks is zero, and
// stops at the first error.
func (h *Harness) Run(ctx context.Context, ticks int) *ScenarioResult {
	if ticks <= 0 {
		ticks = max(h.scenario.Ticks, 1)
	}
	result := &ScenarioResult{}
	for i := 0; i < ticks; i++ {
		step, err := h.Step(ctx)
		result.Steps = append(result.Steps, step)
		if err != nil {
			h.logger.ErrorContext(ctx, "scenario.tick.failed",
				slog.String("scenario", h.scenario.Name),
				slog.Uint64("tick", step.Tick),
				slog.String("error", err.Error()),
			)
			result.Err = err
			break
		}
	}
	result.Events = h.Events.Events()
	return result
}

func (h *Harness) apply(ctx context.Context, ts TrackerStep) AppliedStep {
	applied := AppliedStep{Step: ts}
	agent := core.AgentID(ts.Agent)
	if ts.Remove {
		h.Trackers.RemoveAgent(ctx, agent)
		return applied
	}
	owned := h.Trackers.ForAgent(ctx, agent)
	for i := len(owned) - 1; i >= 0; i-- {
		if ts.ActionKey == "" || owned[i].Pick.ActionKey == ts.ActionKey {
			applied.Tracker, applied.Err = h.Trackers.Transition(ctx, owned[i].ID, ts.To)
			return applied
		}
	}
	applied.Err = errors.New(errors.CodeNotFound, "no tracker for step", nil).
		WithContext("agent", ts.Agent).
		WithContext("action_key", ts.ActionKey)
	return applied
}

// Execute builds and runs the scenario.
func (s *Scenario) Execute(ctx context.Context, opts ...HarnessOption) (*ScenarioResult, error) {
	h, err := s.Build(opts...)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, 0), nil
}

// Run builds and runs the scenario, failing the test if it cannot be wired.
func (s *Scenario) Run(t *testing.T, opts ...HarnessOption) *ScenarioResult {
	t.Helper()
	result, err := s.Execute(context.Background(), opts...)
	if err != nil {
		t.Fatalf("scenario %q setup failed: %v", s.Name, err)
	}
	return result
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()
	for _, exp := range scenario.Expectations() {
		if err := exp.Check(r); err != nil {
			t.Errorf("expectation %q failed: %v", exp.Description(), err)
		}
	}
}

// Picks returns every pick in tick order.
func (r *ScenarioResult) Picks() []core.Pick {
	var out []core.Pick
	for _, s := range r.Steps {
		out = append(out, s.Picks...)
	}
	return out
}

// PickFor returns agent's pick at tick.
func (r *ScenarioResult) PickFor(tick uint64, agent core.AgentID) (core.Pick, bool) {
	for _, s := range r.Steps {
		if s.Tick != tick {
			continue
		}
		for _, p := range s.Picks {
			if p.Agent == agent {
				return p, true
			}
		}
	}
	return core.Pick{}, false
}

// TransitionErrors returns the errors from rejected tracker steps.
func (r *ScenarioResult) TransitionErrors() []error {
	var out []error
	for _, s := range r.Steps {
		for _, a := range s.Transitions {
			if a.Err != nil {
				out = append(out, a.Err)
			}
		}
	}
	return out
}

func refs(contexts []string) []core.ContextRef {
	out := make([]core.ContextRef, len(contexts))
	for i, c := range contexts {
		out[i] = c
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
