// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives decision rounds once per simulation tick as a
// sequence of stages: gather requests, collect delivered contexts, fetch
// and score, arbitrate and emit, then advance trackers. Stages hand work to
// each other through queues, so a round whose contexts are produced out of
// band simply stays open until a later tick delivers them.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/lod"
	"github.com/jllopis/arbiter/pkg/telemetry"
	"github.com/jllopis/arbiter/pkg/tracker"
)

// Stage names reported to metrics and spans.
const (
	StageGather    = "gather"
	StageCollect   = "collect"
	StageEvaluate  = "evaluate"
	StageArbitrate = "arbitrate"
	StageTrackers  = "trackers"
)

// Request asks for one agent's next action.
type Request struct {
	Agent core.AgentID
	Pawn  core.PawnID
	// LOD is the agent's level of detail; nil means lod.Normal.
	LOD *lod.Level
	// Sources names the action sets the agent can draw from.
	Sources []string
	// Spawn overrides the tracker store defaults for the picked action.
	Spawn *tracker.SpawnConfig
}

// PickSink receives every emitted pick.
type PickSink func(ctx context.Context, pick core.Pick)

// TickReport summarizes one tick.
type TickReport struct {
	Tick       uint64
	Picks      []core.Pick
	Dispatches []tracker.Dispatch
	Despawned  []tracker.Tracker
	// Dropped counts duplicate requests for an agent within the tick.
	Dropped int
	// Open counts rounds still waiting for delivered contexts.
	Open int
}

type round struct {
	*engine.Round
	req       Request
	templates []catalog.Template
	responses []fetch.Response
	plans     map[catalog.Identity]*engine.Plan
	pending   int
	seen      uint64
}

func (r *round) plan(ctx context.Context, e *engine.Engine, t catalog.Template) (*engine.Plan, error) {
	id := t.Identity()
	if plan, ok := r.plans[id]; ok {
		return plan, nil
	}
	plan, err := e.Plan(ctx, t)
	if err != nil {
		return nil, err
	}
	r.plans[id] = plan
	return plan, nil
}

// Pipeline runs decision rounds for many agents. Submit and DeliverContexts
// may be called from any goroutine; Tick is driven by a single caller.
type Pipeline struct {
	engine      *engine.Engine
	trackers    *tracker.Store
	emitters    []core.EventEmitter
	sinks       []PickSink
	deferred    map[string]struct{}
	concurrency int

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.DecisionMetrics

	requests  Queue[Request]
	responses Queue[fetch.Response]
	outbound  Queue[fetch.Request]

	tickMu sync.Mutex
	tick   uint64
	open   map[core.AgentID]*round
	byID   map[string]*round
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTrackers spawns a tracker for every pick.
func WithTrackers(store *tracker.Store) Option {
	return func(p *Pipeline) { p.trackers = store }
}

// WithEmitter adds a sink for action-picked events.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(p *Pipeline) {
		if emitter != nil {
			p.emitters = append(p.emitters, emitter)
		}
	}
}

// WithSink adds a pick callback.
func WithSink(sink PickSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithDeferredFetchers marks fetcher keys whose contexts are produced out
// of band. Requests for them are queued for PendingFetches and answered
// through DeliverContexts.
func WithDeferredFetchers(keys ...string) Option {
	return func(p *Pipeline) {
		for _, k := range keys {
			p.deferred[k] = struct{}{}
		}
	}
}

// WithConcurrency bounds how many agents are evaluated at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline over e.
func New(e *engine.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:      e,
		deferred:    make(map[string]struct{}),
		concurrency: 8,
		logger:      slog.Default(),
		tracer:      otel.Tracer("arbiter/pipeline"),
		metrics:     e.Metrics(),
		open:        make(map[core.AgentID]*round),
		byID:        make(map[string]*round),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the scoring engine.
func (p *Pipeline) Engine() *engine.Engine { return p.engine }

// Trackers returns the tracker store, which may be nil.
func (p *Pipeline) Trackers() *tracker.Store { return p.trackers }

// Submit queues a decision request for the next tick.
func (p *Pipeline) Submit(reqs ...Request) {
	p.requests.Push(reqs...)
}

// DeliverContexts queues fetch responses for the next tick. A response
// whose round has already closed is scored into the agent's current round.
func (p *Pipeline) DeliverContexts(resps ...fetch.Response) {
	p.responses.Push(resps...)
}

// PendingFetches drains the requests waiting on deferred fetchers, ordered
// by agent.
func (p *Pipeline) PendingFetches() []fetch.Request {
	reqs := p.outbound.Drain()
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Agent < reqs[j].Agent })
	return reqs
}

// CurrentTick returns the last tick run.
func (p *Pipeline) CurrentTick() uint64 {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return p.tick
}

// Tick runs every stage once. The only error is a CURVE_NOT_FOUND failure
// under the abort strategy, which discards the rounds touched this tick.
func (p *Pipeline) Tick(ctx context.Context) (TickReport, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.tick++
	tick := p.tick
	ctx = core.WithTick(ctx, tick)
	ctx, span := p.tracer.Start(ctx, "pipeline.tick",
		trace.WithAttributes(attribute.Int64(telemetry.AttrTick, int64(tick))))
	defer span.End()

	report := TickReport{Tick: tick}
	var active []*round

	p.stage(ctx, StageGather, func(ctx context.Context) error {
		active = p.gather(ctx, tick, &report)
		return nil
	})
	p.stage(ctx, StageCollect, func(ctx context.Context) error {
		active = p.collect(ctx, tick, active)
		return nil
	})
	err := p.stage(ctx, StageEvaluate, func(ctx context.Context) error {
		return p.evaluate(ctx, tick, active)
	})
	if err != nil {
		for _, r := range active {
			p.close(r)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	p.stage(ctx, StageArbitrate, func(ctx context.Context) error {
		report.Picks = p.arbitrate(ctx, active)
		return nil
	})
	if p.trackers != nil {
		p.stage(ctx, StageTrackers, func(ctx context.Context) error {
			report.Dispatches = p.trackers.Tick(ctx)
			report.Despawned = p.trackers.Cleanup(ctx)
			return nil
		})
	}
	report.Open = len(p.open)
	span.SetAttributes(
		attribute.Int("arbiter.pipeline.picks", len(report.Picks)),
		attribute.Int("arbiter.pipeline.open_rounds", report.Open),
	)
	return report, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline."+name,
		trace.WithAttributes(attribute.String(telemetry.AttrStage, name)))
	defer span.End()
	err := fn(ctx)
	p.metrics.RecordStage(ctx, name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Pipeline) gather(ctx context.Context, tick uint64, report *TickReport) []*round {
	var active []*round
	seen := make(map[core.AgentID]struct{})
	for _, req := range p.requests.Drain() {
		if _, dup := seen[req.Agent]; dup {
			report.Dropped++
			p.logger.WarnContext(ctx, "pipeline.request.duplicate", slog.String("agent", string(req.Agent)))
			continue
		}
		seen[req.Agent] = struct{}{}
		if req.LOD != nil && *req.LOD == lod.Inactive {
			p.logger.DebugContext(ctx, "pipeline.request.inactive", slog.String("agent", string(req.Agent)))
			continue
		}
		if old, ok := p.open[req.Agent]; ok {
			p.logger.WarnContext(ctx, "pipeline.round.superseded",
				slog.String("agent", string(req.Agent)),
				slog.String("round_id", old.ID),
				slog.Int("pending", old.pending),
			)
			p.close(old)
		}
		r := p.openRound(tick, req)
		if cat := p.engine.Catalog(); cat != nil {
			r.templates = cat.Resolve(ctx, req.Sources)
		}
		active = append(active, r)
	}
	return active
}

func (p *Pipeline) collect(ctx context.Context, tick uint64, active []*round) []*round {
	for _, resp := range p.responses.Drain() {
		if resp.Tick == 0 {
			resp.Tick = tick
		}
		r, ok := p.byID[resp.Request.RoundID]
		if ok {
			r.pending--
		} else {
			r = p.open[resp.Request.Agent]
			if r == nil {
				r = p.openRound(tick, Request{Agent: resp.Request.Agent, Pawn: resp.Request.Pawn})
				active = append(active, r)
			}
			p.logger.DebugContext(ctx, "pipeline.response.stale",
				slog.String("agent", string(resp.Request.Agent)),
				slog.String("stale_round_id", resp.Request.RoundID),
				slog.String("round_id", r.ID),
			)
		}
		if r.seen != tick {
			r.seen = tick
			active = append(active, r)
		}
		r.responses = append(r.responses, resp)
	}
	return active
}

func (p *Pipeline) evaluate(ctx context.Context, tick uint64, active []*round) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, r := range active {
		g.Go(func() error { return p.evaluateRound(gctx, tick, r) })
	}
	return g.Wait()
}

// evaluateRound owns r for the duration of the call. Templates run in order
// so the ceiling check always precedes a template's fetch.
func (p *Pipeline) evaluateRound(ctx context.Context, tick uint64, r *round) error {
	templates := r.templates
	r.templates = nil
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.engine.Eligible(ctx, r.Round, t, r.req.LOD) != "" {
			continue
		}
		plan, err := r.plan(ctx, p.engine, t)
		if err != nil {
			return err
		}
		if plan == nil {
			continue
		}
		req := fetch.Request{RoundID: r.ID, Tick: tick, Agent: r.Agent, Pawn: r.Pawn, Template: t}
		if _, deferred := p.deferred[t.ContextFetcher]; deferred {
			r.pending++
			p.outbound.Push(req)
			continue
		}
		p.engine.Score(ctx, r.Round, plan, p.engine.Fetchers().Contexts(ctx, req))
	}

	responses := r.responses
	r.responses = nil
	for _, resp := range responses {
		t := resp.Request.Template
		if r.Ceiling(t) {
			p.metrics.RecordPrune(ctx, engine.PruneCeiling)
			continue
		}
		plan, err := r.plan(ctx, p.engine, t)
		if err != nil {
			return err
		}
		p.engine.Score(ctx, r.Round, plan, resp.Contexts)
	}
	return nil
}

func (p *Pipeline) arbitrate(ctx context.Context, active []*round) []core.Pick {
	var picks []core.Pick
	for _, r := range active {
		if r.pending > 0 {
			continue
		}
		pick, ok := p.engine.Finish(ctx, r.Round)
		p.close(r)
		if !ok {
			continue
		}
		picks = append(picks, pick)
		p.emit(ctx, pick, r.req.Spawn)
	}
	return picks
}

func (p *Pipeline) emit(ctx context.Context, pick core.Pick, spawn *tracker.SpawnConfig) {
	event := core.PickedEvent(pick)
	for _, e := range p.emitters {
		e.Emit(ctx, event)
	}
	for _, sink := range p.sinks {
		sink(ctx, pick)
	}
	if p.trackers == nil {
		return
	}
	if _, err := p.trackers.Spawn(ctx, pick, spawn); err != nil {
		p.logger.WarnContext(ctx, "pipeline.tracker.spawn_failed",
			slog.String("agent", string(pick.Agent)),
			slog.String("action_key", pick.ActionKey),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) openRound(tick uint64, req Request) *round {
	r := &round{
		Round: p.engine.NewRound(core.NewRoundID(), tick, req.Agent, req.Pawn),
		req:   req,
		plans: make(map[catalog.Identity]*engine.Plan),
		seen:  tick,
	}
	p.open[req.Agent] = r
	p.byID[r.ID] = r
	return r
}

func (p *Pipeline) close(r *round) {
	if p.open[r.Agent] == r {
		delete(p.open, r.Agent)
	}
	delete(p.byID, r.ID)
}
