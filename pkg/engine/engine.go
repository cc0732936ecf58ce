// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine scores candidate (template, context) pairs and arbitrates
// one winner per agent per decision round.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/consider"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/curve"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/lod"
	"github.com/jllopis/arbiter/pkg/telemetry"
)

// Prune reasons reported to metrics.
const (
	PruneLOD       = "lod"
	PruneCeiling   = "ceiling"
	PruneCurveMiss = "curve_miss"
)

// Engine scores templates for agents. It is safe for concurrent use across
// distinct rounds.
type Engine struct {
	catalog        *catalog.Catalog
	fetchers       *fetch.Registry
	considerations *consider.Registry
	curves         *curve.Registry

	mu       sync.RWMutex
	strategy CurveMissStrategy
	fallback FallbackFunc

	tie     TieBreaker
	logger  *slog.Logger
	metrics *telemetry.DecisionMetrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCurves sets the curve registry. Built-ins are always available.
func WithCurves(r *curve.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.curves = r
		}
	}
}

// WithCurveMissStrategy sets the unresolved-curve policy.
func WithCurveMissStrategy(s CurveMissStrategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithFallback sets the curve substituted under the default strategies.
func WithFallback(f FallbackFunc) Option {
	return func(e *Engine) {
		if f != nil {
			e.fallback = f
		}
	}
}

// WithTieBreaker installs a tie-breaker on every round the engine opens.
func WithTieBreaker(tb TieBreaker) Option {
	return func(e *Engine) { e.tie = tb }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the decision metrics recorder.
func WithMetrics(m *telemetry.DecisionMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine over the given catalog and registries.
func New(cat *catalog.Catalog, fetchers *fetch.Registry, considerations *consider.Registry, opts ...Option) *Engine {
	e := &Engine{
		catalog:        cat,
		fetchers:       fetchers,
		considerations: considerations,
		curves:         curve.NewRegistry(),
		strategy:       CurveMissAbort,
		fallback:       FallbackTo(curve.Linear),
		logger:         slog.Default(),
		tracer:         otel.Tracer("arbiter/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetCurveMissStrategy swaps the unresolved-curve policy at runtime.
func (e *Engine) SetCurveMissStrategy(s CurveMissStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
}

// CurveMissStrategy returns the active unresolved-curve policy.
func (e *Engine) CurveMissStrategy() CurveMissStrategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy
}

// SetFallback swaps the fallback curve source at runtime.
func (e *Engine) SetFallback(f FallbackFunc) {
	if f == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = f
}

// Catalog returns the engine's template catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Fetchers returns the engine's fetcher registry.
func (e *Engine) Fetchers() *fetch.Registry { return e.fetchers }

// Metrics returns the engine's metrics recorder, which may be nil.
func (e *Engine) Metrics() *telemetry.DecisionMetrics { return e.metrics }

// NewRound opens a round carrying the engine's tie-breaker.
func (e *Engine) NewRound(id string, tick uint64, agent core.AgentID, pawn core.PawnID) *Round {
	return NewRound(id, tick, agent, pawn).WithTieBreaker(e.tie)
}

// Eligible applies the level-of-detail and priority-ceiling gates that run
// before any fetch or consideration work. It returns the prune reason, or
// "" when t may proceed.
func (e *Engine) Eligible(ctx context.Context, r *Round, t catalog.Template, level *lod.Level) string {
	if !lod.IsEligible(t.Band(), level) {
		e.metrics.RecordPrune(ctx, PruneLOD)
		return PruneLOD
	}
	if r.Ceiling(t) {
		e.metrics.RecordPrune(ctx, PruneCeiling)
		e.logger.DebugContext(ctx, "engine.template.ceiling",
			slog.String("template", t.Name),
			slog.Float64("priority", t.Priority),
			slog.Float64("best", r.BestScore()),
		)
		return PruneCeiling
	}
	return ""
}

// DecisionRequest asks for one agent's next action.
type DecisionRequest struct {
	Agent core.AgentID
	Pawn  core.PawnID
	// LOD is the agent's level of detail; nil means lod.Normal.
	LOD *lod.Level
	// Sources names the action sets the agent can currently draw from.
	Sources []string
	// Tick is the simulation tick the request belongs to.
	Tick uint64
}

// Decide runs a complete decision round synchronously: templates are
// gathered from the request's sources, gated, fetched and scored in order.
// It returns false when nothing scored above zero. The only error is a
// CURVE_NOT_FOUND failure under the abort strategy.
func (e *Engine) Decide(ctx context.Context, req DecisionRequest) (core.Pick, bool, error) {
	ctx, roundID := core.EnsureRoundID(ctx)
	round := e.NewRound(roundID, req.Tick, req.Agent, req.Pawn)

	ctx, span := e.tracer.Start(ctx, "engine.decide",
		trace.WithAttributes(telemetry.RoundAttributes(round.ID, string(round.Agent), string(round.Pawn), round.Tick)...))
	defer span.End()

	if req.LOD != nil && *req.LOD == lod.Inactive {
		span.SetAttributes(attribute.String(telemetry.AttrLOD, lod.Inactive.String()))
		return core.Pick{}, false, nil
	}

	var templates []catalog.Template
	if e.catalog != nil {
		templates = e.catalog.Resolve(ctx, req.Sources)
	}
	span.SetAttributes(attribute.Int(telemetry.AttrTemplates, len(templates)))

	for _, t := range templates {
		if e.Eligible(ctx, round, t, req.LOD) != "" {
			continue
		}
		plan, err := e.Plan(ctx, t)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return core.Pick{}, false, err
		}
		if plan == nil {
			continue
		}
		contexts := e.fetchers.Contexts(ctx, fetch.Request{
			RoundID:  round.ID,
			Tick:     round.Tick,
			Agent:    round.Agent,
			Pawn:     round.Pawn,
			Template: t,
		})
		e.Score(ctx, round, plan, contexts)
	}

	pick, ok := e.Finish(ctx, round)
	span.SetAttributes(telemetry.PickAttributes(ok, pick.ActionKey, pick.Score)...)
	return pick, ok, nil
}

// Finish closes a round, recording metrics and logging the outcome.
func (e *Engine) Finish(ctx context.Context, r *Round) (core.Pick, bool) {
	pick, ok := r.Pick()
	e.metrics.RecordRound(ctx, ok)
	if !ok {
		e.logger.DebugContext(ctx, "engine.round.empty",
			slog.String("round_id", r.ID),
			slog.String("agent", string(r.Agent)),
		)
		return pick, false
	}
	e.metrics.RecordPick(ctx, pick.ActionKey, pick.Score)
	e.logger.InfoContext(ctx, "engine.round.pick",
		slog.String("round_id", r.ID),
		slog.String("agent", string(r.Agent)),
		slog.String("action", pick.ActionName),
		slog.String("action_key", pick.ActionKey),
		slog.String("context", core.DescribeContext(pick.Context)),
		slog.Float64("score", pick.Score),
	)
	return pick, true
}

// Score evaluates every context of plan's template against r, offering
// each surviving candidate. It returns how many contexts completed their
// consideration chain.
func (e *Engine) Score(ctx context.Context, r *Round, plan *Plan, contexts []core.ContextRef) int {
	if plan == nil {
		return 0
	}
	t := plan.Template
	id := t.Identity()
	scored := 0
	for _, c := range contexts {
		if r.Ceiling(t) {
			e.metrics.RecordPrune(ctx, PruneCeiling)
			return scored
		}
		final, ok := e.scoreContext(ctx, r, plan, id, c)
		if !ok {
			continue
		}
		scored++
		if r.Offer(Candidate{Template: t, Context: c, Score: final}) {
			e.logger.DebugContext(ctx, "engine.round.leader",
				slog.String("agent", string(r.Agent)),
				slog.String("template", t.Name),
				slog.Float64("score", final),
			)
		}
	}
	return scored
}

func (e *Engine) scoreContext(ctx context.Context, r *Round, plan *Plan, id catalog.Identity, c core.ContextRef) (float64, bool) {
	bound := r.templateBound(id)
	product := 1.0
	evaluated := 0
	defer func() { e.metrics.RecordConsiderations(ctx, evaluated) }()

	for _, step := range plan.steps {
		raw, err := step.consideration.Evaluate(ctx, r.Agent, r.Pawn, c)
		evaluated++
		if err != nil || math.IsNaN(raw) {
			attrs := []any{
				slog.String("template", plan.Template.Name),
				slog.String("consideration", step.spec.Consideration),
				slog.String("agent", string(r.Agent)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			e.logger.WarnContext(ctx, "engine.consideration.failed", attrs...)
			return 0, false
		}
		scaled := Rescale(raw, step.min, step.max)
		factor := step.sampler.Sample(scaled)
		product *= factor
		e.logger.DebugContext(ctx, "engine.consideration.scored",
			slog.String("template", plan.Template.Name),
			slog.String("consideration", step.spec.Consideration),
			slog.Float64("raw", raw),
			slog.Float64("scaled", scaled),
			slog.Float64("factor", factor),
			slog.Float64("product", product),
		)
		if product <= bound {
			e.metrics.RecordAbortedContext(ctx)
			return 0, false
		}
	}

	r.recordProduct(id, product)
	final := Correct(product, evaluated) * plan.Template.Priority
	return final, true
}
