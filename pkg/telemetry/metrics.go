// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for decision metrics.
const MeterName = "arbiter/engine"

// DecisionMetrics records decision-round activity. A nil *DecisionMetrics is
// valid and records nothing.
type DecisionMetrics struct {
	// rounds counts finished decision rounds, split by whether one picked
	rounds metric.Int64Counter

	// picks counts emitted picks by action key
	picks metric.Int64Counter

	// pruned counts templates dropped before scoring, by reason
	pruned metric.Int64Counter

	// aborted counts contexts cut short by the early-termination bound
	aborted metric.Int64Counter

	// considerations counts consideration evaluations
	considerations metric.Int64Counter

	// misses counts unresolved fetcher, consideration and curve keys
	misses metric.Int64Counter

	// transitions counts tracker state changes
	transitions metric.Int64Counter

	// pickScore records the final score of each pick
	pickScore metric.Float64Histogram

	// stageLatencyMs records pipeline stage duration
	stageLatencyMs metric.Float64Histogram
}

// NewDecisionMetrics creates decision metrics on the global meter provider.
func NewDecisionMetrics(ctx context.Context) (*DecisionMetrics, error) {
	return NewDecisionMetricsWithMeter(otel.Meter(MeterName))
}

// NewDecisionMetricsWithMeter creates decision metrics on meter.
func NewDecisionMetricsWithMeter(meter metric.Meter) (*DecisionMetrics, error) {
	var (
		dm  DecisionMetrics
		err error
	)
	if dm.rounds, err = meter.Int64Counter("arbiter.rounds.total",
		metric.WithDescription("Decision rounds completed")); err != nil {
		return nil, err
	}
	if dm.picks, err = meter.Int64Counter("arbiter.picks.total",
		metric.WithDescription("Actions picked by action key")); err != nil {
		return nil, err
	}
	if dm.pruned, err = meter.Int64Counter("arbiter.templates.pruned",
		metric.WithDescription("Templates skipped before scoring by reason")); err != nil {
		return nil, err
	}
	if dm.aborted, err = meter.Int64Counter("arbiter.contexts.aborted",
		metric.WithDescription("Contexts abandoned by the early-termination bound")); err != nil {
		return nil, err
	}
	if dm.considerations, err = meter.Int64Counter("arbiter.considerations.evaluated",
		metric.WithDescription("Consideration evaluations")); err != nil {
		return nil, err
	}
	if dm.misses, err = meter.Int64Counter("arbiter.resolution.misses",
		metric.WithDescription("Unresolved registry keys by kind")); err != nil {
		return nil, err
	}
	if dm.transitions, err = meter.Int64Counter("arbiter.tracker.transitions",
		metric.WithDescription("Tracker state transitions")); err != nil {
		return nil, err
	}
	if dm.pickScore, err = meter.Float64Histogram("arbiter.picks.score",
		metric.WithDescription("Final score of picked actions")); err != nil {
		return nil, err
	}
	if dm.stageLatencyMs, err = meter.Float64Histogram("arbiter.pipeline.stage.latency_ms",
		metric.WithDescription("Pipeline stage latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &dm, nil
}

// RecordRound counts one finished round.
func (dm *DecisionMetrics) RecordRound(ctx context.Context, picked bool) {
	if dm == nil {
		return
	}
	dm.rounds.Add(ctx, 1, metric.WithAttributes(attribute.Bool(AttrPicked, picked)))
}

// RecordPick counts a pick and records its score.
func (dm *DecisionMetrics) RecordPick(ctx context.Context, actionKey string, score float64) {
	if dm == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrActionKey, actionKey))
	dm.picks.Add(ctx, 1, attrs)
	dm.pickScore.Record(ctx, score, attrs)
}

// RecordPrune counts a template skipped for reason.
func (dm *DecisionMetrics) RecordPrune(ctx context.Context, reason string) {
	if dm == nil {
		return
	}
	dm.pruned.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPruneReason, reason)))
}

// RecordAbortedContext counts a context cut short by early termination.
func (dm *DecisionMetrics) RecordAbortedContext(ctx context.Context) {
	if dm == nil {
		return
	}
	dm.aborted.Add(ctx, 1)
}

// RecordConsiderations counts n consideration evaluations.
func (dm *DecisionMetrics) RecordConsiderations(ctx context.Context, n int) {
	if dm == nil || n <= 0 {
		return
	}
	dm.considerations.Add(ctx, int64(n))
}

// RecordResolutionMiss counts an unresolved key of kind.
func (dm *DecisionMetrics) RecordResolutionMiss(ctx context.Context, kind string) {
	if dm == nil {
		return
	}
	dm.misses.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrResolutionKind, kind)))
}

// RecordTransition counts a tracker state change.
func (dm *DecisionMetrics) RecordTransition(ctx context.Context, from, to string) {
	if dm == nil {
		return
	}
	dm.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStateFrom, from),
		attribute.String(AttrStateTo, to),
	))
}

// RecordStage records how long a pipeline stage took.
func (dm *DecisionMetrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if dm == nil {
		return
	}
	dm.stageLatencyMs.Record(ctx, float64(d.Microseconds())/1000,
		metric.WithAttributes(attribute.String(AttrStage, stage)))
}
