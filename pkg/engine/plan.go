package engine

import (
	"context"
	"log/slog"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/consider"
	"github.com/jllopis/arbiter/pkg/curve"
	"github.com/jllopis/arbiter/pkg/errors"
)

// Plan is a template with its considerations and curves resolved.
// Considerations that could not be resolved are already dropped.
type Plan struct {
	Template catalog.Template
	steps    []step
}

type step struct {
	spec          catalog.ConsiderationSpec
	consideration consider.Consideration
	sampler       curve.Sampler
	min, max      float64
}

// Steps reports how many considerations the plan will evaluate.
func (p *Plan) Steps() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Plan resolves t's considerations and curves. A nil plan with a nil error
// means the template is skipped for this round under the skip_action
// strategy. Under the abort strategy an unresolved curve returns a
// CURVE_NOT_FOUND error.
func (e *Engine) Plan(ctx context.Context, t catalog.Template) (*Plan, error) {
	e.mu.RLock()
	strategy, fallback := e.strategy, e.fallback
	e.mu.RUnlock()

	plan := &Plan{Template: t, steps: make([]step, 0, len(t.Considerations))}
	for _, spec := range t.Considerations {
		cons, ok := e.considerations.Lookup(spec.Consideration)
		if !ok {
			e.metrics.RecordResolutionMiss(ctx, "consideration")
			e.logger.WarnContext(ctx, "engine.consideration.missing",
				slog.String("template", t.Name),
				slog.String("consideration", spec.Consideration),
			)
			continue
		}

		sampler, ok := e.curves.Resolve(spec.Curve)
		if !ok {
			e.metrics.RecordResolutionMiss(ctx, "curve")
			missAttrs := []any{
				slog.String("template", t.Name),
				slog.String("consideration", spec.Consideration),
				slog.String("curve", spec.Curve),
				slog.String("strategy", string(strategy)),
			}
			switch strategy {
			case CurveMissSkipConsideration:
				e.logger.WarnContext(ctx, "engine.curve.missing", missAttrs...)
				continue
			case CurveMissSkipAction:
				e.logger.WarnContext(ctx, "engine.curve.missing", missAttrs...)
				e.metrics.RecordPrune(ctx, PruneCurveMiss)
				return nil, nil
			case CurveMissDefault, CurveMissDefaultQuiet:
				substitute := fallback(spec.Curve)
				if substitute == nil {
					return nil, curveNotFound(t, spec)
				}
				if strategy == CurveMissDefault {
					e.logger.WarnContext(ctx, "engine.curve.substituted", missAttrs...)
				}
				if s, isSampler := substitute.(curve.Sampler); isSampler {
					sampler = s
				} else {
					sampler = curve.Forward(substitute)
				}
			default:
				e.logger.ErrorContext(ctx, "engine.curve.missing", missAttrs...)
				return nil, curveNotFound(t, spec)
			}
		}

		lo, hi := spec.Min, spec.Max
		if lo > hi {
			e.logger.WarnContext(ctx, "engine.bounds.swapped",
				slog.String("template", t.Name),
				slog.String("consideration", spec.Consideration),
				slog.Float64("min", spec.Min),
				slog.Float64("max", spec.Max),
			)
			lo, hi = hi, lo
		}
		plan.steps = append(plan.steps, step{
			spec:          spec,
			consideration: cons,
			sampler:       sampler,
			min:           lo,
			max:           hi,
		})
	}
	return plan, nil
}

func curveNotFound(t catalog.Template, spec catalog.ConsiderationSpec) error {
	return errors.New(errors.CodeCurveNotFound, "curve not found", nil).
		WithContext("template", t.Name).
		WithContext("consideration", spec.Consideration).
		WithContext("curve", spec.Curve)
}
