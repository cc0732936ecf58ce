package engine

import (
	"fmt"
	"strings"

	"github.com/jllopis/arbiter/pkg/curve"
)

// CurveMissStrategy decides what happens when a consideration names a curve
// that no registry can resolve.
type CurveMissStrategy string

const (
	// CurveMissAbort fails the decision with a CURVE_NOT_FOUND error.
	CurveMissAbort CurveMissStrategy = "abort"
	// CurveMissSkipConsideration drops the consideration; it contributes no factor.
	CurveMissSkipConsideration CurveMissStrategy = "skip_consideration"
	// CurveMissSkipAction drops the whole template for the round.
	CurveMissSkipAction CurveMissStrategy = "skip_action"
	// CurveMissDefault substitutes the fallback curve and logs a warning.
	CurveMissDefault CurveMissStrategy = "default"
	// CurveMissDefaultQuiet substitutes the fallback curve without logging.
	CurveMissDefaultQuiet CurveMissStrategy = "default_quiet"
)

// ParseCurveMissStrategy parses a strategy name. The empty string selects
// CurveMissAbort.
func ParseCurveMissStrategy(s string) (CurveMissStrategy, error) {
	switch st := CurveMissStrategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return CurveMissAbort, nil
	case CurveMissAbort, CurveMissSkipConsideration, CurveMissSkipAction, CurveMissDefault, CurveMissDefaultQuiet:
		return st, nil
	default:
		return "", fmt.Errorf("unknown curve miss strategy %q", s)
	}
}

// FallbackFunc supplies a substitute curve for an unresolved curve name.
type FallbackFunc func(name string) curve.Curve

// FallbackTo returns a FallbackFunc that always substitutes c.
func FallbackTo(c curve.Curve) FallbackFunc {
	return func(string) curve.Curve { return c }
}
