// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package curve provides the response curves used to reshape normalized
// consideration scores. Every curve maps the unit interval onto itself.
package curve

import "math"

// Curve maps t in [0,1] to a utility in [0,1].
// Implementations may overshoot; callers go through SampleSafe or a Sampler.
type Curve interface {
	Sample(t float64) float64
}

// Func adapts a plain function to Curve.
type Func func(t float64) float64

// Sample implements Curve.
func (f Func) Sample(t float64) float64 { return f(t) }

// Clamp01 clamps v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// SampleSafe clamps the input to [0,1], samples c, and clamps the output to
// [0,1]. A nil curve samples as zero.
func SampleSafe(c Curve, t float64) float64 {
	if c == nil {
		return 0
	}
	return Clamp01(c.Sample(Clamp01(t)))
}

// Sampler pairs a curve with its sampling direction. Inverse sampling yields
// 1 - SampleSafe(t). Inverting twice flips the flag back rather than nesting.
type Sampler struct {
	Curve   Curve
	Inverse bool
}

// Forward returns a sampler reading c as-is.
func Forward(c Curve) Sampler { return Sampler{Curve: c} }

// Inverse returns a sampler reading c as 1 - c(t).
func Inverse(c Curve) Sampler { return Sampler{Curve: c, Inverse: true} }

// Sample implements Curve. The result is always within [0,1].
func (s Sampler) Sample(t float64) float64 {
	v := SampleSafe(s.Curve, t)
	if s.Inverse {
		return 1 - v
	}
	return v
}

// Inverted returns s with its direction flipped.
func (s Sampler) Inverted() Sampler {
	s.Inverse = !s.Inverse
	return s
}

// Valid reports whether the sampler wraps a curve.
func (s Sampler) Valid() bool { return s.Curve != nil }
