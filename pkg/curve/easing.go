// SPDX-License-Identifier: Apache-2.0

package curve

import "math"

// Linear is the identity curve.
var Linear Curve = Func(func(t float64) float64 { return t })

func powIn(n float64) Func {
	return func(t float64) float64 { return math.Pow(t, n) }
}

func powOut(n float64) Func {
	return func(t float64) float64 { return 1 - math.Pow(1-t, n) }
}

func powInOut(n float64) Func {
	return func(t float64) float64 {
		if t < 0.5 {
			return math.Pow(2, n-1) * math.Pow(t, n)
		}
		return 1 - math.Pow(-2*t+2, n)/2
	}
}

// Polynomial easing families.
var (
	QuadraticIn    Curve = powIn(2)
	QuadraticOut   Curve = powOut(2)
	QuadraticInOut Curve = powInOut(2)
	CubicIn        Curve = powIn(3)
	CubicOut       Curve = powOut(3)
	CubicInOut     Curve = powInOut(3)
	QuarticIn      Curve = powIn(4)
	QuarticOut     Curve = powOut(4)
	QuarticInOut   Curve = powInOut(4)
	QuinticIn      Curve = powIn(5)
	QuinticOut     Curve = powOut(5)
	QuinticInOut   Curve = powInOut(5)
)

// Sine easing.
var (
	SineIn    Curve = Func(func(t float64) float64 { return 1 - math.Cos(t*math.Pi/2) })
	SineOut   Curve = Func(func(t float64) float64 { return math.Sin(t * math.Pi / 2) })
	SineInOut Curve = Func(func(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 })
)

// Circular easing.
var (
	CircularIn    Curve = Func(func(t float64) float64 { return 1 - math.Sqrt(1-t*t) })
	CircularOut   Curve = Func(func(t float64) float64 { return math.Sqrt(1 - (t-1)*(t-1)) })
	CircularInOut Curve = Func(func(t float64) float64 {
		if t < 0.5 {
			return (1 - math.Sqrt(1-4*t*t)) / 2
		}
		u := -2*t + 2
		return (math.Sqrt(1-u*u) + 1) / 2
	})
)

// expIn is normalized so that expIn(0) = 0 and expIn(1) = 1 exactly.
func expIn(t float64) float64 { return (math.Pow(2, 10*t) - 1) / 1023 }

// Exponential easing.
var (
	ExponentialIn    Curve = Func(expIn)
	ExponentialOut   Curve = Func(func(t float64) float64 { return 1 - expIn(1-t) })
	ExponentialInOut Curve = Func(func(t float64) float64 {
		if t < 0.5 {
			return expIn(2*t) / 2
		}
		return 1 - expIn(2-2*t)/2
	})
)

func smoothStep(t float64) float64   { return t * t * (3 - 2*t) }
func smootherStep(t float64) float64 { return t * t * t * (t*(6*t-15) + 10) }

// Smoothstep family. The In and Out variants are the lower and upper halves of
// the symmetric curve, rescaled to the unit square.
var (
	SmoothStep      Curve = Func(smoothStep)
	SmoothStepIn    Curve = Func(func(t float64) float64 { return 2 * smoothStep(t/2) })
	SmoothStepOut   Curve = Func(func(t float64) float64 { return 2*smoothStep((t+1)/2) - 1 })
	SmootherStep    Curve = Func(smootherStep)
	SmootherStepIn  Curve = Func(func(t float64) float64 { return 2 * smootherStep(t/2) })
	SmootherStepOut Curve = Func(func(t float64) float64 { return 2*smootherStep((t+1)/2) - 1 })
)
