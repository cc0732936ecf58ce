// SPDX-License-Identifier: Apache-2.0

package curve

// Constant returns a curve that ignores its input. v is clamped to [0,1].
func Constant(v float64) Curve {
	v = Clamp01(v)
	return Func(func(float64) float64 { return v })
}

// Binary is 1 once t reaches the top of the range, 0 below it.
var Binary Curve = Func(func(t float64) float64 {
	if t >= 1 {
		return 1
	}
	return 0
})

// Mirror ping-pongs c across the midpoint: the first half of the input plays
// c forward at double speed, the second half plays it back.
func Mirror(c Curve) Curve {
	return Func(func(t float64) float64 {
		if t <= 0.5 {
			return SampleSafe(c, 2*t)
		}
		return SampleSafe(c, 2-2*t)
	})
}

// SoftLeak raises the floor of c to gain and rescales the rest so the
// maximum stays at 1: g + (1-g)*c(t).
func SoftLeak(c Curve, gain float64) Curve {
	return Func(func(t float64) float64 {
		return gain + (1-gain)*SampleSafe(c, t)
	})
}

// HardLeak shifts c by gain and clips: clamp(g + c(t)). A negative gain
// subtracts.
func HardLeak(c Curve, gain float64) Curve {
	return Func(func(t float64) float64 {
		return Clamp01(gain + SampleSafe(c, t))
	})
}

// Average is the arithmetic mean of a and b.
func Average(a, b Curve) Curve {
	return Func(func(t float64) float64 {
		return (SampleSafe(a, t) + SampleSafe(b, t)) / 2
	})
}
