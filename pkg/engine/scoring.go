// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "math"

// Correct compensates for the downward bias of multiplying n factors in
// [0,1]. It is applied once per context, to the full raw product s:
//
//	s <= 0 -> 0
//	s >= 1 -> 1
//	n <= 0 -> s
//	otherwise s + (1-s)*(1-1/n)*s
//
// For s in [0,1] and n >= 1 the result lies in [s,1], and n == 1 leaves s
// unchanged.
func Correct(s float64, n int) float64 {
	switch {
	case math.IsNaN(s), s <= 0:
		return 0
	case s >= 1:
		return 1
	case n <= 0:
		return s
	}
	factor := 1 - 1/float64(n)
	makeup := (1 - s) * factor
	return s + makeup*s
}

// Rescale maps raw into [0,1] relative to [min,max]. Inverted bounds are
// swapped. When min == max the result is a step: 1 at or above the bound,
// 0 below it. NaN input is returned unchanged.
func Rescale(raw, min, max float64) float64 {
	if math.IsNaN(raw) {
		return raw
	}
	if min > max {
		min, max = max, min
	}
	if max == min {
		if raw >= max {
			return 1
		}
		return 0
	}
	if raw < min {
		raw = min
	} else if raw > max {
		raw = max
	}
	return (raw - min) / (max - min)
}
