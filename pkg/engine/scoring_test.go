// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"math"
	"testing"
)

func TestCorrectStaysBetweenScoreAndOne(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for i := 0; i <= 100; i++ {
			s := float64(i) / 100
			got := Correct(s, n)
			if got < s-1e-12 || got > 1+1e-12 {
				t.Fatalf("Correct(%v, %d) = %v, outside [%v, 1]", s, n, got, s)
			}
		}
	}
}

func TestCorrectSingleConsiderationIsIdentity(t *testing.T) {
	for i := 0; i <= 100; i++ {
		s := float64(i) / 100
		if got := Correct(s, 1); math.Abs(got-s) > 1e-12 {
			t.Fatalf("Correct(%v, 1) = %v", s, got)
		}
	}
}

func TestCorrectEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		s    float64
		n    int
		want float64
	}{
		{"zero score", 0, 3, 0},
		{"negative score", -0.5, 3, 0},
		{"nan score", math.NaN(), 3, 0},
		{"saturated", 1, 3, 1},
		{"over one", 1.5, 3, 1},
		{"no considerations", 0.4, 0, 0.4},
		{"negative count", 0.4, -2, 0.4},
		{"two factors", 0.2, 2, 0.28},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Correct(tt.s, tt.n); math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Correct(%v, %d) = %v, want %v", tt.s, tt.n, got, tt.want)
			}
		})
	}
}

func TestCorrectIsMonotonicInCount(t *testing.T) {
	s := 0.3
	prev := Correct(s, 1)
	for n := 2; n < 20; n++ {
		got := Correct(s, n)
		if got < prev {
			t.Fatalf("Correct(%v, %d) = %v decreased from %v", s, n, got, prev)
		}
		prev = got
	}
}

func TestRescale(t *testing.T) {
	tests := []struct {
		name          string
		raw, min, max float64
		want          float64
	}{
		{"inside", 25, 0, 100, 0.25},
		{"below", -5, 0, 100, 0},
		{"above", 500, 0, 100, 1},
		{"offset range", 15, 10, 20, 0.5},
		{"inverted bounds", 25, 100, 0, 0.25},
		{"degenerate at bound", 5, 5, 5, 1},
		{"degenerate below", 4.9, 5, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rescale(tt.raw, tt.min, tt.max); math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("Rescale(%v, %v, %v) = %v, want %v", tt.raw, tt.min, tt.max, got, tt.want)
			}
		})
	}
	if !math.IsNaN(Rescale(math.NaN(), 0, 1)) {
		t.Fatalf("expected NaN passthrough")
	}
}

func TestParseCurveMissStrategy(t *testing.T) {
	for in, want := range map[string]CurveMissStrategy{
		"":                   CurveMissAbort,
		"abort":              CurveMissAbort,
		"SKIP_ACTION":        CurveMissSkipAction,
		"skip_consideration": CurveMissSkipConsideration,
		"default":            CurveMissDefault,
		" default_quiet ":    CurveMissDefaultQuiet,
	} {
		got, err := ParseCurveMissStrategy(in)
		if err != nil || got != want {
			t.Fatalf("ParseCurveMissStrategy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCurveMissStrategy("panic"); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
}
