package lod

import "testing"

func TestDefaultBand(t *testing.T) {
	var band Band
	tests := []struct {
		level Level
		want  bool
	}{
		{Elevated, false},
		{Normal, true},
		{100, true},
		{Minimal, true},
		{Inactive, false},
	}
	for _, tt := range tests {
		if got := IsEligible(band, Ptr(tt.level)); got != tt.want {
			t.Fatalf("IsEligible(default, %v) = %v, want %v", tt.level, got, tt.want)
		}
	}
	if !IsEligible(band, nil) {
		t.Fatalf("absent lod should default to normal and be eligible")
	}
}

// The upper bound must come from lod_max. A check that derives both bounds
// from lod_min would accept only level == lod_min here.
func TestUpperBoundReadsMax(t *testing.T) {
	band := Band{Min: Ptr(Elevated), Max: Ptr(Level(50))}
	for _, level := range []Level{Elevated, 1, Normal, 50} {
		if !IsEligible(band, Ptr(level)) {
			t.Fatalf("level %v should be inside [0,50]", level)
		}
	}
	if IsEligible(band, Ptr(Level(51))) {
		t.Fatalf("level 51 should be above lod_max")
	}
}

func TestOnlyMaxDeclared(t *testing.T) {
	band := Band{Max: Ptr(Level(20))}
	lo, hi := band.Bounds()
	if lo != Normal || hi != 20 {
		t.Fatalf("unexpected bounds [%v,%v]", lo, hi)
	}
	if IsEligible(band, Ptr(Elevated)) {
		t.Fatalf("elevated is below the default lower bound")
	}
}

func TestInactiveNeverEligible(t *testing.T) {
	band := Band{Min: Ptr(Elevated), Max: Ptr(Inactive)}
	if IsEligible(band, Ptr(Inactive)) {
		t.Fatalf("inactive agents must be skipped")
	}
}

func TestValidate(t *testing.T) {
	if err := (Band{Min: Ptr(Level(10)), Max: Ptr(Level(5))}).Validate(); err == nil {
		t.Fatalf("expected inverted band to fail validation")
	}
	if err := (Band{Min: Ptr(Level(5))}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Level{"elevated": Elevated, "Normal": Normal, "": Normal, "minimal": Minimal, "inactive": Inactive, "42": 42}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := Parse("300"); err == nil {
		t.Fatalf("expected out of range level to fail")
	}
	if Level(42).String() != "42" || Normal.String() != "normal" {
		t.Fatalf("unexpected String output")
	}
}
