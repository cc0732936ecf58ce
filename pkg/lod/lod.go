// Package lod gates action templates by an agent's level of detail.
// Lower values mean more detail; Inactive agents are not evaluated at all.
package lod

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is an ordered level-of-detail value.
type Level uint8

const (
	Elevated Level = 0
	Normal   Level = 8
	Minimal  Level = 254
	Inactive Level = 255
)

// Band is the inclusive range of levels in which a template stays eligible.
// Nil bounds fall back to Normal and Minimal respectively.
type Band struct {
	Min *Level
	Max *Level
}

// Bounds returns the effective inclusive range.
func (b Band) Bounds() (Level, Level) {
	lo, hi := Normal, Minimal
	if b.Min != nil {
		lo = *b.Min
	}
	if b.Max != nil {
		hi = *b.Max
	}
	return lo, hi
}

// Contains reports whether level lies within the band.
func (b Band) Contains(level Level) bool {
	lo, hi := b.Bounds()
	return level >= lo && level <= hi
}

// Validate rejects bands whose explicit bounds are inverted.
func (b Band) Validate() error {
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return fmt.Errorf("lod_min %d exceeds lod_max %d", *b.Min, *b.Max)
	}
	return nil
}

// IsEligible reports whether an agent at level may consider a template with
// band. A nil level is treated as Normal. Inactive agents are never eligible.
func IsEligible(band Band, level *Level) bool {
	l := Normal
	if level != nil {
		l = *level
	}
	if l == Inactive {
		return false
	}
	return band.Contains(l)
}

// Ptr returns a pointer to l.
func Ptr(l Level) *Level { return &l }

// Parse reads a level from a name ("elevated", "normal", "minimal",
// "inactive") or a number in [0,255].
func Parse(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "elevated":
		return Elevated, nil
	case "normal", "":
		return Normal, nil
	case "minimal":
		return Minimal, nil
	case "inactive":
		return Inactive, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid lod %q: %w", s, err)
	}
	return Level(n), nil
}

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Elevated:
		return "elevated"
	case Normal:
		return "normal"
	case Minimal:
		return "minimal"
	case Inactive:
		return "inactive"
	default:
		return strconv.Itoa(int(l))
	}
}
