// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"math"
	"testing"

	"github.com/jllopis/arbiter/pkg/core"
)

// ScoreTolerance is the absolute tolerance used when comparing scores.
const ScoreTolerance = 1e-9

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.t.Errorf("%s: expected %v, got %v", msg, expected, actual)
		a.failed = true
	}
}

// AssertScore asserts that two scores agree within ScoreTolerance.
func (a *Assertions) AssertScore(expected, actual float64, msg string) {
	a.t.Helper()
	if math.Abs(expected-actual) > ScoreTolerance {
		a.t.Errorf("%s: expected score %v, got %v", msg, expected, actual)
		a.failed = true
	}
}

// AssertNoError asserts that the error is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.t.Errorf("%s: unexpected error: %v", msg, err)
		a.failed = true
	}
}

// PickAssertions provides assertion helpers for decision outcomes.
type PickAssertions struct {
	*Assertions
	pick core.Pick
	ok   bool
}

// AssertPick creates pick assertions for a Decide result.
func (a *Assertions) AssertPick(pick core.Pick, ok bool) *PickAssertions {
	return &PickAssertions{Assertions: a, pick: pick, ok: ok}
}

// Picked asserts that the round produced a pick.
func (p *PickAssertions) Picked() *PickAssertions {
	p.t.Helper()
	if !p.ok {
		p.t.Errorf("expected a pick, got none")
		p.failed = true
	}
	return p
}

// NotPicked asserts that the round produced no pick.
func (p *PickAssertions) NotPicked() *PickAssertions {
	p.t.Helper()
	if p.ok {
		p.t.Errorf("expected no pick, got %s (%v)", p.pick.ActionKey, p.pick.Score)
		p.failed = true
	}
	return p
}

// HasAction asserts the picked action key.
func (p *PickAssertions) HasAction(key string) *PickAssertions {
	p.t.Helper()
	if p.pick.ActionKey != key {
		p.t.Errorf("expected action %q, got %q", key, p.pick.ActionKey)
		p.failed = true
	}
	return p
}

// HasContext asserts the picked context.
func (p *PickAssertions) HasContext(c core.ContextRef) *PickAssertions {
	p.t.Helper()
	if p.pick.Context != c {
		p.t.Errorf("expected context %v, got %v", c, p.pick.Context)
		p.failed = true
	}
	return p
}

// HasScore asserts the picked score within ScoreTolerance.
func (p *PickAssertions) HasScore(score float64) *PickAssertions {
	p.t.Helper()
	p.AssertScore(score, p.pick.Score, "pick score")
	return p
}

// Quick assertion functions for common patterns

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireEqual fails the test immediately if values are not equal.
func RequireEqual(t *testing.T, expected, actual any, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}
