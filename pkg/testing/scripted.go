// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"sync"

	"github.com/jllopis/arbiter/pkg/core"
)

// FetchCall records one invocation of a ScriptedFetcher.
type FetchCall struct {
	Agent core.AgentID
	Pawn  core.PawnID
}

// ScriptedFetcher is a context fetcher with per-agent scripted results and
// call recording.
type ScriptedFetcher struct {
	mu       sync.Mutex
	byAgent  map[core.AgentID][]core.ContextRef
	fallback []core.ContextRef
	err      error
	calls    []FetchCall
}

// NewScriptedFetcher creates a fetcher that returns contexts to every agent
// without a more specific script.
func NewScriptedFetcher(contexts ...core.ContextRef) *ScriptedFetcher {
	return &ScriptedFetcher{
		byAgent:  make(map[core.AgentID][]core.ContextRef),
		fallback: contexts,
	}
}

// ForAgent scripts the contexts returned to agent.
func (f *ScriptedFetcher) ForAgent(agent core.AgentID, contexts ...core.ContextRef) *ScriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byAgent[agent] = contexts
	return f
}

// WithError makes every call fail with err.
func (f *ScriptedFetcher) WithError(err error) *ScriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Fetch implements fetch.Fetcher.
func (f *ScriptedFetcher) Fetch(_ context.Context, agent core.AgentID, pawn core.PawnID) ([]core.ContextRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FetchCall{Agent: agent, Pawn: pawn})
	if f.err != nil {
		return nil, f.err
	}
	if contexts, ok := f.byAgent[agent]; ok {
		return append([]core.ContextRef(nil), contexts...), nil
	}
	return append([]core.ContextRef(nil), f.fallback...), nil
}

// CallCount returns the number of Fetch calls.
func (f *ScriptedFetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns a copy of the recorded calls.
func (f *ScriptedFetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

// Reset clears recorded calls.
func (f *ScriptedFetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// ScriptedConsideration scores contexts from a lookup table, falling back
// to a default score, and counts evaluations per context.
type ScriptedConsideration struct {
	mu       sync.Mutex
	scores   map[core.ContextRef]float64
	errs     map[core.ContextRef]error
	fallback float64
	calls    map[core.ContextRef]int
	total    int
}

// NewScriptedConsideration creates a consideration scoring def for every
// context without a scripted score.
func NewScriptedConsideration(def float64) *ScriptedConsideration {
	return &ScriptedConsideration{
		scores:   make(map[core.ContextRef]float64),
		errs:     make(map[core.ContextRef]error),
		fallback: def,
		calls:    make(map[core.ContextRef]int),
	}
}

// Score scripts the raw score for c. c must be comparable.
func (s *ScriptedConsideration) Score(c core.ContextRef, v float64) *ScriptedConsideration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[c] = v
	return s
}

// Fail scripts an evaluation error for c.
func (s *ScriptedConsideration) Fail(c core.ContextRef, err error) *ScriptedConsideration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[c] = err
	return s
}

// Evaluate implements consider.Consideration.
func (s *ScriptedConsideration) Evaluate(_ context.Context, _ core.AgentID, _ core.PawnID, c core.ContextRef) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c]++
	s.total++
	if err, ok := s.errs[c]; ok {
		return 0, err
	}
	if v, ok := s.scores[c]; ok {
		return v, nil
	}
	return s.fallback, nil
}

// CallCount returns the total number of evaluations.
func (s *ScriptedConsideration) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// CallsFor returns how many times c was evaluated.
func (s *ScriptedConsideration) CallsFor(c core.ContextRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[c]
}

// Reset clears recorded calls.
func (s *ScriptedConsideration) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[core.ContextRef]int)
	s.total = 0
}
