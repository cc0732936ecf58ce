// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker follows picked actions through their execution lifecycle.
//
// A tracker is spawned in Ready when the engine picks an action, advanced by
// the host through Transition, and removed once it reaches a terminal state.
// Optional timing and ownership data live in an extension bundle that is
// fixed at spawn time.
package tracker

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a tracked action.
type State uint8

const (
	// Queued is blocked and cannot start yet.
	Queued State = iota
	// Ready can start.
	Ready
	// Running is executing.
	Running
	// Paused is suspended mid-execution.
	Paused
	// Succeeded finished successfully.
	Succeeded
	// Failed finished unsuccessfully. The host decides whether to retry.
	Failed
	// Cancelled was stopped before finishing.
	Cancelled
)

var stateNames = [...]string{
	Queued:    "queued",
	Ready:     "ready",
	Running:   "running",
	Paused:    "paused",
	Succeeded: "succeeded",
	Failed:    "failed",
	Cancelled: "cancelled",
}

// States lists every state in declaration order.
func States() []State {
	return []State{Queued, Ready, Running, Paused, Succeeded, Failed, Cancelled}
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseState parses a state name, case-insensitively.
func ParseState(name string) (State, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tracker state %q", name)
}

// IsInitial reports whether s is Queued or Ready.
func (s State) IsInitial() bool { return s == Queued || s == Ready }

// IsProgressed reports whether s is Running or Paused.
func (s State) IsProgressed() bool { return s == Running || s == Paused }

// IsTerminal reports whether s is Succeeded, Failed or Cancelled.
func (s State) IsTerminal() bool { return s == Succeeded || s == Failed || s == Cancelled }

// ShouldProcess reports whether a per-tick scheduler should run the action.
func (s State) ShouldProcess() bool { return s == Ready || s == Running }

// CanTransition reports whether moving from s to next is legal. Initial
// states may move anywhere, progressed states only to progressed or
// terminal states, and terminal states never move.
func (s State) CanTransition(next State) bool {
	if int(next) >= len(stateNames) {
		return false
	}
	switch {
	case s.IsInitial():
		return true
	case s.IsProgressed():
		return next.IsProgressed() || next.IsTerminal()
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
