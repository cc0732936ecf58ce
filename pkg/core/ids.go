// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds identifiers and value types shared by every Arbiter
// component.
package core

import "fmt"

// AgentID identifies the decision-making entity (the "brain").
type AgentID string

// PawnID identifies the entity an agent acts through. It may equal the agent.
type PawnID string

// ContextRef is an opaque reference to a concrete parameterization of an
// action template, such as a candidate target. The engine never introspects
// it and compares it by identity only.
type ContextRef any

// DescribeContext renders a context reference for logs and audit records.
func DescribeContext(c ContextRef) string {
	if c == nil {
		return "<nil>"
	}
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", c)
}

// Pick is the decision outcome for one agent in one round.
type Pick struct {
	RoundID    string
	Tick       uint64
	Agent      AgentID
	Pawn       PawnID
	ActionKey  string
	ActionName string
	Context    ContextRef
	Score      float64
}
