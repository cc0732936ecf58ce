// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for decision-engine observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Arbiter telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Agent attributes
	AttrAgentID = "arbiter.agent.id"
	AttrPawnID  = "arbiter.agent.pawn_id"
	AttrLOD     = "arbiter.agent.lod"

	// Round attributes
	AttrRoundID   = "arbiter.round.id"
	AttrTick      = "arbiter.round.tick"
	AttrTemplates = "arbiter.round.templates"
	AttrContexts  = "arbiter.round.contexts"

	// Template attributes
	AttrTemplateName = "arbiter.template.name"
	AttrActionKey    = "arbiter.template.action_key"
	AttrPriority     = "arbiter.template.priority"
	AttrPruneReason  = "arbiter.template.prune_reason" // "ceiling", "lod", "curve_miss"

	// Scoring attributes
	AttrScore           = "arbiter.score.final"
	AttrConsideration   = "arbiter.consideration.key"
	AttrResolutionKind  = "arbiter.resolution.kind" // "fetcher", "consideration", "curve"
	AttrCurveMissPolicy = "arbiter.curve.miss_strategy"
	AttrPicked          = "arbiter.round.picked"

	// Pipeline attributes
	AttrStage = "arbiter.pipeline.stage"

	// Tracker attributes
	AttrTrackerID = "arbiter.tracker.id"
	AttrStateFrom = "arbiter.tracker.state_from"
	AttrStateTo   = "arbiter.tracker.state_to"
)

// RoundAttributes returns common attributes for decision round spans.
func RoundAttributes(roundID, agentID, pawnID string, tick uint64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRoundID, roundID),
		attribute.String(AttrAgentID, agentID),
	}
	if pawnID != "" && pawnID != agentID {
		attrs = append(attrs, attribute.String(AttrPawnID, pawnID))
	}
	if tick > 0 {
		attrs = append(attrs, attribute.Int64(AttrTick, int64(tick)))
	}
	return attrs
}

// TemplateAttributes returns attributes describing an action template.
func TemplateAttributes(name, actionKey string, priority float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTemplateName, name),
	}
	if actionKey != "" {
		attrs = append(attrs, attribute.String(AttrActionKey, actionKey))
	}
	if priority > 0 {
		attrs = append(attrs, attribute.Float64(AttrPriority, priority))
	}
	return attrs
}

// PickAttributes returns attributes for a round outcome.
func PickAttributes(picked bool, actionKey string, score float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrPicked, picked),
	}
	if picked {
		attrs = append(attrs,
			attribute.String(AttrActionKey, actionKey),
			attribute.Float64(AttrScore, score),
		)
	}
	return attrs
}

// TransitionAttributes returns attributes for a tracker state change.
func TransitionAttributes(trackerID, agentID, from, to string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTrackerID, trackerID),
		attribute.String(AttrStateTo, to),
	}
	if agentID != "" {
		attrs = append(attrs, attribute.String(AttrAgentID, agentID))
	}
	if from != "" {
		attrs = append(attrs, attribute.String(AttrStateFrom, from))
	}
	return attrs
}
