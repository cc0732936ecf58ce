// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestRoundAttributes(t *testing.T) {
	attrs := RoundAttributes("round-1", "npc-1", "pawn-1", 7)

	expected := map[string]any{
		AttrRoundID: "round-1",
		AttrAgentID: "npc-1",
		AttrPawnID:  "pawn-1",
		AttrTick:    7,
	}

	assertAttributes(t, attrs, expected)
}

func TestRoundAttributes_SamePawn(t *testing.T) {
	attrs := RoundAttributes("round-1", "npc-1", "npc-1", 0)
	if len(attrs) != 2 {
		t.Fatalf("expected pawn and tick to be omitted, got %v", attrs)
	}
}

func TestTemplateAttributes(t *testing.T) {
	attrs := TemplateAttributes("Attack", "melee", 2)

	expected := map[string]any{
		AttrTemplateName: "Attack",
		AttrActionKey:    "melee",
		AttrPriority:     2.0,
	}

	assertAttributes(t, attrs, expected)
}

func TestPickAttributes(t *testing.T) {
	assertAttributes(t, PickAttributes(true, "melee", 0.28), map[string]any{
		AttrPicked:    true,
		AttrActionKey: "melee",
		AttrScore:     0.28,
	})
	if got := PickAttributes(false, "", 0); len(got) != 1 {
		t.Fatalf("expected only the picked flag, got %v", got)
	}
}

func TestTransitionAttributes(t *testing.T) {
	attrs := TransitionAttributes("trk-1", "npc-1", "Ready", "Running")

	expected := map[string]any{
		AttrTrackerID: "trk-1",
		AttrAgentID:   "npc-1",
		AttrStateFrom: "Ready",
		AttrStateTo:   "Running",
	}

	assertAttributes(t, attrs, expected)
}

// assertAttributes checks that expected key-value pairs exist in attrs
func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
