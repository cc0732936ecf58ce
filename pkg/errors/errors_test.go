// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("no such curve")
	ae := New(CodeCurveNotFound, "curve lookup failed", cause)

	if ae.Code != CodeCurveNotFound {
		t.Errorf("expected CodeCurveNotFound, got %v", ae.Code)
	}
	if ae.Message != "curve lookup failed" {
		t.Errorf("unexpected message %q", ae.Message)
	}
	if ae.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(ae, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	ae := New(CodeInvalidTransition, "bad transition", nil)
	ae.WithContext("from", "Running").WithContext("to", "Queued")

	if ae.Context["from"] != "Running" {
		t.Errorf("expected context from to be 'Running'")
	}
	if ae.Context["to"] != "Queued" {
		t.Errorf("expected context to to be 'Queued'")
	}
}

func TestWithRecoverable(t *testing.T) {
	ae := New(CodeStaleAgent, "agent gone", nil)
	if ae.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}
	ae.WithRecoverable(true)
	if !ae.Recoverable || ae.RecoverableString() != "true" {
		t.Errorf("expected recoverable to be true")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *ArbiterError
		want string
	}{
		{"no cause", New(CodeNotFound, "tracker missing", nil), "[NOT_FOUND] tracker missing"},
		{"with cause", New(CodeStorage, "insert failed", errors.New("disk full")), "[STORAGE_ERROR] insert failed: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	if As(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	ae := New(CodeInvalidInput, "bad", nil)
	wrapped := fmt.Errorf("load: %w", ae)
	if got := As(wrapped); got != ae {
		t.Fatalf("expected the wrapped ArbiterError back")
	}
	plain := As(errors.New("plain"))
	if plain.Code != CodeInternal {
		t.Fatalf("expected plain errors to wrap as internal, got %s", plain.Code)
	}
}

func TestIsCode(t *testing.T) {
	inner := New(CodeCurveNotFound, "curve", nil)
	outer := New(CodeInvalidInput, "round failed", inner)
	if !IsCode(outer, CodeInvalidInput) {
		t.Fatalf("expected outer code match")
	}
	if !IsCode(fmt.Errorf("tick: %w", outer), CodeCurveNotFound) {
		t.Fatalf("expected nested code match")
	}
	if IsCode(outer, CodeStorage) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(errors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestMarshalJSON(t *testing.T) {
	ae := New(CodeStaleAgent, "agent gone", errors.New("despawned")).WithContext("agent", "npc-1")
	raw, err := json.Marshal(ae)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["code"] != "STALE_AGENT" {
		t.Fatalf("unexpected code %v", out["code"])
	}
	if out["error"] != "despawned" {
		t.Fatalf("unexpected cause %v", out["error"])
	}
}
