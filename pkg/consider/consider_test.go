package consider

import (
	"context"
	"testing"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/errors"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("health", Const(80)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("health", Const(1)); !errors.IsCode(err, errors.CodeDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if err := reg.Register(" ", Const(1)); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	c, ok := reg.Lookup("health")
	if !ok {
		t.Fatalf("expected lookup hit")
	}
	v, err := c.Evaluate(context.Background(), "a", "p", nil)
	if err != nil || v != 80 {
		t.Fatalf("evaluate = %v, %v", v, err)
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("expected lookup miss")
	}
}

func TestFuncReceivesInputs(t *testing.T) {
	var got core.ContextRef
	f := Func(func(_ context.Context, agent core.AgentID, pawn core.PawnID, c core.ContextRef) (float64, error) {
		got = c
		if agent != "a" || pawn != "p" {
			t.Fatalf("unexpected ids %s/%s", agent, pawn)
		}
		return 1, nil
	})
	if _, err := f.Evaluate(context.Background(), "a", "p", "target"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != "target" {
		t.Fatalf("expected context passthrough, got %v", got)
	}
}
