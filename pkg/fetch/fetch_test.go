package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/core"
	arbErrors "github.com/jllopis/arbiter/pkg/errors"
)

func newQuietRegistry() *Registry {
	return NewRegistry(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func request(fetcher string) Request {
	return Request{
		Agent:    "npc-1",
		Pawn:     "pawn-1",
		Tick:     3,
		Template: catalog.Template{Name: "Attack", ActionKey: "attack", ContextFetcher: fetcher},
	}
}

func TestContextsFromRegisteredFetcher(t *testing.T) {
	reg := newQuietRegistry()
	var gotAgent core.AgentID
	var gotPawn core.PawnID
	err := reg.Register("enemies", Func(func(_ context.Context, agent core.AgentID, pawn core.PawnID) ([]core.ContextRef, error) {
		gotAgent, gotPawn = agent, pawn
		return []core.ContextRef{"wolf", "bear"}, nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp := reg.Serve(context.Background(), request("enemies"))
	if diff := cmp.Diff([]core.ContextRef{"wolf", "bear"}, resp.Contexts); diff != "" {
		t.Fatalf("contexts mismatch (-want +got):\n%s", diff)
	}
	if gotAgent != "npc-1" || gotPawn != "pawn-1" {
		t.Fatalf("fetcher got agent=%s pawn=%s", gotAgent, gotPawn)
	}
	if resp.Tick != 3 {
		t.Fatalf("expected response tick 3, got %d", resp.Tick)
	}
}

func TestMissingFetcherYieldsEmpty(t *testing.T) {
	reg := newQuietRegistry()
	if got := reg.Contexts(context.Background(), request("nope")); len(got) != 0 {
		t.Fatalf("expected no contexts, got %v", got)
	}
}

func TestFailingFetcherYieldsEmpty(t *testing.T) {
	reg := newQuietRegistry()
	_ = reg.Register("broken", Func(func(context.Context, core.AgentID, core.PawnID) ([]core.ContextRef, error) {
		return []core.ContextRef{"partial"}, errors.New("boom")
	}))
	if got := reg.Contexts(context.Background(), request("broken")); len(got) != 0 {
		t.Fatalf("expected no contexts on error, got %v", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := newQuietRegistry()
	f := Func(func(context.Context, core.AgentID, core.PawnID) ([]core.ContextRef, error) { return nil, nil })
	if err := reg.Register("self", f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("self", f); !arbErrors.IsCode(err, arbErrors.CodeDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if err := reg.Register("", f); !arbErrors.IsCode(err, arbErrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if diff := cmp.Diff([]string{"self"}, reg.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}
