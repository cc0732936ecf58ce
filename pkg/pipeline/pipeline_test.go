package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"go.uber.org/goleak"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/consider"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/lod"
	"github.com/jllopis/arbiter/pkg/pipeline"
	arbtest "github.com/jllopis/arbiter/pkg/testing"
	"github.com/jllopis/arbiter/pkg/tracker"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	t        *testing.T
	catalog  *catalog.Catalog
	fetchers *fetch.Registry
	cons     *consider.Registry
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:        t,
		catalog:  catalog.New(catalog.WithLogger(quiet)),
		fetchers: fetch.NewRegistry(fetch.WithLogger(quiet)),
		cons:     consider.NewRegistry(),
	}
}

func (f *fixture) fetcher(key string, fe fetch.Fetcher) {
	f.t.Helper()
	arbtest.RequireNoError(f.t, f.fetchers.Register(key, fe), "register fetcher")
}

func (f *fixture) consideration(key string, c consider.Consideration) {
	f.t.Helper()
	arbtest.RequireNoError(f.t, f.cons.Register(key, c), "register consideration")
}

func (f *fixture) set(name string, templates ...catalog.Template) {
	f.t.Helper()
	arbtest.RequireNoError(f.t, f.catalog.Upsert(catalog.ActionSet{Name: name, Actions: templates}), "upsert")
}

func (f *fixture) pipeline(opts ...pipeline.Option) *pipeline.Pipeline {
	e := engine.New(f.catalog, f.fetchers, f.cons, engine.WithLogger(quiet))
	return pipeline.New(e, append([]pipeline.Option{pipeline.WithLogger(quiet)}, opts...)...)
}

func tpl(name, fetcher string, priority float64, considerations ...string) catalog.Template {
	t := catalog.Template{Name: name, ActionKey: name, ContextFetcher: fetcher, Priority: priority}
	for _, c := range considerations {
		t.Considerations = append(t.Considerations, catalog.ConsiderationSpec{Consideration: c, Curve: "Linear", Min: 0, Max: 1})
	}
	return t
}

func tick(t *testing.T, p *pipeline.Pipeline) pipeline.TickReport {
	t.Helper()
	report, err := p.Tick(context.Background())
	arbtest.RequireNoError(t, err, "tick")
	return report
}

func TestTickPicksForEveryAgent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.fetcher("targets", arbtest.NewScriptedFetcher("far", "near").ForAgent("b", "only"))
	f.consideration("closeness", arbtest.NewScriptedConsideration(0.2).Score("near", 0.9).Score("only", 0.6))
	f.set("base", tpl("Approach", "targets", 1, "closeness"))

	p := f.pipeline()
	p.Submit(
		pipeline.Request{Agent: "a", Sources: []string{"base"}},
		pipeline.Request{Agent: "b", Sources: []string{"base"}},
	)
	report := tick(t, p)
	if report.Tick != 1 || len(report.Picks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	a := arbtest.NewAssertions(t)
	a.AssertPick(report.Picks[0], true).HasContext("near").HasScore(0.9)
	a.AssertPick(report.Picks[1], true).HasContext("only").HasScore(0.6)
	if report.Picks[0].Agent != "a" || report.Picks[1].Agent != "b" {
		t.Fatalf("picks must follow request order: %+v", report.Picks)
	}
	if report.Picks[0].RoundID == report.Picks[1].RoundID {
		t.Fatalf("each agent needs its own round")
	}
	if report.Open != 0 {
		t.Fatalf("expected no open rounds, got %d", report.Open)
	}
}

func TestDuplicateRequestsAreDropped(t *testing.T) {
	f := newFixture(t)
	fe := arbtest.NewScriptedFetcher("x")
	f.fetcher("self", fe)
	f.set("base", tpl("Idle", "self", 1))

	p := f.pipeline()
	p.Submit(
		pipeline.Request{Agent: "a", Sources: []string{"base"}},
		pipeline.Request{Agent: "a", Sources: []string{"base"}},
	)
	report := tick(t, p)
	if report.Dropped != 1 || len(report.Picks) != 1 || fe.CallCount() != 1 {
		t.Fatalf("expected one evaluation, got report %+v and %d fetches", report, fe.CallCount())
	}
}

func TestInactiveAgentsAreSkipped(t *testing.T) {
	f := newFixture(t)
	fe := arbtest.NewScriptedFetcher("x")
	f.fetcher("self", fe)
	f.set("base", tpl("Idle", "self", 1))

	p := f.pipeline()
	p.Submit(pipeline.Request{Agent: "a", LOD: lod.Ptr(lod.Inactive), Sources: []string{"base"}})
	report := tick(t, p)
	if len(report.Picks) != 0 || fe.CallCount() != 0 {
		t.Fatalf("inactive agent was evaluated")
	}
}

func TestCeilingSkipsFetchInPipeline(t *testing.T) {
	f := newFixture(t)
	f.fetcher("self", arbtest.NewScriptedFetcher("x"))
	capped := arbtest.NewScriptedFetcher("y")
	f.fetcher("capped", capped)
	f.set("base", tpl("Best", "self", 2), tpl("Capped", "capped", 1.5))

	p := f.pipeline()
	p.Submit(pipeline.Request{Agent: "a", Sources: []string{"base"}})
	report := tick(t, p)
	arbtest.NewAssertions(t).AssertPick(report.Picks[0], true).HasAction("Best").HasScore(2)
	if capped.CallCount() != 0 {
		t.Fatalf("capped template was fetched")
	}
}

func TestDeferredFetchCompletesInLaterTick(t *testing.T) {
	f := newFixture(t)
	f.consideration("value", arbtest.NewScriptedConsideration(0).Score("gold", 0.7).Score("rock", 0.1))
	f.set("base", tpl("Mine", "scan", 1, "value"))

	p := f.pipeline(pipeline.WithDeferredFetchers("scan"))
	p.Submit(pipeline.Request{Agent: "a", Sources: []string{"base"}})

	first := tick(t, p)
	if len(first.Picks) != 0 || first.Open != 1 {
		t.Fatalf("expected an open round waiting for contexts, got %+v", first)
	}
	pending := p.PendingFetches()
	if len(pending) != 1 || pending[0].Agent != "a" || pending[0].Template.Name != "Mine" || pending[0].Tick != 1 {
		t.Fatalf("unexpected pending fetches %+v", pending)
	}

	idle := tick(t, p)
	if len(idle.Picks) != 0 || idle.Open != 1 {
		t.Fatalf("round must stay open until contexts arrive, got %+v", idle)
	}

	p.DeliverContexts(fetch.Response{Request: pending[0], Contexts: []core.ContextRef{"rock", "gold"}})
	done := tick(t, p)
	if len(done.Picks) != 1 || done.Open != 0 {
		t.Fatalf("expected the round to close, got %+v", done)
	}
	pick := done.Picks[0]
	arbtest.NewAssertions(t).AssertPick(pick, true).HasContext("gold").HasScore(0.7)
	if pick.RoundID != pending[0].RoundID {
		t.Fatalf("pick must belong to the original round")
	}
}

func TestStaleResponseFeedsCurrentRound(t *testing.T) {
	f := newFixture(t)
	f.consideration("value", arbtest.NewScriptedConsideration(0).Score("old", 0.8).Score("new", 0.3))
	f.set("base", tpl("Mine", "scan", 1, "value"))

	p := f.pipeline(pipeline.WithDeferredFetchers("scan"))
	p.Submit(pipeline.Request{Agent: "a", Sources: []string{"base"}})
	tick(t, p)
	stale := p.PendingFetches()[0]

	// A fresh request supersedes the open round in the same tick the old
	// response lands.
	p.Submit(pipeline.Request{Agent: "a", Sources: []string{"base"}})
	p.DeliverContexts(fetch.Response{Request: stale, Contexts: []core.ContextRef{"old"}})
	second := tick(t, p)
	if len(second.Picks) != 0 {
		t.Fatalf("current round is still waiting, got %+v", second.Picks)
	}
	current := p.PendingFetches()
	if len(current) != 1 || current[0].RoundID == stale.RoundID {
		t.Fatalf("expected a new pending request, got %+v", current)
	}

	p.DeliverContexts(fetch.Response{Request: current[0], Contexts: []core.ContextRef{"new"}})
	third := tick(t, p)
	if len(third.Picks) != 1 {
		t.Fatalf("expected a pick, got %+v", third)
	}
	pick := third.Picks[0]
	arbtest.NewAssertions(t).AssertPick(pick, true).HasContext("old").HasScore(0.8)
	if pick.RoundID != current[0].RoundID {
		t.Fatalf("stale contexts must only affect the current round")
	}
}

func TestOrphanResponseOpensRound(t *testing.T) {
	f := newFixture(t)
	f.consideration("value", consider.Const(0.5))
	f.set("base", tpl("Mine", "scan", 1, "value"))
	p := f.pipeline(pipeline.WithDeferredFetchers("scan"))

	template, _ := f.catalog.Template("Mine")
	p.DeliverContexts(fetch.Response{
		Request:  fetch.Request{RoundID: "round-gone", Agent: "a", Template: template},
		Contexts: []core.ContextRef{"ore"},
	})
	report := tick(t, p)
	if len(report.Picks) != 1 || report.Picks[0].RoundID == "round-gone" {
		t.Fatalf("expected a pick in a fresh round, got %+v", report.Picks)
	}
}

func TestPicksFlowToSinksEmittersAndTrackers(t *testing.T) {
	f := newFixture(t)
	f.fetcher("self", arbtest.NewScriptedFetcher("x"))
	f.set("base", tpl("Walk", "self", 1))

	events := arbtest.NewEventCollector()
	store := tracker.NewStore(
		tracker.WithLogger(quiet),
		tracker.WithEmitter(events),
		tracker.WithDefaults(tracker.NewSpawnConfig().Ticking(true).Build()),
	)
	var sunk []core.Pick
	p := f.pipeline(
		pipeline.WithTrackers(store),
		pipeline.WithEmitter(events),
		pipeline.WithSink(func(_ context.Context, pick core.Pick) { sunk = append(sunk, pick) }),
	)
	p.Submit(
		pipeline.Request{Agent: "a", Sources: []string{"base"}},
		pipeline.Request{Agent: "b", Sources: []string{"base"}, Spawn: &tracker.SpawnConfig{}},
	)
	report := tick(t, p)

	if len(sunk) != 2 || store.Len() != 2 {
		t.Fatalf("expected two sunk picks and trackers, got %d and %d", len(sunk), store.Len())
	}
	if len(report.Dispatches) != 1 || report.Dispatches[0].Agent != "a" {
		t.Fatalf("only the ticking tracker should dispatch, got %+v", report.Dispatches)
	}
	if len(events.OfType(core.EventActionPicked)) != 2 || len(events.OfType(core.EventTrackerSpawned)) != 2 {
		t.Fatalf("unexpected events %+v", events.Events())
	}

	id := report.Dispatches[0].TrackerID
	for _, next := range []tracker.State{tracker.Running, tracker.Succeeded} {
		if _, err := store.Transition(context.Background(), id, next); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	next := tick(t, p)
	if len(next.Despawned) != 1 || next.Despawned[0].ID != id {
		t.Fatalf("expected the finished tracker to be despawned, got %+v", next.Despawned)
	}
}

func TestCurveAbortFailsTick(t *testing.T) {
	f := newFixture(t)
	f.fetcher("self", arbtest.NewScriptedFetcher("x"))
	f.consideration("value", consider.Const(1))
	broken := tpl("Broken", "self", 1, "value")
	broken.Considerations[0].Curve = "Nope"
	f.set("base", broken)

	p := f.pipeline()
	p.Submit(pipeline.Request{Agent: "a", Sources: []string{"base"}})
	report, err := p.Tick(context.Background())
	if !errors.IsCode(err, errors.CodeCurveNotFound) {
		t.Fatalf("expected CURVE_NOT_FOUND, got %v", err)
	}
	if len(report.Picks) != 0 {
		t.Fatalf("failed tick must not emit picks")
	}
	after := tick(t, p)
	if after.Open != 0 {
		t.Fatalf("failed rounds must be discarded, got %d open", after.Open)
	}
}

func TestManyAgentsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	fe := arbtest.NewScriptedFetcher("x")
	f.fetcher("self", fe)
	f.consideration("half", consider.Const(0.5))
	f.set("base", tpl("Idle", "self", 1, "half"))

	p := f.pipeline(pipeline.WithConcurrency(4))
	const agents = 64
	for i := 0; i < agents; i++ {
		p.Submit(pipeline.Request{Agent: core.AgentID(fmt.Sprintf("agent-%02d", i)), Sources: []string{"base"}})
	}
	report := tick(t, p)
	if len(report.Picks) != agents || fe.CallCount() != agents {
		t.Fatalf("expected %d picks and fetches, got %d and %d", agents, len(report.Picks), fe.CallCount())
	}
	for i, pick := range report.Picks {
		if pick.Agent != core.AgentID(fmt.Sprintf("agent-%02d", i)) || pick.Score != 0.5 {
			t.Fatalf("unexpected pick %d: %+v", i, pick)
		}
	}
	if p.CurrentTick() != 1 {
		t.Fatalf("unexpected tick %d", p.CurrentTick())
	}
}
