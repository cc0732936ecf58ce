// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/arbiter/pkg/audit"
	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/config"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/pipeline"
	"github.com/jllopis/arbiter/pkg/telemetry"
	arbtest "github.com/jllopis/arbiter/pkg/testing"
	"github.com/jllopis/arbiter/pkg/tracker"
)

type simulateOptions struct {
	scenario    string
	ticks       int
	interval    time.Duration
	watchConfig bool
}

type simulateSummary struct {
	Scenario     string   `json:"scenario"`
	Ticks        int      `json:"ticks"`
	Picks        int      `json:"picks"`
	Trackers     int      `json:"trackers"`
	AuditEntries int      `json:"audit_entries"`
	Strategy     string   `json:"curve_miss_strategy"`
	Failures     []string `json:"failures,omitempty"`
}

func newSimulateCmd(a *app) *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate --scenario FILE",
		Short: "Run a scripted scenario through the decision pipeline",
		Long: `Runs a scenario file (agents, action sets, scripted contexts and
consideration scores, tracker progressions) tick by tick, printing picks,
dispatches and tracker transitions. Picks and transitions are written to the
configured audit store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSimulate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.scenario, "scenario", "", "Scenario file (YAML)")
	f.IntVar(&opts.ticks, "ticks", 0, "Ticks to run; defaults to the scenario's ticks")
	f.DurationVar(&opts.interval, "interval", 0, "Wall-clock pause between ticks")
	f.BoolVar(&opts.watchConfig, "watch-config", false, "Hot-apply engine and tracker settings when --config changes")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func (a *app) runSimulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	scenario, err := arbtest.LoadScenario(opts.scenario)
	if err != nil {
		return NewCLIError(errors.As(err), "check the scenario file against the documented layout")
	}

	tel := a.cfg.Telemetry.Settings()
	tel.Version = version
	tel.Output = a.errOut
	shutdown, err := telemetry.Setup(ctx, tel)
	if err != nil {
		return NewConfigError(err, a.flags.ConfigPath)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry.shutdown.failed", slog.String("error", err.Error()))
		}
	}()
	metrics, err := telemetry.NewDecisionMetrics(ctx)
	if err != nil {
		return err
	}

	store, closer, err := audit.Open(ctx, a.cfg.Audit.Driver, a.cfg.Audit.DSN)
	if err != nil {
		return NewCLIError(errors.As(err), "check audit.driver and audit.dsn")
	}
	defer closer.Close()

	printer := &eventPrinter{w: out, json: a.flags.JSON}
	live := config.NewReloadableConfig(a.cfg)

	hopts := []arbtest.HarnessOption{
		arbtest.WithLogger(a.logger),
		arbtest.WithEmitter(printer),
		arbtest.WithEngineOptions(
			engine.WithMetrics(metrics),
			engine.WithFallback(a.cfg.Engine.Fallback()),
		),
		arbtest.WithPipelineOptions(pipeline.WithConcurrency(a.cfg.Pipeline.FetchConcurrency)),
		arbtest.WithFetchOptions(fetch.WithPolicy(a.cfg.Pipeline.FetchPolicy())),
		arbtest.WithTrackerOptions(tracker.WithDefaults(a.cfg.Tracker.SpawnConfig())),
	}
	if scenario.CurveMissStrategy == "" {
		hopts = append(hopts, arbtest.WithEngineOptions(engine.WithCurveMissStrategy(a.cfg.Engine.Strategy())))
	}
	if store != nil {
		hopts = append(hopts, arbtest.WithEmitter(audit.NewRecorder(store, a.logger)))
	}
	h, err := scenario.Build(hopts...)
	if err != nil {
		return NewCLIError(errors.As(err), "check the scenario's action sets, fetchers and considerations")
	}

	if paths := a.cfg.Catalog.Paths; len(paths) > 0 {
		w, err := catalog.NewWatcher(h.Catalog, catalog.NewLoader(), paths,
			catalog.WithDebounce(a.cfg.Catalog.Debounce),
			catalog.WithWatcherLogger(a.logger),
			catalog.WithEmitter(printer),
		)
		if err != nil {
			return err
		}
		defer w.Stop()
		if err := w.LoadAll(ctx); err != nil {
			return NewCLIError(errors.New(errors.CodeInvalidInput, "load catalog paths", err),
				"run 'arbiter validate' on catalog.paths")
		}
		if a.cfg.Catalog.Watch {
			if err := w.Start(ctx); err != nil {
				return err
			}
		}
	}

	if opts.watchConfig && a.flags.ConfigPath != "" {
		cw, err := config.NewWatcher(a.flags.ConfigPath,
			config.WithProfile(a.flags.Profile),
			config.WithDebounce(a.cfg.Catalog.Debounce),
			config.WithWatchLogger(a.logger),
		)
		if err != nil {
			return NewConfigError(err, a.flags.ConfigPath)
		}
		cw.OnChange(func(c *config.Config) {
			live.Update(c)
			a.applyConfig(h, scenario, live)
		})
		defer cw.Stop()
		if err := cw.Start(ctx); err != nil {
			return err
		}
	}

	ticks := opts.ticks
	if ticks <= 0 {
		ticks = max(scenario.Ticks, 1)
	}
	result := &arbtest.ScenarioResult{}
	for i := 0; i < ticks && result.Err == nil; i++ {
		if i > 0 && opts.interval > 0 {
			select {
			case <-ctx.Done():
				result.Err = ctx.Err()
				continue
			case <-time.After(opts.interval):
			}
		}
		step, err := h.Step(ctx)
		result.Steps = append(result.Steps, step)
		result.Err = err
		printer.step(step)
	}
	result.Events = h.Events.Events()

	summary := simulateSummary{
		Scenario: scenario.Name,
		Ticks:    len(result.Steps),
		Picks:    len(result.Picks()),
		Trackers: h.Trackers.Len(),
		Strategy: string(h.Pipeline.Engine().CurveMissStrategy()),
	}
	if store != nil {
		entries, err := store.List(ctx, audit.Filter{})
		if err != nil {
			a.logger.Warn("simulate.audit.list_failed", slog.String("error", err.Error()))
		}
		summary.AuditEntries = len(entries)
	}
	if result.Err == nil {
		for _, exp := range scenario.Expectations() {
			if err := exp.Check(result); err != nil {
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", exp.Description(), err))
			}
		}
	}
	printer.summary(summary)

	switch {
	case errors.IsCode(result.Err, errors.CodeCurveNotFound):
		return NewCurveError(result.Err)
	case result.Err != nil:
		return result.Err
	case len(summary.Failures) > 0:
		return NewCLIError(
			errors.New(errors.CodeInvalidInput, "scenario expectations failed", nil).
				WithContext("failures", len(summary.Failures)),
			"see the failures listed in the summary")
	}
	return nil
}

// applyConfig pushes reloadable settings into a running harness. Settings
// pinned by the scenario itself are left alone.
func (a *app) applyConfig(h *arbtest.Harness, scenario *arbtest.Scenario, live *config.ReloadableConfig) {
	e := h.Pipeline.Engine()
	engineCfg := live.Engine()
	if scenario.CurveMissStrategy == "" {
		e.SetCurveMissStrategy(engineCfg.Strategy())
	}
	e.SetFallback(engineCfg.Fallback())
	if scenario.TrackerDefaults == nil {
		h.Trackers.SetDefaults(live.Tracker().SpawnConfig())
	}
	a.logger.Info("simulate.config.applied",
		slog.String("curve_miss_strategy", string(e.CurveMissStrategy())),
		slog.Bool("ticking", h.Trackers.Defaults().Ticking),
	)
}

// eventPrinter writes lifecycle events as they happen and tick summaries
// as ticks finish. The catalog watcher emits from its own goroutine.
type eventPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func (p *eventPrinter) Emit(_ context.Context, event core.Event) {
	switch event.Type {
	case core.EventActionPicked, core.EventTrackerDispatched:
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		_ = json.NewEncoder(p.w).Encode(map[string]any{
			"event":   event.Type,
			"agent":   event.Agent,
			"tracker": event.TrackerID,
			"payload": event.Payload,
		})
		return
	}
	switch event.Type {
	case core.EventTrackerTransition:
		fmt.Fprintf(p.w, "  transition %-10s %-14v %v -> %v  tracker=%s\n",
			event.Agent, event.Payload["action_key"], event.Payload["from"], event.Payload["to"], event.TrackerID)
	case core.EventCatalogReloaded:
		fmt.Fprintf(p.w, "  catalog    %v %v\n", event.Payload["action_set"], event.Payload["action"])
	default:
		fmt.Fprintf(p.w, "  %-10s %-10s tracker=%s\n", event.Type, event.Agent, event.TrackerID)
	}
}

type stepJSON struct {
	Tick       uint64     `json:"tick"`
	Picks      []pickJSON `json:"picks"`
	Dispatches int        `json:"dispatches"`
	Despawned  int        `json:"despawned"`
	Dropped    int        `json:"dropped"`
	Open       int        `json:"open_rounds"`
	Rejected   []string   `json:"rejected_steps,omitempty"`
}

type pickJSON struct {
	Agent   string  `json:"agent"`
	Action  string  `json:"action"`
	Context string  `json:"context"`
	Score   float64 `json:"score"`
}

func (p *eventPrinter) step(s arbtest.StepReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var rejected []string
	for _, t := range s.Transitions {
		if t.Err != nil {
			rejected = append(rejected, fmt.Sprintf("%s %s: %v", t.Step.Agent, t.Step.To, t.Err))
		}
	}
	if p.json {
		out := stepJSON{
			Tick:       s.Tick,
			Picks:      []pickJSON{},
			Dispatches: len(s.Dispatches),
			Despawned:  len(s.Despawned),
			Dropped:    s.Dropped,
			Open:       s.Open,
			Rejected:   rejected,
		}
		for _, pick := range s.Picks {
			out.Picks = append(out.Picks, pickJSON{
				Agent:   string(pick.Agent),
				Action:  pick.ActionKey,
				Context: core.DescribeContext(pick.Context),
				Score:   pick.Score,
			})
		}
		_ = json.NewEncoder(p.w).Encode(out)
		return
	}
	fmt.Fprintf(p.w, "tick %d: %d pick(s), %d dispatch(es), %d open round(s)\n",
		s.Tick, len(s.Picks), len(s.Dispatches), s.Open)
	for _, pick := range s.Picks {
		fmt.Fprintf(p.w, "  pick       %-10s %-14s context=%s score=%.4f\n",
			pick.Agent, pick.ActionKey, core.DescribeContext(pick.Context), pick.Score)
	}
	for _, d := range s.Dispatches {
		fmt.Fprintf(p.w, "  dispatch   %-10s %-14s %s  tracker=%s\n", d.Agent, d.ActionKey, d.State, d.TrackerID)
	}
	for _, t := range s.Despawned {
		fmt.Fprintf(p.w, "  despawn    %-10s %-14s %s  tracker=%s\n", t.Agent(), t.Pick.ActionKey, t.State, t.ID)
	}
	for _, r := range rejected {
		fmt.Fprintf(p.w, "  rejected   %s\n", r)
	}
}

func (p *eventPrinter) summary(s simulateSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		_ = json.NewEncoder(p.w).Encode(map[string]any{"summary": s})
		return
	}
	fmt.Fprintf(p.w, "\n%s: %d tick(s), %d pick(s), %d live tracker(s), %d audit entries, strategy %s\n",
		s.Scenario, s.Ticks, s.Picks, s.Trackers, s.AuditEntries, s.Strategy)
	for _, f := range s.Failures {
		fmt.Fprintf(p.w, "  FAIL %s\n", f)
	}
}
