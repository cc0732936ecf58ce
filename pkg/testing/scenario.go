// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides utilities for testing decision pipelines.
//
// This package includes:
//   - Scenario definitions, built in code or loaded from YAML files
//   - Scripted fetchers and considerations with call recording
//   - Assertion helpers for picks and scores
//   - Event collectors for verifying lifecycle behavior
//
// Example usage:
//
//	scenario := testing.NewScenario("guard patrol").
//	    WithActionSet(patrolSet).
//	    WithFetcher("waypoints", testing.FetcherScript{Contexts: []string{"north", "south"}}).
//	    WithConsideration("distance", testing.ConsiderationScript{Scores: map[string]float64{"north": 0.9}}).
//	    WithAgent(testing.AgentScript{ID: "guard", Sources: []string{"patrol"}}).
//	    ExpectPick(1, "guard", "patrol")
//
//	result := scenario.Run(t)
//	result.Assert(t, scenario)
package testing

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/lod"
	"github.com/jllopis/arbiter/pkg/tracker"
)

// Scenario describes a scripted simulation: which action sets exist, what
// fetchers and considerations answer, which agents ask for decisions and
// how their trackers progress.
type Scenario struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description,omitempty"`
	Ticks             int    `yaml:"ticks,omitempty"`
	CurveMissStrategy string `yaml:"curve_miss_strategy,omitempty"`
	// ActionSetFiles are loaded relative to the scenario file.
	ActionSetFiles []string            `yaml:"action_set_files,omitempty"`
	ActionSets     []catalog.ActionSet `yaml:"action_sets,omitempty"`

	Fetchers       map[string]FetcherScript       `yaml:"fetchers,omitempty"`
	Considerations map[string]ConsiderationScript `yaml:"considerations,omitempty"`
	Agents         []AgentScript                  `yaml:"agents"`

	// TrackerDefaults replaces the store's spawn defaults when set.
	TrackerDefaults *tracker.SpawnConfig `yaml:"tracker_defaults,omitempty"`
	TrackerSteps    []TrackerStep        `yaml:"tracker_steps,omitempty"`

	PickChecks []PickExpectation `yaml:"expect,omitempty"`

	baseDir      string
	expectations []Expectation
}

// FetcherScript scripts a context fetcher.
type FetcherScript struct {
	Contexts []string            `yaml:"contexts"`
	Agents   map[string][]string `yaml:"agents,omitempty"`
	// Deferred fetchers answer through the pipeline's outbound queue,
	// DeliverAfter ticks after the request (at least one).
	Deferred     bool `yaml:"deferred,omitempty"`
	DeliverAfter int  `yaml:"deliver_after,omitempty"`
}

// ConsiderationScript scripts raw consideration scores per context.
type ConsiderationScript struct {
	Default float64            `yaml:"default"`
	Scores  map[string]float64 `yaml:"scores,omitempty"`
	// Fail lists contexts whose evaluation returns an error.
	Fail []string `yaml:"fail,omitempty"`
}

// AgentScript schedules an agent's decision requests.
type AgentScript struct {
	ID      string   `yaml:"id"`
	Pawn    string   `yaml:"pawn,omitempty"`
	LOD     string   `yaml:"lod,omitempty"`
	Sources []string `yaml:"sources"`
	// Start is the first requesting tick; zero means tick 1.
	Start uint64 `yaml:"start,omitempty"`
	// Every repeats the request every N ticks; zero requests once.
	Every int                  `yaml:"every,omitempty"`
	Spawn *tracker.SpawnConfig `yaml:"spawn,omitempty"`

	level *lod.Level
}

func (a AgentScript) due(tick uint64) bool {
	start := max(a.Start, 1)
	if tick < start {
		return false
	}
	if a.Every <= 0 {
		return tick == start
	}
	return (tick-start)%uint64(a.Every) == 0
}

// TrackerStep changes an agent's newest tracker (optionally the newest one
// for ActionKey) before the pipeline runs at Tick. Remove drops the agent
// from the tracker store instead.
type TrackerStep struct {
	Tick      uint64        `yaml:"tick"`
	Agent     string        `yaml:"agent"`
	ActionKey string        `yaml:"action_key,omitempty"`
	To        tracker.State `yaml:"to,omitempty"`
	Remove    bool          `yaml:"remove,omitempty"`
}

// NewScenario creates an empty scenario with the given name.
func NewScenario(name string) *Scenario {
	return &Scenario{
		Name:           name,
		Fetchers:       make(map[string]FetcherScript),
		Considerations: make(map[string]ConsiderationScript),
	}
}

// LoadScenario reads a YAML scenario file. Relative action-set files are
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "read scenario", err).WithContext("path", path)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.baseDir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode scenario", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario and resolves agent levels.
func (s *Scenario) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf(format, args...), nil).WithContext("scenario", s.Name)
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalid("scenario name is required")
	}
	if len(s.Agents) == 0 {
		return invalid("scenario %q has no agents", s.Name)
	}
	if s.CurveMissStrategy != "" {
		if _, err := engine.ParseCurveMissStrategy(s.CurveMissStrategy); err != nil {
			return invalid("scenario %q: %v", s.Name, err)
		}
	}
	seen := make(map[string]struct{}, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		if strings.TrimSpace(a.ID) == "" {
			return invalid("agent %d missing id", i)
		}
		if _, dup := seen[a.ID]; dup {
			return invalid("duplicate agent %q", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.Every < 0 {
			return invalid("agent %q: every must not be negative", a.ID)
		}
		a.level = nil
		if a.LOD != "" {
			level, err := lod.Parse(a.LOD)
			if err != nil {
				return invalid("agent %q: %v", a.ID, err)
			}
			a.level = &level
		}
	}
	for key, f := range s.Fetchers {
		if f.DeliverAfter < 0 {
			return invalid("fetcher %q: deliver_after must not be negative", key)
		}
	}
	for i, step := range s.TrackerSteps {
		if step.Tick == 0 || step.Agent == "" {
			return invalid("tracker step %d needs a tick and an agent", i)
		}
	}
	for i, e := range s.PickChecks {
		if e.Tick == 0 || e.Agent == "" {
			return invalid("expectation %d needs a tick and an agent", i)
		}
		if !e.None && e.Action == "" {
			return invalid("expectation %d needs an action or none", i)
		}
	}
	return nil
}

// WithDescription adds a description to the scenario.
func (s *Scenario) WithDescription(desc string) *Scenario {
	s.Description = desc
	return s
}

// WithTicks sets how many ticks Run drives.
func (s *Scenario) WithTicks(n int) *Scenario {
	s.Ticks = n
	return s
}

// WithCurveMissStrategy selects the engine's unresolved-curve policy.
func (s *Scenario) WithCurveMissStrategy(strategy engine.CurveMissStrategy) *Scenario {
	s.CurveMissStrategy = string(strategy)
	return s
}

// WithActionSet adds an inline action set.
func (s *Scenario) WithActionSet(set catalog.ActionSet) *Scenario {
	s.ActionSets = append(s.ActionSets, set)
	return s
}

// WithFetcher scripts the fetcher registered under key.
func (s *Scenario) WithFetcher(key string, f FetcherScript) *Scenario {
	if s.Fetchers == nil {
		s.Fetchers = make(map[string]FetcherScript)
	}
	s.Fetchers[key] = f
	return s
}

// WithConsideration scripts the consideration registered under key.
func (s *Scenario) WithConsideration(key string, c ConsiderationScript) *Scenario {
	if s.Considerations == nil {
		s.Considerations = make(map[string]ConsiderationScript)
	}
	s.Considerations[key] = c
	return s
}

// WithAgent schedules an agent.
func (s *Scenario) WithAgent(a AgentScript) *Scenario {
	s.Agents = append(s.Agents, a)
	return s
}

// WithTrackerDefaults sets the tracker spawn defaults.
func (s *Scenario) WithTrackerDefaults(cfg tracker.SpawnConfig) *Scenario {
	s.TrackerDefaults = &cfg
	return s
}

// WithTrackerStep schedules a tracker transition.
func (s *Scenario) WithTrackerStep(step TrackerStep) *Scenario {
	s.TrackerSteps = append(s.TrackerSteps, step)
	return s
}

// Expect adds an expectation to the scenario.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectPick expects agent to pick action at tick.
func (s *Scenario) ExpectPick(tick uint64, agent, action string) *Scenario {
	s.PickChecks = append(s.PickChecks, PickExpectation{Tick: tick, Agent: agent, Action: action})
	return s
}

// ExpectNoPick expects agent to pick nothing at tick.
func (s *Scenario) ExpectNoPick(tick uint64, agent string) *Scenario {
	s.PickChecks = append(s.PickChecks, PickExpectation{Tick: tick, Agent: agent, None: true})
	return s
}

// ExpectEvent expects at least one event of the given type.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectNoError expects every tick to succeed.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects the run to stop with an error carrying code.
func (s *Scenario) ExpectError(code errors.ErrorCode) *Scenario {
	return s.Expect(&errorExpectation{code: code})
}

// Expectations returns the scripted pick expectations followed by the ones
// added in code.
func (s *Scenario) Expectations() []Expectation {
	out := make([]Expectation, 0, len(s.PickChecks)+len(s.expectations))
	for _, e := range s.PickChecks {
		out = append(out, e)
	}
	return append(out, s.expectations...)
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// PickExpectation checks one agent's outcome at one tick. Context and
// Score are only compared when set.
type PickExpectation struct {
	Tick    uint64   `yaml:"tick"`
	Agent   string   `yaml:"agent"`
	Action  string   `yaml:"action,omitempty"`
	Context string   `yaml:"context,omitempty"`
	Score   *float64 `yaml:"score,omitempty"`
	None    bool     `yaml:"none,omitempty"`
}

// Check implements Expectation.
func (e PickExpectation) Check(r *ScenarioResult) error {
	pick, ok := r.PickFor(e.Tick, core.AgentID(e.Agent))
	if e.None {
		if ok {
			return fmt.Errorf("expected no pick, got %s", pick.ActionKey)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("no pick")
	}
	if pick.ActionKey != e.Action {
		return fmt.Errorf("picked %s", pick.ActionKey)
	}
	if e.Context != "" && core.DescribeContext(pick.Context) != e.Context {
		return fmt.Errorf("picked context %s", core.DescribeContext(pick.Context))
	}
	if e.Score != nil && math.Abs(pick.Score-*e.Score) > ScoreTolerance {
		return fmt.Errorf("score %v, want %v", pick.Score, *e.Score)
	}
	return nil
}

// Description implements Expectation.
func (e PickExpectation) Description() string {
	if e.None {
		return fmt.Sprintf("tick %d: %s picks nothing", e.Tick, e.Agent)
	}
	return fmt.Sprintf("tick %d: %s picks %s", e.Tick, e.Agent, e.Action)
}

type eventExpectation struct {
	eventType core.EventType
}

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event type %q was not emitted", e.eventType)
}

func (e *eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Err != nil {
		return fmt.Errorf("expected no error, got: %v", r.Err)
	}
	return nil
}

func (e *noErrorExpectation) Description() string {
	return "no error"
}

type errorExpectation struct {
	code errors.ErrorCode
}

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if !errors.IsCode(r.Err, e.code) {
		return fmt.Errorf("expected %s, got: %v", e.code, r.Err)
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return fmt.Sprintf("error %s", e.code)
}
