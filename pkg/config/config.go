// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Arbiter settings from defaults, an optional YAML or
// JSON file and ARBITER_ environment variables, in that order.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/arbiter/pkg/curve"
	"github.com/jllopis/arbiter/pkg/engine"
	"github.com/jllopis/arbiter/pkg/errors"
	"github.com/jllopis/arbiter/pkg/fetch"
	"github.com/jllopis/arbiter/pkg/resilience"
	"github.com/jllopis/arbiter/pkg/telemetry"
	"github.com/jllopis/arbiter/pkg/tracker"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBITER_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Engine    EngineConfig    `koanf:"engine"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Tracker   TrackerConfig   `koanf:"tracker"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Audit     AuditConfig     `koanf:"audit"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
	OTLPTimeout  int    `koanf:"otlp_timeout_seconds"`
	ServiceName  string `koanf:"service_name"`
	// SampleRatio keeps this fraction of tick traces; 1 keeps all.
	SampleRatio    float64       `koanf:"sample_ratio"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

type EngineConfig struct {
	CurveMissStrategy string `koanf:"curve_miss_strategy"` // abort, skip_consideration, skip_action, default, default_quiet
	DefaultCurve      string `koanf:"default_curve"`
}

type PipelineConfig struct {
	FetchConcurrency int           `koanf:"fetch_concurrency"`
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	FetchAttempts    int           `koanf:"fetch_attempts"`
	FetchBackoff     time.Duration `koanf:"fetch_backoff"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
	ServeStale       bool          `koanf:"serve_stale"`
}

// TrackerConfig mirrors tracker.SpawnConfigBuilder: unset timer flags
// follow Timers.
type TrackerConfig struct {
	OwnerLink     bool  `koanf:"owner_link"`
	Ticking       bool  `koanf:"ticking"`
	Timers        bool  `koanf:"timers"`
	CreationTimer *bool `koanf:"creation_timer"`
	RuntimeTimer  *bool `koanf:"runtime_timer"`
	TickTimer     *bool `koanf:"tick_timer"`
}

type CatalogConfig struct {
	Paths    []string      `koanf:"paths"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce"`
}

type AuditConfig struct {
	Driver string `koanf:"driver"` // none, memory, sqlite, postgres
	DSN    string `koanf:"dsn"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", false)
	k.Set("telemetry.otlp_timeout_seconds", 10)
	k.Set("telemetry.service_name", "arbiter")
	k.Set("telemetry.sample_ratio", 1.0)
	k.Set("telemetry.metric_interval", "1m")

	k.Set("engine.curve_miss_strategy", string(engine.CurveMissAbort))
	k.Set("engine.default_curve", "Linear")

	k.Set("pipeline.fetch_concurrency", 8)
	k.Set("pipeline.fetch_timeout", "0s")
	k.Set("pipeline.fetch_attempts", 1)
	k.Set("pipeline.fetch_backoff", "50ms")
	k.Set("pipeline.breaker_threshold", 0)
	k.Set("pipeline.breaker_cooldown", "30s")
	k.Set("pipeline.serve_stale", false)

	k.Set("tracker.owner_link", true)
	k.Set("tracker.ticking", false)
	k.Set("tracker.timers", false)

	k.Set("catalog.watch", false)
	k.Set("catalog.debounce", "200ms")

	k.Set("audit.driver", "none")
}

// LoadOptions selects the sources Load reads on top of the defaults.
type LoadOptions struct {
	// Path is an optional YAML or JSON file.
	Path string
	// Profile merges a sibling file: "dev" with "arbiter.yaml" reads
	// "arbiter.dev.yaml" when it exists.
	Profile string
	// Overrides are "key=value" pairs applied last, as from a --set flag.
	Overrides []string
}

// Load reads path (may be empty) over the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	return LoadWith(LoadOptions{Path: path})
}

// LoadWithProfile is Load plus a profile file next to path.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadWith(LoadOptions{Path: path, Profile: profile})
}

// LoadWith reads defaults, files, ARBITER_ environment variables and
// explicit overrides, in that order.
func LoadWith(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	for _, p := range configFiles(opts.Path, opts.Profile) {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).
				WithContext("path", p)
		}
	}

	// ARBITER_ENGINE_CURVE__MISS__STRATEGY -> engine.curve_miss_strategy
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "load environment", err)
	}

	for _, kv := range opts.Overrides {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New(errors.CodeInvalidInput, "override must be key=value", nil).
				WithContext("override", kv)
		}
		if err := k.Set(key, strings.TrimSpace(value)); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "apply override", err).
				WithContext("override", kv)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", "\x00")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "\x00", "_")
}

func configFiles(path, profile string) []string {
	if path == "" {
		return nil
	}
	files := []string{path}
	if p := profilePath(path, profile); p != "" {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files
}

func profilePath(path, profile string) string {
	if profile == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	if _, err := engine.ParseCurveMissStrategy(c.Engine.CurveMissStrategy); err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid engine.curve_miss_strategy", err).
			WithContext("value", c.Engine.CurveMissStrategy)
	}
	if _, ok := curve.Builtin(c.Engine.DefaultCurve); !ok {
		return errors.New(errors.CodeInvalidInput, "unknown engine.default_curve", nil).
			WithContext("value", c.Engine.DefaultCurve)
	}
	if c.Pipeline.FetchConcurrency < 1 {
		return errors.New(errors.CodeInvalidInput, "pipeline.fetch_concurrency must be at least 1", nil).
			WithContext("value", c.Pipeline.FetchConcurrency)
	}
	if c.Pipeline.FetchAttempts < 1 {
		return errors.New(errors.CodeInvalidInput, "pipeline.fetch_attempts must be at least 1", nil).
			WithContext("value", c.Pipeline.FetchAttempts)
	}
	if c.Pipeline.FetchTimeout < 0 || c.Pipeline.BreakerThreshold < 0 {
		return errors.New(errors.CodeInvalidInput, "pipeline fetch guards must not be negative", nil)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return errors.New(errors.CodeInvalidInput, "telemetry.sample_ratio must be within [0,1]", nil).
			WithContext("value", r)
	}
	switch strings.ToLower(c.Telemetry.Exporter) {
	case "stdout", "otlp", "none":
	default:
		return errors.New(errors.CodeInvalidInput, "invalid telemetry.exporter", nil).
			WithContext("value", c.Telemetry.Exporter)
	}
	switch strings.ToLower(c.Audit.Driver) {
	case "", "none", "memory", "sqlite", "postgres":
	default:
		return errors.New(errors.CodeInvalidInput, "invalid audit.driver", nil).
			WithContext("value", c.Audit.Driver)
	}
	return nil
}

// Strategy returns the parsed curve-miss strategy.
func (e EngineConfig) Strategy() engine.CurveMissStrategy {
	s, err := engine.ParseCurveMissStrategy(e.CurveMissStrategy)
	if err != nil {
		return engine.CurveMissAbort
	}
	return s
}

// Fallback resolves the configured default curve, falling back to Linear.
func (e EngineConfig) Fallback() engine.FallbackFunc {
	if c, ok := curve.Builtin(e.DefaultCurve); ok {
		return engine.FallbackTo(c)
	}
	return engine.FallbackTo(curve.Linear)
}

// FetchPolicy resolves the guard applied to every context fetcher.
func (p PipelineConfig) FetchPolicy() fetch.Policy {
	return fetch.Policy{
		Timeout: p.FetchTimeout,
		Retry: resilience.DefaultRetry().
			WithMaxAttempts(p.FetchAttempts).
			WithInitialDelay(p.FetchBackoff),
		BreakerThreshold: p.BreakerThreshold,
		BreakerCooldown:  p.BreakerCooldown,
		ServeStale:       p.ServeStale,
	}
}

// SpawnConfig resolves the tracker defaults.
func (t TrackerConfig) SpawnConfig() tracker.SpawnConfig {
	b := tracker.NewSpawnConfig().
		Owner(t.OwnerLink).
		Ticking(t.Ticking).
		Timers(t.Timers)
	if t.CreationTimer != nil {
		b.CreationTimer(*t.CreationTimer)
	}
	if t.RuntimeTimer != nil {
		b.RuntimeTimer(*t.RuntimeTimer)
	}
	if t.TickTimer != nil {
		b.TickTimer(*t.TickTimer)
	}
	return b.Build()
}

// Settings returns the options for telemetry.Setup. A disabled section
// maps to the "none" exporter.
func (t TelemetryConfig) Settings() telemetry.Config {
	exporter := strings.ToLower(t.Exporter)
	if !t.Enabled {
		exporter = "none"
	}
	return telemetry.Config{
		ServiceName:        t.ServiceName,
		Exporter:           exporter,
		OTLPEndpoint:       t.OTLPEndpoint,
		OTLPInsecure:       t.OTLPInsecure,
		OTLPTimeoutSeconds: t.OTLPTimeout,
		SampleRatio:        t.SampleRatio,
		MetricInterval:     t.MetricInterval,
	}
}
