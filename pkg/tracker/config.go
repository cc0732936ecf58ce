// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

// SpawnConfig selects which extensions a tracker carries. It is read once
// at spawn time.
type SpawnConfig struct {
	OwnerLink     bool `koanf:"owner_link" yaml:"owner_link" json:"owner_link"`
	Ticking       bool `koanf:"ticking" yaml:"ticking" json:"ticking"`
	CreationTimer bool `koanf:"creation_timer" yaml:"creation_timer" json:"creation_timer"`
	RuntimeTimer  bool `koanf:"runtime_timer" yaml:"runtime_timer" json:"runtime_timer"`
	TickTimer     bool `koanf:"tick_timer" yaml:"tick_timer" json:"tick_timer"`
}

// DefaultSpawnConfig links the owner and enables nothing else.
func DefaultSpawnConfig() SpawnConfig {
	return NewSpawnConfig().Build()
}

// SpawnConfigBuilder derives the individual timer flags from the coarse
// ticking and timers switches unless they are set explicitly.
type SpawnConfigBuilder struct {
	owner    bool
	ticking  bool
	timers   bool
	creation *bool
	runtime  *bool
	tick     *bool
}

// NewSpawnConfig starts a builder with the owner link on, ticking off and
// timers off.
func NewSpawnConfig() *SpawnConfigBuilder {
	return &SpawnConfigBuilder{owner: true}
}

// Owner toggles the owning-agent link.
func (b *SpawnConfigBuilder) Owner(on bool) *SpawnConfigBuilder {
	b.owner = on
	return b
}

// Ticking toggles the per-tick dispatch marker.
func (b *SpawnConfigBuilder) Ticking(on bool) *SpawnConfigBuilder {
	b.ticking = on
	return b
}

// Timers is the default for every timer flag not set explicitly.
func (b *SpawnConfigBuilder) Timers(on bool) *SpawnConfigBuilder {
	b.timers = on
	return b
}

// CreationTimer overrides the creation timer flag.
func (b *SpawnConfigBuilder) CreationTimer(on bool) *SpawnConfigBuilder {
	b.creation = &on
	return b
}

// RuntimeTimer overrides the runtime timer flag.
func (b *SpawnConfigBuilder) RuntimeTimer(on bool) *SpawnConfigBuilder {
	b.runtime = &on
	return b
}

// TickTimer overrides the tick timer flag.
func (b *SpawnConfigBuilder) TickTimer(on bool) *SpawnConfigBuilder {
	b.tick = &on
	return b
}

// Build resolves the configuration. The tick timer defaults to ticking and
// timers both being on.
func (b *SpawnConfigBuilder) Build() SpawnConfig {
	cfg := SpawnConfig{
		OwnerLink:     b.owner,
		Ticking:       b.ticking,
		CreationTimer: b.timers,
		RuntimeTimer:  b.timers,
		TickTimer:     b.ticking && b.timers,
	}
	if b.creation != nil {
		cfg.CreationTimer = *b.creation
	}
	if b.runtime != nil {
		cfg.RuntimeTimer = *b.runtime
	}
	if b.tick != nil {
		cfg.TickTimer = *b.tick
	}
	return cfg
}
