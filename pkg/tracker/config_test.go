package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpawnConfigBuilder(t *testing.T) {
	tests := []struct {
		name string
		b    *SpawnConfigBuilder
		want SpawnConfig
	}{
		{"defaults", NewSpawnConfig(), SpawnConfig{OwnerLink: true}},
		{"ticking only", NewSpawnConfig().Ticking(true), SpawnConfig{OwnerLink: true, Ticking: true}},
		{"timers only", NewSpawnConfig().Timers(true), SpawnConfig{OwnerLink: true, CreationTimer: true, RuntimeTimer: true}},
		{
			"ticking and timers",
			NewSpawnConfig().Ticking(true).Timers(true),
			SpawnConfig{OwnerLink: true, Ticking: true, CreationTimer: true, RuntimeTimer: true, TickTimer: true},
		},
		{
			"explicit overrides win",
			NewSpawnConfig().Owner(false).Timers(true).CreationTimer(false).TickTimer(true),
			SpawnConfig{RuntimeTimer: true, TickTimer: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.b.Build()); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if DefaultSpawnConfig() != NewSpawnConfig().Build() {
		t.Fatalf("default config must match an untouched builder")
	}
}
