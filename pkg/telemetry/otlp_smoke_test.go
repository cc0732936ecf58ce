package telemetry

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("ARBITER_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set ARBITER_OTLP_SMOKE_TEST=1 to run")
	}

	endpoint := os.Getenv("ARBITER_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set ARBITER_TELEMETRY_OTLP_ENDPOINT for OTLP smoke test")
	}

	cfg := Config{
		ServiceName:  "telemetry-smoke-test",
		Version:      "v0.1.0",
		Exporter:     "otlp",
		OTLPEndpoint: endpoint,
		SampleRatio:  1,
	}
	if os.Getenv("ARBITER_TELEMETRY_OTLP_INSECURE") == "true" {
		cfg.OTLPInsecure = true
	}
	if raw := os.Getenv("ARBITER_TELEMETRY_OTLP_TIMEOUT_SECONDS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.OTLPTimeoutSeconds = parsed
		}
	}

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}

	tracer := otel.Tracer("arbiter/telemetry-smoke")
	ctx, span := tracer.Start(context.Background(), "engine.decide",
		trace.WithAttributes(RoundAttributes("round-smoke", "npc-smoke", "", 1)...))
	span.SetAttributes(PickAttributes(true, "smoke", 0.5)...)
	span.End()

	dm, err := NewDecisionMetrics(ctx)
	if err != nil {
		t.Fatalf("decision metrics: %v", err)
	}
	dm.RecordRound(ctx, true)
	dm.RecordPick(ctx, "smoke", 0.5)

	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
