// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/arbiter/pkg/core"
)

// ConfigureSlog builds a logger with NewLogger and installs it as the
// slog default.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := NewLogger(output, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger returns a text or json logger whose records pick up the
// decision context of the call: trace_id and span_id from the active span,
// round_id and tick from the core context helpers. Attributes already set
// on a record are never overwritten.
func NewLogger(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	return slog.New(&decisionHandler{next: base})
}

// ParseLevel maps a level name to a slog level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type decisionHandler struct {
	next slog.Handler
}

func (h *decisionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *decisionHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		present := make(map[string]bool, record.NumAttrs())
		record.Attrs(func(a slog.Attr) bool {
			present[a.Key] = true
			return true
		})
		for _, a := range contextAttrs(ctx) {
			if !present[a.Key] {
				record.AddAttrs(a)
			}
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *decisionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &decisionHandler{next: h.next.WithAttrs(attrs)}
}

func (h *decisionHandler) WithGroup(name string) slog.Handler {
	return &decisionHandler{next: h.next.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := core.RoundID(ctx); ok {
		attrs = append(attrs, slog.String("round_id", id))
	}
	if tick := core.Tick(ctx); tick > 0 {
		attrs = append(attrs, slog.Uint64("tick", tick))
	}
	return attrs
}
