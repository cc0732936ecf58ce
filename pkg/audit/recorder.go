package audit

import (
	"context"
	"log/slog"

	"github.com/jllopis/arbiter/pkg/core"
)

// Recorder adapts a Store to core.EventEmitter. It records action-picked
// and tracker-transition events and ignores the rest. Storage errors are
// logged; emission never fails.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder wraps store. A nil logger uses slog.Default.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Emit implements core.EventEmitter.
func (r *Recorder) Emit(ctx context.Context, event core.Event) {
	entry, ok := entryFromEvent(event)
	if !ok {
		return
	}
	if err := r.store.Record(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "audit.record.failed",
			slog.String("kind", string(entry.Kind)),
			slog.String("agent", entry.Agent),
			slog.String("error", err.Error()),
		)
	}
}

func entryFromEvent(event core.Event) (Entry, bool) {
	entry := Entry{
		Agent:      string(event.Agent),
		TrackerID:  event.TrackerID,
		ActionKey:  payloadString(event.Payload, "action_key"),
		RecordedAt: event.Timestamp,
	}
	switch event.Type {
	case core.EventActionPicked:
		entry.Kind = KindPick
		entry.RoundID = payloadString(event.Payload, "round_id")
		entry.ActionName = payloadString(event.Payload, "action_name")
		entry.Context = payloadString(event.Payload, "context")
		if tick, ok := event.Payload["tick"].(uint64); ok {
			entry.Tick = tick
		}
		if score, ok := event.Payload["score"].(float64); ok {
			entry.Score = score
		}
	case core.EventTrackerTransition:
		entry.Kind = KindTransition
		entry.From = payloadString(event.Payload, "from")
		entry.To = payloadString(event.Payload, "to")
	default:
		return Entry{}, false
	}
	return entry, true
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
