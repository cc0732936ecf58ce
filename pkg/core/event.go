package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the engine or the tracker store.
type EventType string

const (
	EventActionPicked      EventType = "action.picked"
	EventTrackerSpawned    EventType = "tracker.spawned"
	EventTrackerTransition EventType = "tracker.transition"
	EventTrackerDispatched EventType = "tracker.dispatched"
	EventTrackerDespawned  EventType = "tracker.despawned"
	EventCatalogReloaded   EventType = "catalog.reloaded"
)

// Event captures a semantic event. Payload keys are event specific; tracker
// transitions carry "action_key", "from" and "to".
type Event struct {
	Type      EventType
	Agent     AgentID
	TrackerID string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Emitters fans an event out to several emitters in order.
type Emitters []EventEmitter

// Emit implements EventEmitter.
func (es Emitters) Emit(ctx context.Context, event Event) {
	for _, e := range es {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, agent AgentID, trackerID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Agent:     agent,
		TrackerID: trackerID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// PickedEvent builds the action-picked event for p. The context is rendered
// with DescribeContext.
func PickedEvent(p Pick) Event {
	return NewEvent(EventActionPicked, p.Agent, "", map[string]any{
		"round_id":    p.RoundID,
		"tick":        p.Tick,
		"pawn":        string(p.Pawn),
		"action_key":  p.ActionKey,
		"action_name": p.ActionName,
		"context":     DescribeContext(p.Context),
		"score":       p.Score,
	})
}
