package testing

import (
	"context"
	"sync"

	"github.com/jllopis/arbiter/pkg/core"
	"github.com/jllopis/arbiter/pkg/tracker"
)

// EventCollector is a core.EventEmitter that keeps every lifecycle event in
// emission order. It is safe for concurrent emitters.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewEventCollector returns an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Events returns a copy of everything collected.
func (c *EventCollector) Events() []core.Event {
	return c.Filter(func(core.Event) bool { return true })
}

// Filter returns the events keep accepts.
func (c *EventCollector) Filter(keep func(core.Event) bool) []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.Event
	for _, ev := range c.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// OfType returns the events of one type.
func (c *EventCollector) OfType(eventType core.EventType) []core.Event {
	return c.Filter(func(ev core.Event) bool { return ev.Type == eventType })
}

// ForAgent returns the events about one agent.
func (c *EventCollector) ForAgent(agent core.AgentID) []core.Event {
	return c.Filter(func(ev core.Event) bool { return ev.Agent == agent })
}

// HasEvent reports whether any event of the type was collected.
func (c *EventCollector) HasEvent(eventType core.EventType) bool {
	return len(c.OfType(eventType)) > 0
}

// Transition is a tracker state change as seen on the event stream.
type Transition struct {
	TrackerID string
	Agent     core.AgentID
	From, To  tracker.State
}

// Transitions decodes the tracker transition events in order. Events whose
// payload does not name valid states are skipped.
func (c *EventCollector) Transitions() []Transition {
	var out []Transition
	for _, ev := range c.OfType(core.EventTrackerTransition) {
		from, _ := ev.Payload["from"].(string)
		to, _ := ev.Payload["to"].(string)
		f, err1 := tracker.ParseState(from)
		n, err2 := tracker.ParseState(to)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, Transition{TrackerID: ev.TrackerID, Agent: ev.Agent, From: f, To: n})
	}
	return out
}

// Count returns the number of collected events.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset drops everything collected.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
