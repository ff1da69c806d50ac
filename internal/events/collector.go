package events

import "sync"

// EventCollector records every event it sees, for tests and summaries.
type EventCollector struct {
	mu     sync.Mutex
	events []Event
	unsub  func()
}

// NewEventCollector subscribes a collector to the bus.
func NewEventCollector(bus *Bus) *EventCollector {
	c := &EventCollector{}
	c.unsub = bus.Subscribe(func(e Event) {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
	})
	return c
}

// Get returns a copy of the collected events in arrival order.
func (c *EventCollector) Get() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// OfType returns collected events matching the given type.
func (c *EventCollector) OfType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Stop unsubscribes the collector from the bus.
func (c *EventCollector) Stop() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}
