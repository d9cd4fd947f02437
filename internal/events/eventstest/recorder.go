// Package eventstest provides a Publisher that records events for assertions.
package eventstest

import (
	"sync"

	"github.com/cozy-creator/sticker-server/internal/events"
)

type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, events.Event{Type: eventType, Data: data})
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Event(nil), r.events...)
}

// OfType returns the payloads of every recorded event with the given type.
func (r *Recorder) OfType(eventType string) []events.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []events.Payload
	for _, e := range r.events {
		if e.Type != eventType {
			continue
		}
		p, _ := e.Data.(events.Payload)
		out = append(out, p)
	}

	return out
}
