package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub fans published events out to every live subscriber. Each subscriber
// owns an unbounded FIFO drained by its own goroutine, so Publish never
// blocks on a slow reader and a reader sees events in publish order.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	now    func() time.Time
}

type subscriber struct {
	mu      sync.Mutex
	pending []Event
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns its event stream. The channel
// is closed once ctx ends or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)
	sub := &subscriber{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(out)
		return out
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(sub)
		case <-sub.done:
		}
	}()
	go sub.pump(out)

	return out
}

func (h *Hub) Publish(eventType string, data any) {
	event := Event{
		ID:   uuid.New(),
		Type: eventType,
		Data: data,
		Time: h.now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		sub.push(event)
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close detaches every subscriber and closes their channels. Publishing to a
// closed hub is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.stop()
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
	}
	sub.stop()
}

func (s *subscriber) push(event Event) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) pump(out chan<- Event) {
	defer close(out)

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, event := range batch {
			select {
			case out <- event:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.signal:
		case <-s.done:
			return
		}
	}
}
