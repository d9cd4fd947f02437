package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubDeliversInOrderToEverySubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := hub.Subscribe(ctx)
	b := hub.Subscribe(ctx)
	assert.Equal(t, 2, hub.Subscribers())

	for i := 0; i < 100; i++ {
		hub.Publish(TypeImageCreated, Payload{"n": i})
	}

	for _, ch := range []<-chan Event{a, b} {
		for i := 0; i < 100; i++ {
			event := receive(t, ch)
			assert.Equal(t, TypeImageCreated, event.Type)
			assert.Equal(t, i, event.Data.(Payload)["n"])
			assert.NotEqual(t, uuid.Nil, event.ID)
		}
	}
}

func TestPublishDoesNotBlockOnIdleSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_ = hub.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.Publish(TypeJobUpdated, fmt.Sprint(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestSubscriberRemovedWhenContextEnds(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx)
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestCloseEndsStreams(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(context.Background())

	hub.Close()
	hub.Publish(TypeJobCreated, nil)

	for range ch {
	}
	assert.Equal(t, 0, hub.Subscribers())

	late := hub.Subscribe(context.Background())
	_, ok := <-late
	assert.False(t, ok)
}
