package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restartEvent() Event[string, string, int] {
	return Event[string, string, int]{Kind: Restart, Snapshot: map[string]Entry[string, int]{}}
}

func TestHubSubscribeEnqueuesRestartBeforeReturning(t *testing.T) {
	h := NewHub[string, string, int](0, nil)
	sub := h.Subscribe(4, restartEvent())

	select {
	case evt := <-sub.Events:
		assert.Equal(t, Restart, evt.Kind)
	default:
		t.Fatal("restart event was not enqueued synchronously by Subscribe")
	}
}

func TestHubBroadcastDropsSlowSubscriber(t *testing.T) {
	h := NewHub[string, string, int](0, nil)
	sub := h.Subscribe(1, restartEvent())
	<-sub.Events // drain the restart so the queue has a free slot

	// Fill the queue, then broadcast again without draining: the second
	// broadcast must find the subscriber's queue full and evict it. Broadcast
	// blocks until fan-out completes, so the eviction is visible immediately.
	h.Broadcast(Event[string, string, int]{Kind: Added, Key: "a"})
	h.Broadcast(Event[string, string, int]{Kind: Added, Key: "b"})

	assert.Equal(t, 0, h.Count())

	_, ok := <-sub.Events
	require.True(t, ok, "the first queued event should still be deliverable")
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub[string, string, int](0, nil)
	sub := h.Subscribe(4, restartEvent())
	<-sub.Events

	h.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after Unsubscribe")
	assert.Equal(t, 0, h.Count())
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub[string, string, int](0, nil)
	sub := h.Subscribe(4, restartEvent())
	h.Unsubscribe(sub.ID)
	assert.NotPanics(t, func() { h.Unsubscribe(sub.ID) })
}
