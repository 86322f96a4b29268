/*
 * store/hub.go
 *
 * Broadcast hub: one bounded FIFO queue per subscriber, with bounded-concurrency
 * fan-out and drop-on-congestion eviction of slow subscribers.
 */

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ctron/bommer/internal/logging"
	"github.com/ctron/bommer/internal/parallel"
)

// Subscription is a subscriber's handle on a Hub: a unique id and the
// receive-only channel it reads events from. The channel is closed when the
// subscriber is dropped, either explicitly via Unsubscribe or because the
// hub evicted it for being too slow.
type Subscription[K comparable, O comparable, V comparable] struct {
	ID     uuid.UUID
	Events <-chan Event[K, O, V]
}

// Hub fans broadcast events out to a set of bounded per-subscriber queues.
// A subscriber that cannot accept an event is dropped rather than blocked on.
type Hub[K comparable, O comparable, V comparable] struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan Event[K, O, V]
	fanOutLimit int
	logger      logging.Logger
}

// NewHub constructs a Hub whose fan-out proceeds with at most fanOutLimit
// concurrent subscriber deliveries (0 means unbounded).
func NewHub[K comparable, O comparable, V comparable](fanOutLimit int, logger logging.Logger) *Hub[K, O, V] {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Hub[K, O, V]{
		subscribers: make(map[uuid.UUID]chan Event[K, O, V]),
		fanOutLimit: fanOutLimit,
		logger:      logger,
	}
}

// Subscribe registers a new bounded queue of the given capacity and enqueues
// initial into it before returning, guaranteeing no later Broadcast can be
// observed ahead of initial by the new subscriber.
func (h *Hub[K, O, V]) Subscribe(capacity int, initial Event[K, O, V]) Subscription[K, O, V] {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan Event[K, O, V], capacity)
	ch <- initial

	id := uuid.New()
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return Subscription[K, O, V]{ID: id, Events: ch}
}

// Unsubscribe idempotently removes a subscriber and closes its channel.
func (h *Hub[K, O, V]) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Count returns the number of currently registered subscribers.
func (h *Hub[K, O, V]) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast delivers event to every current subscriber. Subscribers whose
// queue is full are evicted: their channel is closed and removed from the
// hub so a future receive observes end-of-stream.
func (h *Hub[K, O, V]) Broadcast(event Event[K, O, V]) {
	// The hub lock is held for the whole fan-out so a concurrent Unsubscribe
	// cannot close a channel while a send to it is in progress.
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(h.subscribers))
	chans := make(map[uuid.UUID]chan Event[K, O, V], len(h.subscribers))
	for id, ch := range h.subscribers {
		ids = append(ids, id)
		chans[id] = ch
	}

	var mu sync.Mutex
	var failed []uuid.UUID

	// Fan-out proceeds with bounded concurrency; each subscriber's own delivery
	// is a single non-blocking send, so this never stalls on a slow receiver.
	_ = parallel.ForEach(context.Background(), ids, h.fanOutLimit, func(_ context.Context, id uuid.UUID) error {
		select {
		case chans[id] <- event:
		default:
			mu.Lock()
			failed = append(failed, id)
			mu.Unlock()
		}
		return nil
	})

	if len(failed) == 0 {
		return
	}

	for _, id := range failed {
		if ch, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(ch)
		}
	}

	for _, id := range failed {
		h.logger.Warnf("dropped slow subscriber %s", id)
	}
}
