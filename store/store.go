/*
 * store/store.go
 *
 * Store is the owner-indexed reactive container: images: map K -> Entry,
 * pods: map O -> set<K>, kept consistent under a single exclusive writer
 * lock and broadcast through an embedded Hub.
 */

package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ctron/bommer/internal/logging"
)

// Store holds the bidirectional ownership index and emits broadcast events
// for every mutation. K is the tracked resource key, O the owning entity,
// V the per-key domain state.
type Store[K comparable, O comparable, V comparable] struct {
	mu     sync.RWMutex
	images map[K]Entry[O, V]
	pods   map[O]map[K]struct{}
	hub    *Hub[K, O, V]
}

// New constructs an empty Store whose broadcast fan-out uses fanOutLimit as
// its bounded-concurrency limit (0 means unbounded).
func New[K comparable, O comparable, V comparable](fanOutLimit int, logger logging.Logger) *Store[K, O, V] {
	return &Store[K, O, V]{
		images: make(map[K]Entry[O, V]),
		pods:   make(map[O]map[K]struct{}),
		hub:    NewHub[K, O, V](fanOutLimit, logger),
	}
}

// Apply reconciles the set of keys owned by owner. Re-applying the same
// keys for the same owner is a no-op and emits no events.
func (s *Store[K, O, V]) Apply(owner O, keys map[K]struct{}, initial func(K) V, onAdd func(K, V) V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.pods[owner]; ok && keySetEqual(current, keys) {
		return
	}

	s.deleteLocked(owner, onAdd)

	if len(keys) == 0 {
		return
	}

	assigned := make(map[K]struct{}, len(keys))
	for k := range keys {
		assigned[k] = struct{}{}

		entry, exists := s.images[k]
		if !exists {
			entry = Entry[O, V]{Owners: map[O]struct{}{owner: {}}, State: initial(k)}
			s.images[k] = entry
			s.hub.Broadcast(Event[K, O, V]{Kind: Added, Key: k, Entry: cloneEntry(entry)})
			continue
		}

		_, alreadyOwner := entry.Owners[owner]
		entry.Owners[owner] = struct{}{}
		entry.State = onAdd(k, entry.State)
		s.images[k] = entry
		if !alreadyOwner {
			s.hub.Broadcast(Event[K, O, V]{Kind: Modified, Key: k, Entry: cloneEntry(entry)})
		}
	}
	s.pods[owner] = assigned
}

// Delete releases every key currently owned by owner.
func (s *Store[K, O, V]) Delete(owner O, onRemove func(K, V) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(owner, onRemove)
}

func (s *Store[K, O, V]) deleteLocked(owner O, onRemove func(K, V) V) {
	keys, ok := s.pods[owner]
	if !ok {
		return
	}

	for k := range keys {
		entry, exists := s.images[k]
		if !exists {
			continue
		}
		delete(entry.Owners, owner)
		if len(entry.Owners) == 0 {
			delete(s.images, k)
			s.hub.Broadcast(Event[K, O, V]{Kind: Removed, Key: k})
			continue
		}
		entry.State = onRemove(k, entry.State)
		s.images[k] = entry
		s.hub.Broadcast(Event[K, O, V]{Kind: Modified, Key: k, Entry: cloneEntry(entry)})
	}
	delete(s.pods, owner)
}

// Reset atomically replaces both maps and emits a single Restart event. The
// caller is responsible for having built consistent maps.
func (s *Store[K, O, V]) Reset(images map[K]Entry[O, V], pods map[O]map[K]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = images
	s.pods = pods
	s.hub.Broadcast(Event[K, O, V]{Kind: Restart, Snapshot: s.snapshotLocked()})
}

// Mutate applies f to the current entry for key (nil if absent). Returning a
// non-nil entry where none existed emits Added; returning a changed entry
// emits Modified; returning nil where an entry existed emits Removed and
// also strips key from every former owner's key set.
func (s *Store[K, O, V]) Mutate(key K, f func(*Entry[O, V]) *Entry[O, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.images[key]
	var curPtr *Entry[O, V]
	if exists {
		c := cloneEntry(current)
		curPtr = &c
	}

	next := f(curPtr)

	switch {
	case curPtr == nil && next == nil:
		return

	case curPtr == nil && next != nil:
		s.images[key] = cloneEntry(*next)
		s.hub.Broadcast(Event[K, O, V]{Kind: Added, Key: key, Entry: cloneEntry(*next)})

	case curPtr != nil && next == nil:
		delete(s.images, key)
		for o := range curPtr.Owners {
			if keys, ok := s.pods[o]; ok {
				delete(keys, key)
				if len(keys) == 0 {
					delete(s.pods, o)
				}
			}
		}
		s.hub.Broadcast(Event[K, O, V]{Kind: Removed, Key: key})

	default:
		if entriesEqual(*curPtr, *next) {
			return
		}
		s.images[key] = cloneEntry(*next)
		s.hub.Broadcast(Event[K, O, V]{Kind: Modified, Key: key, Entry: cloneEntry(*next)})
	}
}

// Snapshot returns a consistent point-in-time copy of the tracked entries.
func (s *Store[K, O, V]) Snapshot() map[K]Entry[O, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store[K, O, V]) snapshotLocked() map[K]Entry[O, V] {
	out := make(map[K]Entry[O, V], len(s.images))
	for k, e := range s.images {
		out[k] = cloneEntry(e)
	}
	return out
}

// Subscribe registers a new subscription whose first event is a Restart
// built from the current snapshot, enqueued atomically with registration.
func (s *Store[K, O, V]) Subscribe(capacity int) Subscription[K, O, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	restart := Event[K, O, V]{Kind: Restart, Snapshot: s.snapshotLocked()}
	return s.hub.Subscribe(capacity, restart)
}

// Unsubscribe drops a subscription created by Subscribe.
func (s *Store[K, O, V]) Unsubscribe(id uuid.UUID) {
	s.hub.Unsubscribe(id)
}
