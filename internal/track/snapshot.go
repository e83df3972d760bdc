package track

import (
	"sync"
	"time"
)

// SnapshotStore holds the last-known state of each tracked item. It is safe
// for concurrent use; a single coarse lock guards the whole store since call
// frequency is one poll cycle per session.
type SnapshotStore struct {
	mu    sync.RWMutex
	items map[string]Item
	now   func() time.Time
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		items: make(map[string]Item),
		now:   time.Now,
	}
}

// Get returns the snapshot for id, if present.
func (s *SnapshotStore) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Upsert merges a fetched observation into the store and reports whether it
// constitutes a real transition. An event is returned iff the status or
// error message differs from the prior snapshot, or the item is newly
// inserted with a known status. A terminal snapshot never regresses: once an
// item has been observed terminal, later non-terminal observations are
// dropped without mutating the store.
func (s *SnapshotStore) Upsert(item Item) (TransitionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.items[item.ID]
	if exists && prev.Terminal() && !item.Terminal() {
		return TransitionEvent{}, false
	}

	item.LastObservedAt = s.now()

	previousStatus := StatusUnknown
	if exists {
		previousStatus = prev.Status
	}
	changed := !exists && item.Status != StatusUnknown ||
		exists && (prev.Status != item.Status || prev.ErrorMessage != item.ErrorMessage)

	s.items[item.ID] = item
	if !changed {
		return TransitionEvent{}, false
	}
	return TransitionEvent{
		ItemID:         item.ID,
		Kind:           item.Kind,
		PreviousStatus: previousStatus,
		NewStatus:      item.Status,
		ErrorMessage:   item.ErrorMessage,
	}, true
}

// Remove deletes the snapshot for id.
func (s *SnapshotStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// NonTerminalIDs returns the ids of all snapshots still awaiting a terminal
// status.
func (s *SnapshotStore) NonTerminalIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id, item := range s.items {
		if !item.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Items returns a copy of every snapshot, for status reporting.
func (s *SnapshotStore) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	return items
}
