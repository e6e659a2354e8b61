package service

import (
	"sync"

	"github.com/policydesk/api/internal/model"
)

// SnapshotPublisher receives the full batch view after every accepted change
type SnapshotPublisher interface {
	PublishSnapshot(snap model.BatchSnapshot)
}

// PublisherFunc adapts a function to SnapshotPublisher
type PublisherFunc func(snap model.BatchSnapshot)

func (f PublisherFunc) PublishSnapshot(snap model.BatchSnapshot) {
	f(snap)
}

// StatusStore holds the per-target state of one batch. All writes go through
// model.Reduce, so a writer can only ever change its own target's entry.
type StatusStore struct {
	batchID string
	order   []string

	mu          sync.Mutex
	items       map[string]model.BatchItem
	subscribers map[int]SnapshotPublisher
	nextSubID   int
}

func NewStatusStore(batchID string, targets []model.BatchTarget) *StatusStore {
	order := make([]string, 0, len(targets))
	for _, t := range targets {
		order = append(order, t.TargetID)
	}
	return &StatusStore{
		batchID:     batchID,
		order:       order,
		items:       model.NewBatchItems(targets),
		subscribers: make(map[int]SnapshotPublisher),
	}
}

// Apply runs u through the reducer. Subscribers are notified while
// the store is locked, so they must not call back into it.
func (s *StatusStore) Apply(u model.Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := model.Reduce(s.items, u)
	if !ok {
		return false
	}
	s.items = next

	if len(s.subscribers) > 0 {
		snap := model.NewSnapshot(s.batchID, s.order, s.items)
		for _, sub := range s.subscribers {
			sub.PublishSnapshot(snap)
		}
	}
	return true
}

// Subscribe registers p and returns a function removing it
func (s *StatusStore) Subscribe(p SnapshotPublisher) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = p
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *StatusStore) Snapshot() model.BatchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.NewSnapshot(s.batchID, s.order, s.items)
}

// Item returns a copy of one target's entry
func (s *StatusStore) Item(targetID string) (model.BatchItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[targetID]
	if !ok {
		return model.BatchItem{}, false
	}
	if it.Status != nil {
		st := it.Status.Clone()
		it.Status = &st
	}
	it.AccessGroupIDs = append([]string(nil), it.AccessGroupIDs...)
	return it, true
}

func (s *StatusStore) BatchID() string {
	return s.batchID
}
