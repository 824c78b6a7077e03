package snapshot

import (
	"sync/atomic"

	"netwatch/pkg/models"
)

// Store holds the current snapshot. Publish swaps a pointer, so readers that
// loaded the previous snapshot keep a complete, unchanging view of it.
// Only one goroutine (the scheduler) may call Publish.
type Store struct {
	current atomic.Pointer[models.Snapshot]
}

// NewStore returns an empty store; Current reports false until the first Publish.
func NewStore() *Store {
	return &Store{}
}

// Publish installs snap as current and returns the snapshot it replaced, or nil.
func (s *Store) Publish(snap *models.Snapshot) *models.Snapshot {
	return s.current.Swap(snap)
}

// Current returns the latest published snapshot.
func (s *Store) Current() (*models.Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Reset drops the current snapshot on shutdown.
func (s *Store) Reset() {
	s.current.Store(nil)
}
