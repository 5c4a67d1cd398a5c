package dataset

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotLoaded is returned while no dataset snapshot is available.
var ErrNotLoaded = errors.New("datasets have not loaded yet")

// Store holds the current snapshot. Readers always see a complete snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set publishes a new snapshot.
func (s *Store) Set(snap *Snapshot) {
	s.current.Store(snap)
}

// Get returns the current snapshot or ErrNotLoaded.
func (s *Store) Get() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

// CheckReadiness returns nil once a snapshot is loaded.
func (s *Store) CheckReadiness(_ context.Context) error {
	_, err := s.Get()
	return err
}
