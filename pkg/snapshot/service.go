package snapshot

import "sync"

// Store holds the most recent successfully decoded Snapshot. Exactly one
// writer (the acquisition loop) calls Update and SetConnected; any number
// of concurrent readers call Current and Connected. Readers get the struct
// by value, so an Update can never be observed half-applied.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	hasData   bool
	connected bool
}

func NewStore() *Store {
	return &Store{}
}

// Update publishes a new snapshot. Only complete, checksum-validated
// decodes reach this point; partial results must never be written.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.hasData = true
	s.mu.Unlock()
}

// Current returns the latest snapshot. The second return is false before
// the first successful decode; after that, stale snapshots are still
// returned so consumers can judge freshness by the timestamp.
func (s *Store) Current() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.hasData
}

// SetConnected records whether the serial link is currently up.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Ok is the consumer-facing health flag: data exists and the link is up.
func (s *Store) Ok() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasData && s.connected
}
