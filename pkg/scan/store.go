package scan

import (
	"sync"

	"github.com/memprobe/memprobe/pkg/logflags"
	"github.com/sirupsen/logrus"
)

// Store holds the match sets of all scan ids. One mutex guards the whole
// map; scanning and memory reads happen outside the lock, only the
// clear/append/replace/snapshot operations serialize on it.
//
// Sets never expire. Callers reclaim memory by rescanning an id, replacing
// it with a filter pass, or calling Remove.
type Store struct {
	mu   sync.Mutex
	sets map[string][]Match

	// retainCap, when positive, bounds how many matches are retained per
	// id. It exists as an opt-in guard against unbounded growth and does
	// not affect reported found counts.
	retainCap int

	log *logrus.Entry
}

// NewStore returns an empty result store.
func NewStore() *Store {
	return &Store{
		sets: make(map[string][]Match),
		log:  logflags.StoreLogger(),
	}
}

// SetRetainCap bounds how many matches future mutations retain per scan
// id. Zero restores the default unbounded behavior.
func (s *Store) SetRetainCap(cap int) {
	s.mu.Lock()
	s.retainCap = cap
	s.mu.Unlock()
}

// Clear empties the match set of id, creating it if needed.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	s.sets[id] = nil
	s.mu.Unlock()
}

// Append merges matches into the set of id, creating it if needed.
func (s *Store) Append(id string, matches []Match) {
	if len(matches) == 0 {
		return
	}
	s.mu.Lock()
	merged := append(s.sets[id], matches...)
	if s.retainCap > 0 && len(merged) > s.retainCap {
		merged = merged[:s.retainCap]
	}
	s.sets[id] = merged
	s.mu.Unlock()
	s.log.Debugf("appended %d matches to %q", len(matches), id)
}

// Replace discards the current set of id and stores matches in its place.
func (s *Store) Replace(id string, matches []Match) {
	s.mu.Lock()
	if s.retainCap > 0 && len(matches) > s.retainCap {
		matches = matches[:s.retainCap]
	}
	s.sets[id] = matches
	s.mu.Unlock()
	s.log.Debugf("replaced %q with %d matches", id, len(matches))
}

// Snapshot returns a copy of the match set of id and whether id exists.
func (s *Store) Snapshot(id string) ([]Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[id]
	if !ok {
		return nil, false
	}
	out := make([]Match, len(set))
	copy(out, set)
	return out, true
}

// Count returns the number of retained matches for id.
func (s *Store) Count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[id])
}

// Remove deletes the match set of id, releasing its memory. It reports
// whether id existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[id]
	delete(s.sets, id)
	return ok
}

// IDs returns all scan ids currently present.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sets))
	for id := range s.sets {
		ids = append(ids, id)
	}
	return ids
}
