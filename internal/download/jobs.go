package download

import (
	"sort"
	"sync"
)

// ActiveJobSet holds the keys of jobs that are accepted and not yet finished.
type ActiveJobSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewActiveJobSet() *ActiveJobSet {
	return &ActiveJobSet{keys: make(map[string]struct{})}
}

// TryAdd inserts key unless it is already present. The check and the insert
// happen under one lock.
func (s *ActiveJobSet) TryAdd(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *ActiveJobSet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *ActiveJobSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Snapshot returns the keys sorted.
func (s *ActiveJobSet) Snapshot() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}

func (s *ActiveJobSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
