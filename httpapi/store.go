package httpapi

import (
	"context"
	"sync"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

// Store is a runner sink keeping the latest record of every machine.
type Store struct {
	mu     sync.RWMutex
	order  []string
	latest map[string]simulator.Record
}

func NewStore() *Store {
	return &Store{latest: make(map[string]simulator.Record)}
}

func (s *Store) Name() string { return "snapshot" }

func (s *Store) Publish(_ context.Context, rec simulator.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.latest[rec.MachineID]; !ok {
		s.order = append(s.order, rec.MachineID)
	}
	s.latest[rec.MachineID] = rec
	return nil
}

// Snapshot returns the latest records in the order machines were first seen.
func (s *Store) Snapshot() []simulator.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]simulator.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.latest[id])
	}
	return out
}

func (s *Store) Get(id string) (simulator.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.latest[id]
	return rec, ok
}
