package services

import (
	"context"
	"sync"
	"time"

	"github.com/bipbip/bips-backend/internal/models"
)

type memoryBipStore struct {
	mu      sync.Mutex
	bips    []models.Bip
	failErr error
}

func (s *memoryBipStore) Insert(_ context.Context, bip models.Bip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.bips = append(s.bips, bip)
	return nil
}

func (s *memoryBipStore) ListByDay(_ context.Context, day string) ([]models.Bip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	var out []models.Bip
	for _, b := range s.bips {
		if b.Day == day {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memoryBipStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.bips[:0]
	var n int64
	for _, b := range s.bips {
		if b.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, b)
	}
	s.bips = kept
	return n, nil
}

type memoryConnectionStore struct {
	mu      sync.Mutex
	ids     map[string]struct{}
	failErr error
}

func newMemoryConnectionStore(ids ...string) *memoryConnectionStore {
	s := &memoryConnectionStore{ids: make(map[string]struct{})}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *memoryConnectionStore) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.ids[id] = struct{}{}
	return nil
}

func (s *memoryConnectionStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	delete(s.ids, id)
	return nil
}

func (s *memoryConnectionStore) Members(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out, nil
}

func (s *memoryConnectionStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
