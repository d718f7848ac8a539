package checkpoint

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu  sync.RWMutex
	ids map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]string{}}
}

func (s *MemoryStore) Get(ctx context.Context, gameID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[gameID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, gameID, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(gameID); err != nil {
		return err
	}
	s.mu.Lock()
	s.ids[gameID] = eventID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
