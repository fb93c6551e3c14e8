package state

import (
	"context"
	"sync"
	"time"

	"devflow-autopilot/types"
)

type memoryStore struct {
	locks keyedMutex
	mu    sync.RWMutex
	data  map[string]*types.RepositoryState
	clock func() time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{data: map[string]*types.RepositoryState{}, clock: time.Now}
}

func (s *memoryStore) Get(_ context.Context, id types.RepositoryIdentity) (*types.RepositoryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[id.Key()]
	if !ok {
		return nil, nil
	}
	return clone(st), nil
}

func (s *memoryStore) Update(ctx context.Context, id types.RepositoryIdentity, fn UpdateFunc) (*types.RepositoryState, error) {
	unlock := s.locks.lock(id.Key())
	defer unlock()

	current, _ := s.Get(ctx, id)
	next, write, err := apply(id, current, fn, s.clock())
	if err != nil || !write {
		return next, err
	}

	s.mu.Lock()
	s.data[id.Key()] = clone(next)
	s.mu.Unlock()
	return next, nil
}

func (s *memoryStore) Close() error { return nil }
