// Package state persists RepositoryState records. Every backend serializes
// updates per repository identity.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/types"
)

// ErrNoChange may be returned by an update function to skip the write.
var ErrNoChange = errors.New("state unchanged")

// UpdateFunc mutates the current state in place. The state is never nil;
// a repository that has not been seen yet starts from a zero record.
type UpdateFunc func(st *types.RepositoryState) error

type Store interface {
	// Get returns the stored state, or nil when the repository is unknown.
	Get(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryState, error)
	// Update runs fn under the repository's lock and stores the result.
	Update(ctx context.Context, id types.RepositoryIdentity, fn UpdateFunc) (*types.RepositoryState, error)
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// keyedMutex hands out one mutex per repository key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func newState(id types.RepositoryIdentity) *types.RepositoryState {
	return &types.RepositoryState{Owner: id.Owner, Name: id.Name}
}

// apply runs fn on a copy of current and reports whether it should be written.
func apply(id types.RepositoryIdentity, current *types.RepositoryState, fn UpdateFunc, now time.Time) (*types.RepositoryState, bool, error) {
	next := newState(id)
	if current != nil {
		next = clone(current)
	}
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			if current == nil {
				return nil, false, nil
			}
			return clone(current), false, nil
		}
		return nil, false, err
	}
	next.UpdatedAt = now.UTC()
	return next, true, nil
}

func clone(st *types.RepositoryState) *types.RepositoryState {
	out := *st
	if st.Flags != nil {
		out.Flags = make(map[string]bool, len(st.Flags))
		for k, v := range st.Flags {
			out.Flags[k] = v
		}
	}
	return &out
}
