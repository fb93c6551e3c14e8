package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var octo = types.RepositoryIdentity{Owner: "Octo", Name: "Hello-World"}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	redisStore, err := NewRedisStore(ctx, config.StateConfig{RedisAddr: mini.Addr(), RedisPrefix: "test:"})
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
		"sqlite": sqliteStore,
	}
	for _, s := range stores {
		t.Cleanup(func() { _ = s.Close() })
	}
	return stores
}

func TestStore_GetUnknown(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, err := s.Get(context.Background(), octo)
			require.NoError(t, err)
			assert.Nil(t, st)
		})
	}
}

func TestStore_UpdateAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pushed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			st, err := s.Update(ctx, octo, func(st *types.RepositoryState) error {
				st.LastCommitSHA = "abc"
				st.LastPushAt = pushed
				st.SetFlag(types.FlagSEOOptimized, true)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, "Octo", st.Owner)
			assert.False(t, st.UpdatedAt.IsZero())

			// Keys are case insensitive.
			got, err := s.Get(ctx, types.RepositoryIdentity{Owner: "octo", Name: "hello-world"})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "abc", got.LastCommitSHA)
			assert.True(t, got.LastPushAt.Equal(pushed))
			assert.True(t, got.Flag(types.FlagSEOOptimized))
		})
	}
}

func TestStore_UpdateErrors(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			st, err := s.Update(ctx, octo, func(*types.RepositoryState) error { return ErrNoChange })
			require.NoError(t, err)
			assert.Nil(t, st)

			boom := errors.New("boom")
			_, err = s.Update(ctx, octo, func(st *types.RepositoryState) error {
				st.LastCommitSHA = "never"
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.Get(ctx, octo)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 20

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.Update(ctx, octo, func(st *types.RepositoryState) error {
						st.SetFlag(fmt.Sprintf("f%d", i), true)
						return nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			got, err := s.Get(ctx, octo)
			require.NoError(t, err)
			assert.Len(t, got.Flags, writers)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StateConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memoryStore{}, s)

	s, err = Open(ctx, config.StateConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StateConfig{Backend: "etcd"})
	assert.ErrorContains(t, err, "unknown state backend")
}
