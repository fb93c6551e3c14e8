package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devflow-autopilot/packages/config"
	"devflow-autopilot/types"

	redis "github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic transaction retries when another process
// touches the same key between WATCH and EXEC.
const maxTxAttempts = 5

type redisStore struct {
	client *redis.Client
	prefix string
	locks  keyedMutex
	clock  func() time.Time
}

// NewRedisStore connects to Redis (or any protocol compatible server).
func NewRedisStore(ctx context.Context, cfg config.StateConfig) (Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &redisStore{client: client, prefix: cfg.RedisPrefix, clock: time.Now}, nil
}

func (s *redisStore) key(id types.RepositoryIdentity) string {
	return s.prefix + id.Key()
}

func decodeState(raw []byte) (*types.RepositoryState, error) {
	var st types.RepositoryState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode repository state: %w", err)
	}
	return &st, nil
}

func (s *redisStore) Get(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryState, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository state: %w", err)
	}
	return decodeState(raw)
}

func (s *redisStore) Update(ctx context.Context, id types.RepositoryIdentity, fn UpdateFunc) (*types.RepositoryState, error) {
	unlock := s.locks.lock(id.Key())
	defer unlock()

	key := s.key(id)
	var result *types.RepositoryState

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var current *types.RepositoryState
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if current, err = decodeState(raw); err != nil {
					return err
				}
			}

			next, write, err := apply(id, current, fn, s.clock())
			if err != nil {
				return err
			}
			result = next
			if !write {
				return nil
			}

			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update repository state %s: too much contention", id.FullName())
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
