package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devflow-autopilot/types"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repository_state (
	repo_key   TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	state      JSON NOT NULL,
	updated_at DATETIME NOT NULL
);`

type sqliteStore struct {
	db    *sql.DB
	locks keyedMutex
	clock func() time.Time
}

// NewSQLiteStore opens (and if needed creates) the state database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes serialized inside the process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &sqliteStore{db: db, clock: time.Now}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q queryer, key string) (*types.RepositoryState, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT state FROM repository_state WHERE repo_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read repository state: %w", err)
	}
	return decodeState([]byte(raw))
}

func (s *sqliteStore) Get(ctx context.Context, id types.RepositoryIdentity) (*types.RepositoryState, error) {
	return getState(ctx, s.db, id.Key())
}

func (s *sqliteStore) Update(ctx context.Context, id types.RepositoryIdentity, fn UpdateFunc) (*types.RepositoryState, error) {
	unlock := s.locks.lock(id.Key())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getState(ctx, tx, id.Key())
	if err != nil {
		return nil, err
	}

	next, write, err := apply(id, current, fn, s.clock())
	if err != nil || !write {
		return next, err
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repository_state (repo_key, owner, name, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		id.Key(), next.Owner, next.Name, string(payload), next.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to write repository state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit repository state: %w", err)
	}
	return next, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
