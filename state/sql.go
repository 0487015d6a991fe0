package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentloop/core"
)

const (
	createStateTableSQL = `
CREATE TABLE IF NOT EXISTS task_states (
    task_id VARCHAR(255) PRIMARY KEY,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	upsertStateSQL = `
INSERT INTO task_states (task_id, state_json, updated_at) VALUES (?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`

	selectStateSQL = `SELECT state_json FROM task_states WHERE task_id = ?`

	deleteStateSQL = `DELETE FROM task_states WHERE task_id = ?`
)

// SQLStore is a StateStore backed by a SQL database. Each Persist runs in a
// transaction, so the stored document is replaced completely or not at all.
// The schema is created on construction. Tested with SQLite; the statements
// use the upsert form SQLite and Postgres share.
type SQLStore struct {
	db *sql.DB
}

var _ core.StateStore = (*SQLStore)(nil)

// NewSQLStore initializes the schema on the given connection. The connection
// should be shared with other services using the same database to prevent
// SQLite "database is locked" errors.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, createStateTableSQL); err != nil {
		return nil, fmt.Errorf("create task_states table: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// OpenSQLiteStore opens (creating if needed) a SQLite database file and
// returns a store on it. The caller owns closing the store.
func OpenSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	store, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Persist replaces the stored document for the task inside a transaction.
func (s *SQLStore) Persist(ctx context.Context, taskID string, state *core.TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}

	if _, err := tx.ExecContext(ctx, upsertStateSQL, taskID, string(data), time.Now().UTC()); err != nil {
		tx.Rollback()
		return core.NewStateStoreError("persist", taskID, err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStateStoreError("persist", taskID, err)
	}
	return nil
}

// Load reads and decodes the stored document, or returns found false when
// the task has never been persisted.
func (s *SQLStore) Load(ctx context.Context, taskID string) (*core.TaskState, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, selectStateSQL, taskID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}

	var state core.TaskState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, false, core.NewStateStoreError("load", taskID, err)
	}
	return &state, true, nil
}

// Delete removes the stored row. Deleting an unknown task is a no-op.
func (s *SQLStore) Delete(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, deleteStateSQL, taskID); err != nil {
		return core.NewStateStoreError("delete", taskID, err)
	}
	return nil
}
