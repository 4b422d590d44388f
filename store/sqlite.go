package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/researchmesh/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	theme TEXT NOT NULL,
	status TEXT NOT NULL,
	max_iterations INTEGER NOT NULL,
	human_loop_enabled INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	completed_at TEXT,
	error TEXT NOT NULL DEFAULT '',
	state TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
`

// SQLiteStore persists session records in a SQLite database, one row per
// session with the research state serialized as JSON.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sessionRow struct {
	ID               string         `db:"id"`
	Theme            string         `db:"theme"`
	Status           string         `db:"status"`
	MaxIterations    int            `db:"max_iterations"`
	HumanLoopEnabled bool           `db:"human_loop_enabled"`
	CreatedAt        string         `db:"created_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
	Error            string         `db:"error"`
	State            sql.NullString `db:"state"`
}

// Put implements Store.
func (s *SQLiteStore) Put(record *Record) error {
	var stateJSON sql.NullString
	if record.State != nil {
		data, err := json.Marshal(record.State)
		if err != nil {
			return fmt.Errorf("marshal state for session %s: %w", record.ID, err)
		}
		stateJSON = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullString
	if record.CompletedAt != nil {
		completedAt = sql.NullString{String: record.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, theme, status, max_iterations, human_loop_enabled, created_at, completed_at, error, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			theme = excluded.theme,
			status = excluded.status,
			max_iterations = excluded.max_iterations,
			human_loop_enabled = excluded.human_loop_enabled,
			completed_at = excluded.completed_at,
			error = excluded.error,
			state = excluded.state`,
		record.ID, record.Theme, record.Status, record.MaxIterations, record.HumanLoopEnabled,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), completedAt, record.Error, stateJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", record.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(id string) (*Record, error) {
	var row sessionRow
	err := s.db.Get(&row, "SELECT * FROM sessions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session %s: %w", id, err)
	}
	return rowToRecord(&row)
}

// List implements Store.
func (s *SQLiteStore) List() ([]*Record, error) {
	var rows []sessionRow
	if err := s.db.Select(&rows, "SELECT * FROM sessions ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	records := make([]*Record, 0, len(rows))
	for i := range rows {
		record, err := rowToRecord(&rows[i])
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func rowToRecord(row *sessionRow) (*Record, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for session %s: %w", row.ID, err)
	}

	record := &Record{
		ID:               row.ID,
		Theme:            row.Theme,
		Status:           row.Status,
		MaxIterations:    row.MaxIterations,
		HumanLoopEnabled: row.HumanLoopEnabled,
		CreatedAt:        createdAt,
		Error:            row.Error,
	}

	if row.CompletedAt.Valid {
		completedAt, err := time.Parse(time.RFC3339Nano, row.CompletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at for session %s: %w", row.ID, err)
		}
		record.CompletedAt = &completedAt
	}

	if row.State.Valid && row.State.String != "" {
		var state core.ResearchState
		if err := json.Unmarshal([]byte(row.State.String), &state); err != nil {
			return nil, fmt.Errorf("decode state for session %s: %w", row.ID, err)
		}
		record.State = &state
	}
	return record, nil
}
