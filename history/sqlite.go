package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/wippyai/wasm-offload/errors"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    outcome     TEXT NOT NULL,
    payload     TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
)`

const selectRun = `SELECT id, outcome, payload, duration_ms, started_at, finished_at FROM runs`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "open database")
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000", createRunsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "prepare database")
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert stores a record. Ids are unique.
func (s *SQLiteStore) Insert(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, outcome, payload, duration_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Outcome, r.Payload, r.DurationMS, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get retrieves a record by request id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	r := &Record{}
	err := s.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id).
		Scan(&r.ID, &r.Outcome, &r.Payload, &r.DurationMS, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns a page of records, newest first, and the total count.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectRun+" ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(&r.ID, &r.Outcome, &r.Payload, &r.DurationMS, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}
	return records, total, nil
}

// Stats returns counts per outcome and the mean duration.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{CountByOutcome: make(map[string]int)}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), AVG(duration_ms) FROM runs").Scan(&st.Total, &avg); err != nil {
		return nil, fmt.Errorf("aggregate runs: %w", err)
	}
	st.AvgDurationMS = avg.Float64

	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM runs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		st.CountByOutcome[outcome] = n
	}
	return st, rows.Err()
}
