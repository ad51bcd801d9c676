// Package storage persists the most recent run report. Only one report is
// ever retained; each run replaces the previous one.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps read/write access to the sqlite database.
type Store struct {
	db *sql.DB
}

// Open initialises a sqlite connection with sane defaults.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := configure(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close terminates the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialised")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// EnsureSchema creates the last-report table when missing. The id constraint
// pins the table to a single row.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialised")
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS last_report (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			run_id TEXT NOT NULL,
			generated_at TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure last_report schema: %w", err)
	}
	return nil
}

// StoredReport is the persisted form of the last run.
type StoredReport struct {
	RunID       string
	GeneratedAt time.Time
	Payload     []byte
}

// SaveReport replaces the retained report with the given one.
func (s *Store) SaveReport(ctx context.Context, runID string, generatedAt time.Time, payload []byte) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialised")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_report (id, run_id, generated_at, payload)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			run_id = excluded.run_id,
			generated_at = excluded.generated_at,
			payload = excluded.payload
	`, runID, generatedAt, string(payload))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LatestReport returns the retained report, or nil when no run has completed.
func (s *Store) LatestReport(ctx context.Context) (*StoredReport, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialised")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, generated_at, payload
		FROM last_report
		WHERE id = 1
	`)
	var stored StoredReport
	var payload string
	if err := row.Scan(&stored.RunID, &stored.GeneratedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no run recorded yet
		}
		return nil, fmt.Errorf("query latest report: %w", err)
	}
	stored.Payload = []byte(payload)
	return &stored, nil
}
