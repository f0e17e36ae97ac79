// Package archive persists finished session reports in SQLite.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-proctor/pkg/report"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("archive: report not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Summary is one row of the archive listing.
type Summary struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Candidate  string    `json:"candidate"`
	Score      int       `json:"score"`
	Duration   string    `json:"duration"`
	FocusLost  int       `json:"focus_lost"`
	Suspicious int       `json:"suspicious"`
	Events     int       `json:"events"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Store is a SQLite-backed report archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	// A single connection keeps an in-memory database alive and
	// serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", p, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			candidate       TEXT NOT NULL,
			score           INTEGER NOT NULL,
			duration        TEXT NOT NULL,
			focus_lost      INTEGER NOT NULL,
			suspicious      INTEGER NOT NULL,
			events          INTEGER NOT NULL,
			archived_at     BIGINT NOT NULL,
			body            TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS reports_archived_at ON reports (archived_at DESC);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r and returns its archive id.
func (s *Store) Save(ctx context.Context, r report.Report) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("archive: encode report: %w", err)
	}
	id := uuid.NewString()
	archivedAt := r.GeneratedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, session_id, candidate, score, duration, focus_lost, suspicious, events, archived_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.SessionID, r.Candidate, r.Score, r.Duration, r.FocusLost, r.Suspicious, r.EventCount,
		archivedAt.UnixMilli(), string(body),
	)
	if err != nil {
		return "", fmt.Errorf("archive: insert report: %w", err)
	}
	return id, nil
}

// List returns the most recent reports first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, candidate, score, duration, focus_lost, suspicious, events, archived_at
		FROM reports
		ORDER BY archived_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sm Summary
			at int64
		)
		if err := rows.Scan(&sm.ID, &sm.SessionID, &sm.Candidate, &sm.Score, &sm.Duration,
			&sm.FocusLost, &sm.Suspicious, &sm.Events, &at); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		sm.ArchivedAt = time.UnixMilli(at).UTC()
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Get returns the full report stored under id.
func (s *Store) Get(ctx context.Context, id string) (report.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("archive: get %s: %w", id, err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return report.Report{}, fmt.Errorf("archive: decode %s: %w", id, err)
	}
	return r, nil
}
