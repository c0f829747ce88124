// Package store persists lint run history in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"flakewatch/internal/lint"
	"flakewatch/internal/logging"
)

// HistoryStore records lint runs and their findings.
type HistoryStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Run is one recorded lint run.
type Run struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Files     int           `json:"files"`
	Skipped   int           `json:"skipped"`
	Findings  int           `json:"findings"`
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*HistoryStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &HistoryStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Info("history store opened: %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *HistoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		files INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		findings INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		file TEXT NOT NULL,
		line INTEGER NOT NULL,
		col INTEGER NOT NULL,
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		linter TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// RecordRun stores a completed run and its findings, returning the run id.
func (s *HistoryStore) RecordRun(startedAt time.Time, duration time.Duration, results []*lint.FileResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()

	files, skipped, findings := 0, 0, 0
	for _, res := range results {
		files++
		if res.Skipped {
			skipped++
		}
		findings += len(res.Warnings)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, duration_ms, files, skipped, findings) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, startedAt.UTC(), duration.Milliseconds(), files, skipped, findings,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO findings (run_id, file, line, col, code, message, linter) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare findings insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		for _, w := range res.Warnings {
			if _, err := stmt.Exec(runID, w.File, w.Line, w.Col, w.Code, w.Message, w.Linter); err != nil {
				return "", fmt.Errorf("failed to insert finding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("recorded run %s: %d file(s), %d finding(s)", runID, files, findings)
	return runID, nil
}

// RecentRuns returns the newest runs, most recent first.
func (s *HistoryStore) RecentRuns(n int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = 10
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, duration_ms, files, skipped, findings
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			durationMs int64
		)
		if err := rows.Scan(&run.ID, &run.StartedAt, &durationMs, &run.Files, &run.Skipped, &run.Findings); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Findings returns the findings recorded for a run, in insert order.
func (s *HistoryStore) Findings(runID string) ([]lint.Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT file, line, col, code, message, linter FROM findings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var warnings []lint.Warning
	for rows.Next() {
		var w lint.Warning
		if err := rows.Scan(&w.File, &w.Line, &w.Col, &w.Code, &w.Message, &w.Linter); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// Prune deletes all but the newest keep runs, with their findings.
func (s *HistoryStore) Prune(keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep <= 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM findings WHERE run_id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune findings: %w", err)
	}

	_, err = tx.Exec(
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}

	return tx.Commit()
}
