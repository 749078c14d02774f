// Package state persists scan history in a SQLite database: one record
// per scan plus the terminal state of every run in it. The scheduler's
// in-memory run table is authoritative during execution; this store is
// the durable audit trail.
package state

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Scan statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Scan is one recorded pipeline invocation.
type Scan struct {
	ID          string
	Mode        string
	Structures  []string
	Replicates  int
	Status      string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// RunOutcome is the terminal state of one run within a scan.
type RunOutcome struct {
	Name  string
	Kind  string
	State string
	Error string
}

// Store is the SQLite-backed scan history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the history database. Use ":memory:" for an
// in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateScan records a new scan and returns it with a fresh ID.
func (s *Store) CreateScan(mode string, structures []string, replicates int) (*Scan, error) {
	scan := &Scan{
		ID:         uuid.New().String(),
		Mode:       mode,
		Structures: structures,
		Replicates: replicates,
		Status:     ScanStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	s.logger.Debug("recording scan", "id", scan.ID, "mode", mode)

	_, err := s.db.Exec(
		`INSERT INTO scans (id, mode, structures, replicates, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.Mode, strings.Join(structures, ","), scan.Replicates, scan.Status, scan.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}
	return scan, nil
}

// CompleteScan marks a scan terminal with its status and optional error.
func (s *Store) CompleteScan(id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE scans SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, nullable(errMsg), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scan %s: %w", id, err)
	}
	return nil
}

// GetScan retrieves one scan by ID.
func (s *Store) GetScan(id string) (*Scan, error) {
	row := s.db.QueryRow(
		`SELECT id, mode, structures, replicates, status, COALESCE(error, ''), started_at, completed_at FROM scans WHERE id = ?`, id)

	var scan Scan
	var structures string
	if err := row.Scan(&scan.ID, &scan.Mode, &structures, &scan.Replicates, &scan.Status, &scan.Error, &scan.StartedAt, &scan.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scan not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	if structures != "" {
		scan.Structures = strings.Split(structures, ",")
	}
	return &scan, nil
}

// RecordRun stores (or replaces) the terminal state of one run.
func (s *Store) RecordRun(scanID string, outcome RunOutcome) error {
	_, err := s.db.Exec(
		`INSERT INTO scan_runs (scan_id, name, kind, state, error) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(scan_id, name) DO UPDATE SET state = excluded.state, error = excluded.error`,
		scanID, outcome.Name, outcome.Kind, outcome.State, nullable(outcome.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", outcome.Name, err)
	}
	return nil
}

// ListRuns returns the recorded run outcomes of a scan in name order.
func (s *Store) ListRuns(scanID string) ([]RunOutcome, error) {
	rows, err := s.db.Query(
		`SELECT name, kind, state, COALESCE(error, '') FROM scan_runs WHERE scan_id = ? ORDER BY name`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunOutcome
	for rows.Next() {
		var o RunOutcome
		if err := rows.Scan(&o.Name, &o.Kind, &o.State, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
