// Package store provides the SQLite-backed audit event log. The log is
// an append-only operational record of assignments, completions and
// review signals. It never backs queue state: the queue is process
// memory by design and a restart loses in-flight assignments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/dispatch/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the Dispatch SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		repository TEXT,
		issue_number INTEGER,
		worker_id TEXT,
		details TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_action ON events(action);
	CREATE INDEX IF NOT EXISTS idx_events_issue ON events(issue_number);
	CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WriteEvent appends one audit event.
func (s *Store) WriteEvent(action, repository string, issueNumber int, workerID, details string) (*models.Event, error) {
	event := &models.Event{
		ID:          uuid.New().String(),
		Action:      action,
		Repository:  repository,
		IssueNumber: issueNumber,
		WorkerID:    workerID,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO events (id, action, repository, issue_number, worker_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Action, event.Repository, event.IssueNumber, event.WorkerID, event.Details, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// RecentEvents returns up to limit events, newest first, optionally
// filtered by action.
func (s *Store) RecentEvents(action string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, action, repository, issue_number, worker_id, details, created_at FROM events`
	args := []interface{}{}
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// IssueEvents returns every event recorded for one issue, oldest first.
func (s *Store) IssueEvents(issueNumber int) ([]models.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, action, repository, issue_number, worker_id, details, created_at FROM events WHERE issue_number = ? ORDER BY created_at ASC`,
		issueNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query issue events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var e models.Event
		var repository, workerID, details sql.NullString
		var issueNumber sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Action, &repository, &issueNumber, &workerID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Repository = repository.String
		e.IssueNumber = int(issueNumber.Int64)
		e.WorkerID = workerID.String
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}
