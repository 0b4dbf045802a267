// Copyright Peton Labs, 2026. All rights reserved.

// Package progress persists per-item batch state in SQLite so an
// interrupted run can resume without repeating completed work.
package progress

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// Item statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ItemRecord is one tracked item as stored.
type ItemRecord struct {
	ID           string
	Title        string
	DOI          string
	PMID         string
	Status       string
	StartedAt    string
	CompletedAt  string
	ErrorMessage string
	SourceUsed   string
	FieldSummary string
}

// Store manages the progress SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the progress database, creating parent
// directories and the schema as needed. Writes use WAL with synchronous
// commits so completed work survives interruption.
func NewStore(cfg types.ProgressConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			title TEXT,
			doi TEXT,
			pmid TEXT,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error_message TEXT,
			source_used TEXT,
			field_summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_status ON items(status)`,
		`CREATE TABLE IF NOT EXISTS extracted_fields (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL REFERENCES items(id),
			category TEXT NOT NULL,
			field_name TEXT NOT NULL,
			field_value TEXT,
			extracted_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fields_item_id ON extracted_fields(item_id)`,
		`CREATE TABLE IF NOT EXISTS event_log (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT,
			details TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Start marks an item in progress, creating or resetting its row. A
// prior failed attempt is overwritten; a completed item keeps its
// record untouched apart from the event.
func (s *Store) Start(ctx context.Context, item types.WorkItem) error {
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, title, doi, pmid, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			doi = excluded.doi,
			pmid = excluded.pmid,
			status = CASE WHEN items.status = 'completed' THEN items.status ELSE excluded.status END,
			started_at = excluded.started_at,
			error_message = NULL`,
		item.ID, item.Title, item.DOI, item.PMID, StatusInProgress, ts)
	if err != nil {
		return fmt.Errorf("starting item %s: %w", item.ID, err)
	}
	return s.logEvent(ctx, item.ID, "started", "processing started", "")
}

// RecordSuccess marks the item completed and stores its extracted
// fields, replacing any rows from an earlier attempt.
func (s *Store) RecordSuccess(ctx context.Context, itemID string, result types.ExtractionResult, sourceUsed string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	summary := fmt.Sprintf("%d fields in %d categories", result.FieldCount(), len(result))

	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET status = ?, completed_at = ?, source_used = ?,
			field_summary = ?, error_message = NULL
		WHERE id = ?`,
		StatusCompleted, ts, sourceUsed, summary, itemID); err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM extracted_fields WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing prior fields for %s: %w", itemID, err)
	}

	for category, fields := range result {
		for name, value := range fields {
			if value == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO extracted_fields (item_id, category, field_name, field_value, extracted_at)
				VALUES (?, ?, ?, ?, ?)`,
				itemID, category, name, value, ts); err != nil {
				return fmt.Errorf("storing field %s/%s: %w", category, name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_log (item_id, timestamp, event_type, message, details)
		VALUES (?, ?, 'completed', ?, ?)`,
		itemID, ts, summary, sourceUsed); err != nil {
		return fmt.Errorf("logging completion for %s: %w", itemID, err)
	}

	return tx.Commit()
}

// RecordFailure marks the item failed, inserting the row when the item
// was never started. A completed item is not downgraded unless force is
// set; the failure event is logged either way.
func (s *Store) RecordFailure(ctx context.Context, itemID, message, stage string, force bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM items WHERE id = ?`, itemID).Scan(&status)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, status, started_at, error_message)
			VALUES (?, ?, ?, ?)`,
			itemID, StatusFailed, ts, message); err != nil {
			return fmt.Errorf("inserting failed item %s: %w", itemID, err)
		}
	case err != nil:
		return fmt.Errorf("checking item %s: %w", itemID, err)
	case status == StatusCompleted && !force:
		// Keep the completed record; the event below still captures
		// what went wrong downstream.
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET status = ?, error_message = ? WHERE id = ?`,
			StatusFailed, message, itemID); err != nil {
			return fmt.Errorf("updating failed item %s: %w", itemID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_log (item_id, timestamp, event_type, message, details)
		VALUES (?, ?, 'failed', ?, ?)`,
		itemID, ts, message, stage); err != nil {
		return fmt.Errorf("logging failure for %s: %w", itemID, err)
	}

	return tx.Commit()
}

// IsDone reports whether the item has already completed.
func (s *Store) IsDone(ctx context.Context, itemID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM items WHERE id = ?`, itemID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking item %s: %w", itemID, err)
	}
	return status == StatusCompleted, nil
}

// Failed returns the items currently in failed state.
func (s *Store) Failed(ctx context.Context) ([]ItemRecord, error) {
	return s.itemsByStatus(ctx, StatusFailed)
}

// Processed returns every tracked item regardless of state.
func (s *Store) Processed(ctx context.Context) ([]ItemRecord, error) {
	return s.itemsByStatus(ctx, "")
}

func (s *Store) itemsByStatus(ctx context.Context, status string) ([]ItemRecord, error) {
	query := `SELECT id, COALESCE(title,''), COALESCE(doi,''), COALESCE(pmid,''),
		status, COALESCE(started_at,''), COALESCE(completed_at,''),
		COALESCE(error_message,''), COALESCE(source_used,''), COALESCE(field_summary,'')
		FROM items`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY CAST(id AS INTEGER), id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var records []ItemRecord
	for rows.Next() {
		var r ItemRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.DOI, &r.PMID, &r.Status,
			&r.StartedAt, &r.CompletedAt, &r.ErrorMessage, &r.SourceUsed,
			&r.FieldSummary); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Fields returns the stored extracted fields for one item, grouped by
// category.
func (s *Store) Fields(ctx context.Context, itemID string) (types.ExtractionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, field_name, COALESCE(field_value,'')
		FROM extracted_fields WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying fields for %s: %w", itemID, err)
	}
	defer rows.Close()

	result := types.ExtractionResult{}
	for rows.Next() {
		var category, name, value string
		if err := rows.Scan(&category, &name, &value); err != nil {
			return nil, fmt.Errorf("scanning field: %w", err)
		}
		if result[category] == nil {
			result[category] = map[string]string{}
		}
		result[category][name] = value
	}
	return result, rows.Err()
}

// Summary aggregates batch state for status reporting.
type Summary struct {
	Total          int
	Completed      int
	Failed         int
	InProgress     int
	CompletionPct  float64
	RecentFailures []ItemRecord
}

// Summary returns per-status counts and the five most recent failures.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return sum, fmt.Errorf("counting items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return sum, fmt.Errorf("scanning count: %w", err)
		}
		sum.Total += n
		switch status {
		case StatusCompleted:
			sum.Completed = n
		case StatusFailed:
			sum.Failed = n
		case StatusInProgress:
			sum.InProgress = n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}
	if sum.Total > 0 {
		sum.CompletionPct = 100 * float64(sum.Completed) / float64(sum.Total)
	}

	failRows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(title,''), COALESCE(doi,''), COALESCE(pmid,''),
			status, COALESCE(started_at,''), COALESCE(completed_at,''),
			COALESCE(error_message,''), COALESCE(source_used,''), COALESCE(field_summary,'')
		FROM items WHERE status = ? ORDER BY started_at DESC LIMIT 5`, StatusFailed)
	if err != nil {
		return sum, fmt.Errorf("querying recent failures: %w", err)
	}
	defer failRows.Close()

	for failRows.Next() {
		var r ItemRecord
		if err := failRows.Scan(&r.ID, &r.Title, &r.DOI, &r.PMID, &r.Status,
			&r.StartedAt, &r.CompletedAt, &r.ErrorMessage, &r.SourceUsed,
			&r.FieldSummary); err != nil {
			return sum, fmt.Errorf("scanning failure: %w", err)
		}
		sum.RecentFailures = append(sum.RecentFailures, r)
	}
	return sum, failRows.Err()
}

func (s *Store) logEvent(ctx context.Context, itemID, eventType, message, details string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log (item_id, timestamp, event_type, message, details)
		VALUES (?, ?, ?, ?, ?)`,
		itemID, now(), eventType, message, details)
	if err != nil {
		return fmt.Errorf("logging event for %s: %w", itemID, err)
	}
	return nil
}
