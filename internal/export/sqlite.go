package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_log_entries (
	run_id              TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	position            INTEGER NOT NULL,
	sender_identifier   TEXT    NOT NULL,
	document_path       TEXT    NOT NULL,
	match_score         REAL    NOT NULL,
	years_experience    INTEGER NOT NULL,
	has_ai_experience   INTEGER NOT NULL,
	formatting_ok       INTEGER NOT NULL,
	total_score         INTEGER NOT NULL,
	delivered           INTEGER NOT NULL,
	delivery_error      TEXT    NOT NULL DEFAULT '',
	extraction_degraded INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);
`

// timeLayout keeps a fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSink appends every run to a local database keyed by run id
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// NewSQLiteSink opens (or creates) the database at path
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteSink{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Write implements Sink. Writing the same run twice replaces its entries.
func (s *SQLiteSink) Write(ctx context.Context, runLog *models.RunLog) error {
	if err := checkRunLog(runLog); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET started_at = excluded.started_at, finished_at = excluded.finished_at`,
		runLog.RunID, runLog.StartedAt.UTC().Format(timeLayout), runLog.FinishedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_log_entries WHERE run_id = ?`, runLog.RunID); err != nil {
		return fmt.Errorf("clearing run entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_log_entries (
			run_id, position, sender_identifier, document_path, match_score, years_experience,
			has_ai_experience, formatting_ok, total_score, delivered, delivery_error, extraction_degraded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range runLog.Entries {
		if _, err := stmt.ExecContext(ctx,
			runLog.RunID, i, e.Sender, e.DocumentPath, e.MatchScore, e.YearsExperience,
			e.HasAIExperience, e.FormattingOK, e.TotalScore, e.Delivered, e.DeliveryError, e.ExtractionDegraded,
		); err != nil {
			return fmt.Errorf("saving entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// Entries returns the stored entries of a run in run order
func (s *SQLiteSink) Entries(ctx context.Context, runID string) ([]models.RunLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_identifier, document_path, match_score, years_experience, has_ai_experience,
		       formatting_ok, total_score, delivered, delivery_error, extraction_degraded
		FROM run_log_entries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []models.RunLogEntry
	for rows.Next() {
		var e models.RunLogEntry
		if err := rows.Scan(
			&e.Sender, &e.DocumentPath, &e.MatchScore, &e.YearsExperience, &e.HasAIExperience,
			&e.FormattingOK, &e.TotalScore, &e.Delivered, &e.DeliveryError, &e.ExtractionDegraded,
		); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RunIDs lists stored runs, most recent first
func (s *SQLiteSink) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
