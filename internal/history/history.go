package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages the deployment audit trail in SQLite
type History struct {
	db *sql.DB
}

// NewHistory creates a new history tracker
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			run_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			status TEXT NOT NULL,
			failed_step TEXT,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			commit_hash TEXT,
			backup_path TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_target_started
		ON runs(target, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordRun records a deployment run in the history
func (h *History) RecordRun(ctx context.Context, record *RunRecord) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	startedAt := now
	if !record.StartedAt.IsZero() {
		startedAt = record.StartedAt.UTC().Format(time.RFC3339)
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else if record.Status != "in_progress" {
		completedAt = &now
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO runs
		(target, run_id, branch, status, failed_step, started_at, completed_at,
		 duration_seconds, commit_hash, backup_path, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Target,
		record.RunID,
		record.Branch,
		record.Status,
		record.FailedStep,
		startedAt,
		completedAt,
		record.DurationSeconds,
		record.CommitHash,
		record.BackupPath,
		record.ErrorMessage,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert run record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// GetLatestRun returns the most recent run for a target
func (h *History) GetLatestRun(ctx context.Context, targetName string) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, target, run_id, branch, status, failed_step, started_at,
		       completed_at, duration_seconds, commit_hash, backup_path, error_message
		FROM runs
		WHERE target = ?
		ORDER BY id DESC
		LIMIT 1
	`, targetName)

	record, err := scanRunRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	return record, nil
}

// GetRunHistory returns run history for a target
func (h *History) GetRunHistory(ctx context.Context, targetName string, limit int) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, target, run_id, branch, status, failed_step, started_at,
		       completed_at, duration_seconds, commit_hash, backup_path, error_message
		FROM runs
		WHERE target = ?
		ORDER BY id DESC
		LIMIT ?
	`, targetName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetAllTargetsStatus returns the latest run for each target
func (h *History) GetAllTargetsStatus(ctx context.Context) (map[string]*RunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT r1.id, r1.target, r1.run_id, r1.branch, r1.status, r1.failed_step,
		       r1.started_at, r1.completed_at, r1.duration_seconds, r1.commit_hash,
		       r1.backup_path, r1.error_message
		FROM runs r1
		INNER JOIN (
			SELECT target, MAX(started_at) as max_started
			FROM runs
			GROUP BY target
		) r2
		ON r1.target = r2.target AND r1.started_at = r2.max_started
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all targets status: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*RunRecord)
	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		result[record.Target] = record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRunRecord scans a database row into a RunRecord.
// Works with both *sql.Row and *sql.Rows
func scanRunRecord(s scanner) (*RunRecord, error) {
	var record RunRecord
	var failedStep sql.NullString
	var startedAtStr string
	var completedAtStr sql.NullString
	var commitHash sql.NullString
	var backupPath sql.NullString
	var errorMessage sql.NullString

	err := s.Scan(
		&record.ID,
		&record.Target,
		&record.RunID,
		&record.Branch,
		&record.Status,
		&failedStep,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&commitHash,
		&backupPath,
		&errorMessage,
	)

	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	if failedStep.Valid {
		record.FailedStep = &failedStep.String
	}
	if commitHash.Valid {
		record.CommitHash = &commitHash.String
	}
	if backupPath.Valid {
		record.BackupPath = &backupPath.String
	}
	if errorMessage.Valid {
		record.ErrorMessage = &errorMessage.String
	}

	return &record, nil
}
