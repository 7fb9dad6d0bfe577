package history

import "time"

// RunRecord represents a single deployment run in the database
type RunRecord struct {
	ID              int64
	Target          string
	RunID           string // timestamp-derived identifier shared with backup artifacts
	Branch          string
	Status          string // succeeded, aborted, rejected, in_progress
	FailedStep      *string
	StartedAt       time.Time
	CompletedAt     *time.Time // nullable
	DurationSeconds *float64   // nullable
	CommitHash      *string    // nullable
	BackupPath      *string    // nullable
	ErrorMessage    *string    // nullable
}
