package deploy

import (
	"time"

	"padeploy/internal/backup"
)

// Step names, in execution order.
const (
	StepPreflight   = "preflight"
	StepBackup      = "backup"
	StepEnvSnapshot = "env_snapshot"
	StepCodeUpdate  = "code_update"
	StepInstall     = "dependency_install"
	StepMigrate     = "migrate"
	StepReload      = "reload_signal"
	StepRetention   = "retention_sweep"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusSkipped StepStatus = "skipped"
	StatusWarning StepStatus = "warning"
	StatusFailed  StepStatus = "failed"
)

// RunStatus is the terminal status of a deployment run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunAborted   RunStatus = "aborted"
)

// StepOutcome records what happened in one step of a run.
type StepOutcome struct {
	Step     string
	Status   StepStatus
	Detail   string
	Duration time.Duration
}

// Run is one execution of the orchestrator. Its timestamp-derived ID names
// every artifact the run produces. Immutable once the run finishes.
type Run struct {
	ID             string
	Target         string
	Branch         string
	StartedAt      time.Time
	CompletedAt    time.Time
	Status         RunStatus
	FailedStep     string
	BackupPath     string
	CommitHash     string // HEAD after the code update, when resolvable
	UpstreamCommit string // remote branch head reported by the hosting platform API
	Steps          []StepOutcome
}

// NewRunID derives a run identifier from a timestamp. The same format
// names backup artifacts, so identifiers sort chronologically.
func NewRunID(t time.Time) string {
	return t.Format(backup.RunIDFormat)
}

// record appends a step outcome.
func (r *Run) record(step string, status StepStatus, detail string, d time.Duration) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Status: status, Detail: detail, Duration: d})
}

// Outcome returns the recorded outcome for a step, or nil if the run never
// reached it.
func (r *Run) Outcome(step string) *StepOutcome {
	for i := range r.Steps {
		if r.Steps[i].Step == step {
			return &r.Steps[i]
		}
	}
	return nil
}

// Duration returns the total wall-clock time of the run.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
