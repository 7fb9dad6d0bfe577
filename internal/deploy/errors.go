package deploy

import (
	"errors"
	"fmt"
)

// FailureKind classifies a fatal deployment failure. Every kind is
// terminal: the run aborts immediately and a human retries the whole run.
type FailureKind string

const (
	KindEnvironmentNotFound      FailureKind = "environment_not_found"
	KindBackupVerificationFailed FailureKind = "backup_verification_failed"
	KindCodeUpdateFailed         FailureKind = "code_update_failed"
	KindDependencyInstallFailed  FailureKind = "dependency_install_failed"
	KindMigrationFailed          FailureKind = "migration_failed"
)

// StepError is a fatal failure of one deployment step.
type StepError struct {
	Kind FailureKind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s failed: %v", e.Kind, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// stepErr wraps an error as a fatal StepError.
func stepErr(kind FailureKind, step string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err}
}

// KindOf returns the failure kind of err, or empty string if err is not a
// StepError.
func KindOf(err error) FailureKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
