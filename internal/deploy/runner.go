package deploy

import (
	"context"
	"time"

	"padeploy/internal/security"
	"padeploy/pkg/cmdutil"
)

// Result represents the result of running a command.
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// OK checks if the execution was successful.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes one external command for a deployment step. The
// orchestrator's sequencing and rollback logic only depends on this
// interface, so tests can exercise it without git, pip or python.
type Runner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, cmdParts []string) (*Result, error)
}

// SubprocessRunner runs commands as real subprocesses. Commands are
// validated against an allow-list before execution.
type SubprocessRunner struct {
	// AllowedCommands overrides the default allow-list when non-nil.
	AllowedCommands map[string]bool
}

// NewSubprocessRunner creates a runner with the default allow-list.
func NewSubprocessRunner() *SubprocessRunner {
	return &SubprocessRunner{}
}

// Run executes the command in dir with the given timeout, capturing
// combined output. A non-zero exit is reported both in the Result and as
// an error.
func (r *SubprocessRunner) Run(ctx context.Context, dir string, timeout time.Duration, cmdParts []string) (*Result, error) {
	validator := security.NewSandboxedExecutor(dir)
	if r.AllowedCommands != nil {
		validator.AllowedCommands = r.AllowedCommands
	}
	if err := validator.ValidateCommandParts(cmdParts); err != nil {
		return &Result{ExitCode: -1}, err
	}

	res, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:            dir,
		Timeout:        timeout,
		CombinedOutput: true,
	}, cmdParts)

	if res == nil {
		return &Result{ExitCode: -1}, err
	}

	return &Result{
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Duration: res.Duration,
	}, err
}
