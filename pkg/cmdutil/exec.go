package cmdutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures a subprocess run.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout caps the execution time. Zero means no cap; deployment
	// steps always pass one since a hung pull or install must not hold
	// the target lock forever.
	Timeout time.Duration

	// Env is the command environment, entries in "KEY=value" form.
	Env []string

	// CombinedOutput merges stdout and stderr into Result.Output.
	CombinedOutput bool
}

// Result is the outcome of a subprocess run.
type Result struct {
	// Stdout and Stderr are populated when CombinedOutput is false.
	Stdout []byte
	Stderr []byte

	// Output holds the merged streams when CombinedOutput is true.
	Output []byte

	// ExitCode is the command's exit status.
	ExitCode int

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Run executes the command given as argv-style parts and reports its
// output, exit code and duration. A non-zero exit is returned as an
// error alongside the partially filled result so callers can log the
// captured output.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()

	var result Result
	var runErr error
	if opts.CombinedOutput {
		result.Output, runErr = cmd.CombinedOutput()
	} else {
		result.Stdout, runErr = cmd.Output()
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.Stderr = exitErr.Stderr
		}
	}
	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		return &result, fmt.Errorf("command failed: %w", runErr)
	}
	return &result, nil
}

// RunWithTimeout runs a command with combined output and a deadline,
// returning just the output. Convenience wrapper for callers that do
// not need the full Result.
func RunWithTimeout(ctx context.Context, workDir string, timeout time.Duration, cmdParts []string) ([]byte, error) {
	result, err := Run(ctx, ExecOptions{
		Dir:            workDir,
		Timeout:        timeout,
		CombinedOutput: true,
	}, cmdParts)
	if err != nil {
		return result.Output, err
	}
	return result.Output, nil
}

// ParseCommandString splits a shell-quoted command string into argv
// parts, so commands configured as strings keep their quoting.
//
// Example:
//   "git commit -m \"my message\"" -> ["git", "commit", "-m", "my message"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand renders argv parts as a single log-friendly line,
// quoting arguments that contain whitespace or quotes.
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}
	return strings.Join(quoted, " ")
}

// SanitizeOutput masks the given secrets in command output before it
// reaches a log file.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
