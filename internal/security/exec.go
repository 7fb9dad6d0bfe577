package security

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultAllowedCommands is the default set of commands allowed for
// deployment operations. The orchestrator only ever shells out to the
// version-control tool, the Python toolchain, and basic file utilities.
var DefaultAllowedCommands = map[string]bool{
	"git":     true,
	"python":  true,
	"python3": true,
	"pip":     true,
	"pip3":    true,
	"cp":      true,
	"touch":   true,
}

// SandboxedExecutor provides safe command execution with validation.
type SandboxedExecutor struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool

	// WorkDir is the working directory for command execution.
	WorkDir string

	// Env contains environment variables for the command.
	Env []string

	// AllowShellMetachars allows shell metacharacters in arguments (DANGEROUS!).
	// This should almost always be false.
	AllowShellMetachars bool
}

// NewSandboxedExecutor creates a new sandboxed executor with default settings.
func NewSandboxedExecutor(workDir string) *SandboxedExecutor {
	return &SandboxedExecutor{
		AllowedCommands:     DefaultAllowedCommands,
		WorkDir:             workDir,
		AllowShellMetachars: false,
	}
}

// Execute runs a command with validation and sandboxing.
// Returns the combined stdout/stderr output and any error.
func (e *SandboxedExecutor) Execute(ctx context.Context, cmdParts []string) ([]byte, error) {
	if err := e.ValidateCommandParts(cmdParts); err != nil {
		return nil, err
	}

	// Create command without shell (prevents shell injection)
	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = e.WorkDir
	cmd.Env = e.Env

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}

	return output, nil
}

// ValidateCommandParts validates a command before execution.
// This can be used to pre-validate commands without executing them.
func (e *SandboxedExecutor) ValidateCommandParts(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	// Tools inside a virtualenv are invoked by absolute path, so the
	// allow-list matches on the base name.
	baseCmd := filepath.Base(cmdParts[0])

	// Validate command is allowed
	if !e.AllowedCommands[baseCmd] {
		return fmt.Errorf("command not allowed: %s", baseCmd)
	}

	// Check for shell metacharacters
	if !e.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

// AddAllowedCommand adds a command to the allowed list.
// Use with caution - only add commands you trust.
func (e *SandboxedExecutor) AddAllowedCommand(cmd string) {
	if e.AllowedCommands == nil {
		e.AllowedCommands = make(map[string]bool)
	}
	e.AllowedCommands[cmd] = true
}

// IsCommandAllowed checks if a command is in the allowed list.
func (e *SandboxedExecutor) IsCommandAllowed(cmd string) bool {
	return e.AllowedCommands[cmd]
}

// containsShellMetachars checks if a string contains shell metacharacters.
// These characters can be used for command injection attacks.
func containsShellMetachars(s string) bool {
	const dangerous = ";|&$`\n><(){}*?[]\\'\""
	return strings.ContainsAny(s, dangerous)
}
