package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	targetPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	userPattern   = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
)

// ValidateBranchName ensures branch name is safe for git operations.
// Prevents command injection through branch names.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateTargetName ensures a deployment target name is safe for use in
// paths and URLs.
func ValidateTargetName(name string) error {
	if name == "" {
		return fmt.Errorf("target name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("target name cannot start with '-' or '.'")
	}
	if !targetPattern.MatchString(name) {
		return fmt.Errorf("target name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// ValidateUserName ensures an operator account name is safe to substitute
// into path templates. Account names follow Unix username conventions.
func ValidateUserName(user string) error {
	if user == "" {
		return fmt.Errorf("user name cannot be empty")
	}
	if !userPattern.MatchString(user) {
		return fmt.Errorf("user name contains invalid characters")
	}
	return nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal attempts.
func SanitizePath(path string) (string, error) {
	// Must be absolute
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", path)
	}

	// Clean the path to remove ./ elements
	cleaned := filepath.Clean(path)

	return cleaned, nil
}

// EnsureWithin verifies that targetPath resolves inside basePath.
// Used before deleting or restoring files under the backup directory so a
// crafted artifact name can never escape it.
func EnsureWithin(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	relPath, err := filepath.Rel(absBase, absTarget)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: target '%s' is outside base '%s'", absTarget, absBase)
	}

	return absTarget, nil
}
