package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateBranchName(t *testing.T) {
	validBranches := []string{
		"main",
		"develop",
		"feature/add-stage5",
		"release-1.2.3",
		"hotfix_db",
	}
	for _, branch := range validBranches {
		if err := ValidateBranchName(branch); err != nil {
			t.Errorf("Expected branch %q to be valid, got: %v", branch, err)
		}
	}

	invalidBranches := []string{
		"",
		"-rf",
		"main; rm -rf /",
		"branch with spaces",
		"branch$(whoami)",
		"branch`id`",
	}
	for _, branch := range invalidBranches {
		if err := ValidateBranchName(branch); err == nil {
			t.Errorf("Expected branch %q to be rejected", branch)
		}
	}
}

func TestValidateTargetName(t *testing.T) {
	validNames := []string{
		"studymomentum",
		"my-app",
		"app_2",
		"App123",
	}
	for _, name := range validNames {
		if err := ValidateTargetName(name); err != nil {
			t.Errorf("Expected target name %q to be valid, got: %v", name, err)
		}
	}

	invalidNames := []string{
		"",
		"-leading-dash",
		".hidden",
		"name/with/slash",
		"name with spaces",
		"../traversal",
		"name;injection",
	}
	for _, name := range invalidNames {
		if err := ValidateTargetName(name); err == nil {
			t.Errorf("Expected target name %q to be rejected", name)
		}
	}
}

func TestValidateUserName(t *testing.T) {
	validUsers := []string{"alice", "bob_smith", "web-user", "_svc"}
	for _, user := range validUsers {
		if err := ValidateUserName(user); err != nil {
			t.Errorf("Expected user %q to be valid, got: %v", user, err)
		}
	}

	invalidUsers := []string{"", "Alice", "1user", "user name", "user/name"}
	for _, user := range invalidUsers {
		if err := ValidateUserName(user); err == nil {
			t.Errorf("Expected user %q to be rejected", user)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	if _, err := SanitizePath("relative/path"); err == nil {
		t.Error("Expected relative path to be rejected")
	}
	if _, err := SanitizePath("/home/alice/../root"); err == nil {
		t.Error("Expected path with traversal to be rejected")
	}

	cleaned, err := SanitizePath("/home/alice/./app")
	if err != nil {
		t.Fatalf("SanitizePath failed: %v", err)
	}
	if cleaned != "/home/alice/app" {
		t.Errorf("Cleaned path = %s", cleaned)
	}
}

func TestEnsureWithin(t *testing.T) {
	base := t.TempDir()

	inside := filepath.Join(base, "artifact.db")
	resolved, err := EnsureWithin(base, inside)
	if err != nil {
		t.Fatalf("Expected path inside base to be accepted: %v", err)
	}
	if resolved != inside {
		t.Errorf("Resolved = %s, expected %s", resolved, inside)
	}

	outsidePaths := []string{
		filepath.Join(base, "..", "escape.db"),
		"/etc/passwd",
		filepath.Dir(base),
	}
	for _, p := range outsidePaths {
		if _, err := EnsureWithin(base, p); err == nil {
			t.Errorf("Expected %q to be rejected as outside %q", p, base)
		} else if !strings.Contains(err.Error(), "path traversal") {
			t.Errorf("Unexpected error for %q: %v", p, err)
		}
	}
}

func TestEnsureWithinBaseItself(t *testing.T) {
	base := t.TempDir()

	// The base directory itself is within the base
	if _, err := EnsureWithin(base, base); err != nil {
		t.Errorf("Expected base itself to be accepted: %v", err)
	}
}
