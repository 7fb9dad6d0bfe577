package deploy

import (
	"context"
	"testing"
	"time"
)

func TestSubprocessRunnerRejectsUnknownCommand(t *testing.T) {
	r := NewSubprocessRunner()

	res, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, []string{"rm", "-rf", "/"})
	if err == nil {
		t.Fatal("Expected command outside the allow-list to be rejected")
	}
	if res.OK() {
		t.Error("Rejected command must not report success")
	}
}

func TestSubprocessRunnerRejectsShellMetachars(t *testing.T) {
	r := NewSubprocessRunner()

	_, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, []string{"git", "pull; rm -rf /"})
	if err == nil {
		t.Error("Expected argument with shell metacharacters to be rejected")
	}
}

func TestSubprocessRunnerRejectsEmptyCommand(t *testing.T) {
	r := NewSubprocessRunner()

	_, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, nil)
	if err == nil {
		t.Error("Expected empty command to be rejected")
	}
}

func TestSubprocessRunnerCustomAllowList(t *testing.T) {
	r := &SubprocessRunner{AllowedCommands: map[string]bool{"true": true}}

	res, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, []string{"true"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() {
		t.Errorf("ExitCode = %d, expected 0", res.ExitCode)
	}

	if _, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, []string{"git", "status"}); err == nil {
		t.Error("Custom allow-list should replace the default one")
	}
}

func TestSubprocessRunnerNonZeroExit(t *testing.T) {
	r := &SubprocessRunner{AllowedCommands: map[string]bool{"false": true}}

	res, err := r.Run(context.Background(), t.TempDir(), 5*time.Second, []string{"false"})
	if err == nil {
		t.Error("Expected non-zero exit to be reported as an error")
	}
	if res.OK() {
		t.Errorf("ExitCode = %d, expected non-zero", res.ExitCode)
	}
}

func TestSubprocessRunnerTimeout(t *testing.T) {
	r := &SubprocessRunner{AllowedCommands: map[string]bool{"sleep": true}}

	start := time.Now()
	_, err := r.Run(context.Background(), t.TempDir(), 100*time.Millisecond, []string{"sleep", "10"})
	if err == nil {
		t.Error("Expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Timeout was not enforced")
	}
}
