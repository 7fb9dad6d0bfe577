package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"padeploy/internal/backup"
	"padeploy/internal/deploy"
	"padeploy/internal/target"
)

const testSecret = "test-secret-at-least-32-chars-long-here"

// scriptedRunner succeeds every command without touching subprocesses.
type scriptedRunner struct{}

func (scriptedRunner) Run(ctx context.Context, dir string, timeout time.Duration, cmdParts []string) (*deploy.Result, error) {
	return &deploy.Result{ExitCode: 0}, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyReload() error { return nil }

func setupTestServer(t *testing.T) (*Server, *target.Target) {
	t.Helper()

	// Create a working copy the orchestrator's preflight accepts
	tmpDir := t.TempDir()
	for _, dir := range []string{".git", "instance"} {
		if err := os.Mkdir(filepath.Join(tmpDir, dir), 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "instance", "goal_tracker.db"), []byte("data"), 0644); err != nil {
		t.Fatalf("Failed to create data file: %v", err)
	}

	testTarget := &target.Target{
		Name:           "test-target",
		User:           "alice",
		AppRoot:        tmpDir,
		Branch:         "main",
		DataFile:       "instance/goal_tracker.db",
		BackupDir:      "backups",
		WSGIFile:       filepath.Join(tmpDir, "wsgi.py"),
		Secret:         testSecret,
		RetainCount:    5,
		Requirements:   "requirements.txt",
		PullTimeout:    60,
		InstallTimeout: 600,
		MigrateTimeout: 300,
	}

	registry := target.NewRegistry(map[string]*target.Target{
		"test-target": testTarget,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Test mode: no history, no rate limiting
	server := NewServer(registry, nil, logger, true)
	server.NewDeployment = func(tgt *target.Target) *deploy.Deployment {
		return &deploy.Deployment{
			Target: tgt,
			Runner: scriptedRunner{},
			Store:  backup.NewStore(tgt.BackupDirPath(), tgt.DataFilePath()),
			Reload: noopNotifier{},
			Logger: logger,
		}
	}

	return server, testTarget
}

func postWebhook(t *testing.T, server *Server, targetName string, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/deploy/"+targetName, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", makeTestSignature(payload, secret))
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleWebhook_UnknownTarget(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := postWebhook(t, server, "unknown-target", []byte(`{"ref":"refs/heads/main"}`), testSecret)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["error"] != "Unknown target" {
		t.Errorf("Expected 'Unknown target' error, got %v", response)
	}
}

func TestHandleWebhook_InvalidTargetName(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := postWebhook(t, server, "bad!name", []byte(`{}`), testSecret)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/main"}`), "wrong-secret-also-32-chars-long-xxxx")

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["error"] != "Invalid signature" {
		t.Errorf("Expected 'Invalid signature' error, got %v", response)
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/main"}`), "")

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleWebhook_NoSecretConfigured(t *testing.T) {
	server, testTarget := setupTestServer(t)
	testTarget.Secret = ""

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/main"}`), testSecret)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	server, _ := setupTestServer(t)

	largePayload := make([]byte, MaxPayloadBytes+1)
	req := httptest.NewRequest("POST", "/deploy/test-target", bytes.NewReader(largePayload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestHandleWebhook_InvalidContentType(t *testing.T) {
	server, _ := setupTestServer(t)

	payload := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest("POST", "/deploy/test-target", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", makeTestSignature(payload, testSecret))

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status 415, got %d", rr.Code)
	}
}

func TestHandleWebhook_NonPushEvent(t *testing.T) {
	server, _ := setupTestServer(t)

	payload := []byte(`{"zen":"Keep it simple"}`)
	req := httptest.NewRequest("POST", "/deploy/test-target", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-Hub-Signature-256", makeTestSignature(payload, testSecret))

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 for non-push event, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Ignoring non-push event" {
		t.Errorf("Unexpected response: %v", response)
	}
}

func TestHandleWebhook_NonDeploymentBranch(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/develop"}`), testSecret)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Not deployment branch, skipping" {
		t.Errorf("Unexpected response: %v", response)
	}
}

func TestHandleWebhook_AcceptsAndRuns(t *testing.T) {
	server, testTarget := setupTestServer(t)

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/main"}`), testSecret)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	server.WaitForDeployments()

	// The async run produced a verified backup artifact
	store := backup.NewStore(testTarget.BackupDirPath(), testTarget.DataFilePath())
	latest, err := store.Latest()
	if err != nil {
		t.Fatalf("Failed to list backups: %v", err)
	}
	if latest == nil {
		t.Error("Expected the deployment to create a backup artifact")
	}
}

func TestHandleWebhook_RejectsConcurrentDeployment(t *testing.T) {
	server, _ := setupTestServer(t)

	// Hold the lock so the webhook sees a run in progress
	if !server.LockManager.TryLock("test-target") {
		t.Fatal("Failed to acquire lock")
	}
	defer server.LockManager.Unlock("test-target")

	rr := postWebhook(t, server, "test-target", []byte(`{"ref":"refs/heads/main"}`), testSecret)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("status = %v", response["status"])
	}
	if response["target_count"] != float64(1) {
		t.Errorf("target_count = %v", response["target_count"])
	}
}

func TestHandleStatus_UnknownTarget(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/status/unknown-target", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleStatus_TestModeUnavailable(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/status/test-target", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 in test mode, got %d", rr.Code)
	}
}
