package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"padeploy/internal/deploy"
	"padeploy/internal/history"
	"padeploy/internal/security"
	"padeploy/internal/target"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB
	RecentRunsLimit = 10        // Number of recent runs to return in status endpoint
)

// HandleWebhook handles push webhook requests and triggers a deployment
// run for the named target.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	targetName := chi.URLParam(r, "targetName")

	// Validate target name for security
	if err := security.ValidateTargetName(targetName); err != nil {
		s.Logger.Warn("Invalid target name in webhook request", "target", targetName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid target name: %v", err)})
		return
	}

	// Check if target exists
	tgt, err := s.Registry.Get(targetName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown target"})
		return
	}

	// Webhook-triggered deployments require a configured secret
	if tgt.Secret == "" {
		s.Logger.Warn("Webhook rejected: target has no secret configured", "target", targetName)
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Target not enabled for webhook deployments"})
		return
	}

	// Check payload size (ContentLength can be -1 if not set)
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	// Check content type
	if r.Header.Get("Content-Type") != "application/json" {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	// Check event type
	if r.Header.Get("X-GitHub-Event") != "push" {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event"})
		return
	}

	// Read payload
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	// Verify signature
	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, tgt.Secret) {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	// Parse JSON payload
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Logger.Error("Failed to parse JSON payload", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if len(payload) == 0 {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Missing payload, skipping"})
		return
	}

	// Respond immediately for pushes to non-deployment branches
	ref, _ := payload["ref"].(string)
	if !tgt.MatchesRef(ref) {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Not deployment branch, skipping"})
		return
	}

	// Try to acquire deployment lock; a run assumes exclusive access to
	// the working copy and data file
	if !s.LockManager.TryLock(targetName) {
		s.Logger.Warn("Deployment already in progress, rejecting", "target", targetName)

		// Record rejected run
		if !s.TestMode {
			if _, err := s.History.RecordRun(r.Context(), &history.RunRecord{
				Target:       targetName,
				Branch:       tgt.Branch,
				Status:       "rejected",
				ErrorMessage: stringPtr("Deployment already in progress"),
			}); err != nil {
				s.Logger.Error("Failed to record rejection in history", "error", err, "target", targetName)
			}
		}

		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Deployment already in progress"})
		return
	}

	// Acknowledge receipt before the run: webhook senders time out in
	// seconds, the run takes longer
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Deployment accepted",
		"target":  targetName,
	})

	// Execute deployment asynchronously
	s.deployWg.Add(1)
	go func() {
		defer s.deployWg.Done()
		defer s.LockManager.Unlock(targetName)
		s.executeDeployment(context.Background(), tgt)
	}()
}

// executeDeployment runs the deployment and records history
func (s *Server) executeDeployment(ctx context.Context, tgt *target.Target) {
	d := s.NewDeployment(tgt)
	run, err := d.Run(ctx)

	if !s.TestMode {
		duration := run.Duration().Seconds()

		var errorMsg *string
		var failedStep *string
		if err != nil {
			errorMsg = stringPtr(err.Error())
		}
		if run.FailedStep != "" {
			failedStep = &run.FailedStep
		}

		if _, recErr := s.History.RecordRun(ctx, &history.RunRecord{
			Target:          run.Target,
			RunID:           run.ID,
			Branch:          run.Branch,
			Status:          string(run.Status),
			FailedStep:      failedStep,
			StartedAt:       run.StartedAt,
			CompletedAt:     &run.CompletedAt,
			DurationSeconds: &duration,
			CommitHash:      stringPtrOrNil(run.CommitHash),
			BackupPath:      stringPtrOrNil(run.BackupPath),
			ErrorMessage:    errorMsg,
		}); recErr != nil {
			s.Logger.Error("Failed to record run history", "error", recErr, "target", run.Target)
		}
	}

	// Log final status (we already responded to the sender)
	if run.Status == deploy.RunSucceeded {
		s.Logger.Info("deployment completed", "target", run.Target, "run", run.ID, "status", "succeeded")
	} else {
		s.Logger.Error("deployment aborted", "target", run.Target, "run", run.ID, "step", run.FailedStep, "error", err)
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	targetNames := s.Registry.List()

	response := map[string]interface{}{
		"status":       "ok",
		"targets":      targetNames,
		"target_count": s.Registry.Count(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus handles deployment status requests
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	targetName := chi.URLParam(r, "targetName")

	// Validate target name for security
	if err := security.ValidateTargetName(targetName); err != nil {
		s.Logger.Warn("Invalid target name in status request", "target", targetName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid target name: %v", err)})
		return
	}

	// Check if target exists
	if _, err := s.Registry.Get(targetName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown target"})
		return
	}

	// Check if history is available
	if s.TestMode {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available in test mode"})
		return
	}

	// Get latest run
	latest, err := s.History.GetLatestRun(r.Context(), targetName)
	if err != nil {
		s.Logger.Error("Failed to get latest run", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	// Get recent runs
	recent, err := s.History.GetRunHistory(r.Context(), targetName, RecentRunsLimit)
	if err != nil {
		s.Logger.Error("Failed to get run history", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	response := map[string]interface{}{
		"target":      targetName,
		"latest_run":  latest,
		"recent_runs": recent,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Helper functions
func stringPtr(s string) *string {
	return &s
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
