// Package notify delivers terminal run outcomes to an external consumer.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Webhook Notifier
// =============================================================================

// Config holds configuration for the webhook notifier.
type Config struct {
	URL     string
	Token   string        // Optional bearer token
	Timeout time.Duration // Default: 10 seconds
}

// WebhookNotifier POSTs the run outcome as JSON to a configured endpoint.
type WebhookNotifier struct {
	config     Config
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// runPayload is the notification body. On failure it names the first fatal
// error and whether the version tag was reverted.
type runPayload struct {
	RunID      string `json:"run_id"`
	Commit     string `json:"commit"`
	Repository string `json:"repository"`
	Version    string `json:"version,omitempty"`
	Status     string `json:"status"`
	RolledBack bool   `json:"rolled_back"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// NotifyRun delivers the terminal run outcome.
func (n *WebhookNotifier) NotifyRun(ctx context.Context, run *release.Run) error {
	payload := runPayload{
		RunID:      run.ID,
		Commit:     run.Commit,
		Repository: run.Repository,
		Version:    run.Version.String(),
		Status:     string(run.Status),
		RolledBack: run.RolledBack,
		Error:      run.Error,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		payload.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal run payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.Token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send run notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notifier returned error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// =============================================================================
// No-Op Notifier (for development/testing)
// =============================================================================

// NoOpNotifier is a notifier that does nothing (no webhook configured).
type NoOpNotifier struct{}

// NewNoOpNotifier creates a no-op notifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyRun does nothing.
func (n *NoOpNotifier) NotifyRun(ctx context.Context, run *release.Run) error {
	return nil
}
