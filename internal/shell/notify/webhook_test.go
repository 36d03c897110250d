package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipper/internal/core/release"
)

func failedRun(t *testing.T) *release.Run {
	t.Helper()
	run := release.NewRun("abc1234", "acme/widget")
	run.Version = "v8"
	run.Status = release.StatusFailed
	run.RolledBack = true
	run.Error = "deploy stage: ssh: connect refused"
	now := time.Now().UTC()
	run.FinishedAt = &now
	return run
}

func TestWebhookNotifier_NotifyRun(t *testing.T) {
	var got runPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer hook-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	notifier := NewWebhookNotifier(Config{URL: server.URL, Token: "hook-token"})
	run := failedRun(t)

	require.NoError(t, notifier.NotifyRun(context.Background(), run))

	assert.Equal(t, run.ID, got.RunID)
	assert.Equal(t, "v8", got.Version)
	assert.Equal(t, "failed", got.Status)
	assert.True(t, got.RolledBack)
	assert.Contains(t, got.Error, "deploy stage")
	assert.NotEmpty(t, got.FinishedAt)
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	notifier := NewWebhookNotifier(Config{URL: server.URL})
	err := notifier.NotifyRun(context.Background(), failedRun(t))

	require.Error(t, err)
	assert.ErrorContains(t, err, "503")
}

func TestNoOpNotifier(t *testing.T) {
	assert.NoError(t, NewNoOpNotifier().NotifyRun(context.Background(), failedRun(t)))
}
