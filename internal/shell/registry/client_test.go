package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:     server.URL,
		Credentials: Credentials{Username: "demo", Password: "hunter2"},
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// =============================================================================
// ListTags Tests
// =============================================================================

func TestClient_ListTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/repositories/acme/widget/tags/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"next": "",
			"results": []map[string]string{
				{"name": "latest"}, {"name": "v1"}, {"name": "v3"},
			},
		})
	})
	client := newTestClient(t, mux)

	tags, err := client.ListTags(context.Background(), "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"latest", "v1", "v3"}, tags)
}

func TestClient_ListTags_FollowsPagination(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/repositories/acme/widget/tags/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, map[string]any{
				"next":    "",
				"results": []map[string]string{{"name": "v2"}},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"next":    server.URL + "/v2/repositories/acme/widget/tags/?page=2",
			"results": []map[string]string{{"name": "v1"}},
		})
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClient(Config{BaseURL: server.URL})

	tags, err := client.ListTags(context.Background(), "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, tags)
}

func TestClient_ListTags_EmptyRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/repositories/acme/widget/tags/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"next": "", "results": []map[string]string{}})
	})
	client := newTestClient(t, mux)

	tags, err := client.ListTags(context.Background(), "acme/widget")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestClient_ListTags_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.ListTags(context.Background(), "acme/widget")
	assert.ErrorContains(t, err, "500")
}

// =============================================================================
// DeleteTag Tests
// =============================================================================

func TestClient_DeleteTag(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/users/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "demo", req.Username)
		assert.Equal(t, "hunter2", req.Password)
		writeJSON(t, w, map[string]string{"token": "jwt-token"})
	})
	mux.HandleFunc("/v2/repositories/acme/widget/tags/v8/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		deleted = "v8"
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	err := client.DeleteTag(context.Background(), "acme/widget", "v8")
	require.NoError(t, err)
	assert.Equal(t, "v8", deleted)
}

func TestClient_DeleteTag_NotFoundIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/users/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"token": "jwt-token"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	client := newTestClient(t, mux)

	assert.NoError(t, client.DeleteTag(context.Background(), "acme/widget", "v8"))
}

func TestClient_DeleteTag_LoginFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))

	err := client.DeleteTag(context.Background(), "acme/widget", "v8")
	require.Error(t, err)
	assert.ErrorContains(t, err, "login failed")
	assert.NotContains(t, err.Error(), "hunter2", "errors must not leak the password")
}

func TestClient_DeleteTag_LoginHappensOnce(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/users/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		writeJSON(t, w, map[string]string{"token": fmt.Sprintf("jwt-%d", logins)})
	})
	mux.HandleFunc("/v2/repositories/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	require.NoError(t, client.DeleteTag(context.Background(), "acme/widget", "v8"))
	require.NoError(t, client.DeleteTag(context.Background(), "acme/widget", "v9"))
	assert.Equal(t, 1, logins)
}
