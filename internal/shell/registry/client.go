// Package registry provides a Docker Hub v2 API client for tag operations.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Client
// =============================================================================

// Credentials are the registry username/password pair. The password is opaque
// secret material and is never logged.
type Credentials struct {
	Username string
	Password string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string // Default: https://hub.docker.com
	Credentials Credentials
	Timeout     time.Duration // Per-request timeout. Default: 30 seconds.
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://hub.docker.com",
		Timeout: 30 * time.Second,
	}
}

// Client talks to the Docker Hub v2 API. Listing tags on public repositories
// needs no authentication; deleting a tag requires a JWT obtained via login.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	token      string
}

// NewClient creates a registry client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://hub.docker.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		creds:   cfg.Credentials,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// =============================================================================
// Tag Listing
// =============================================================================

// tagsPage is one page of the tag list response.
type tagsPage struct {
	Next    string `json:"next"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// ListTags returns all tag names for the repository ("namespace/name"),
// following pagination until exhausted.
func (c *Client) ListTags(ctx context.Context, repository string) ([]string, error) {
	url := fmt.Sprintf("%s/v2/repositories/%s/tags/?page_size=100", c.baseURL, repository)

	var tags []string
	for url != "" {
		page, err := c.fetchTagsPage(ctx, url)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			tags = append(tags, r.Name)
		}
		url = page.Next
	}
	return tags, nil
}

func (c *Client) fetchTagsPage(ctx context.Context, url string) (*tagsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry returned error %d: %s", resp.StatusCode, string(respBody))
	}

	var page tagsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode tag list: %w", err)
	}
	return &page, nil
}

// =============================================================================
// Tag Deletion
// =============================================================================

// DeleteTag removes a tag from the repository. A 404 is treated as success so
// that rollback stays idempotent.
func (c *Client) DeleteTag(ctx context.Context, repository, tag string) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v2/repositories/%s/tags/%s/", c.baseURL, repository, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Already gone
		return nil
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry returned error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// =============================================================================
// Authentication
// =============================================================================

// loginRequest is the request body for the Hub login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the JWT returned on successful login.
type loginResponse struct {
	Token string `json:"token"`
}

// ensureToken logs in once and caches the JWT for subsequent calls.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" {
		return nil
	}

	body, err := json.Marshal(loginRequest{
		Username: c.creds.Username,
		Password: c.creds.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	url := c.baseURL + "/v2/users/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log in to registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Body intentionally not included: it may echo credentials.
		return fmt.Errorf("registry login failed with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if lr.Token == "" {
		return fmt.Errorf("registry login returned an empty token")
	}
	c.token = lr.Token
	return nil
}
