// Package docker provides local image operations via the Docker SDK:
// building the release artifact, re-tagging it, pushing it to the registry
// and removing it again during rollback.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
)

// =============================================================================
// Client
// =============================================================================

// Client wraps the Docker SDK for the image operations the pipeline needs.
type Client struct {
	cli    *client.Client
	auth   registry.AuthConfig
	logger *slog.Logger
}

// NewClient creates a Docker client against the local daemon. If host is
// empty, the default Docker host from the environment is used. The credentials
// are attached to pushes only; they are never logged.
func NewClient(host string, username, password string, logger *slog.Logger) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewImageError("NewClient", "", "failed to create client", ErrConnectionFailed)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cli: cli,
		auth: registry.AuthConfig{
			Username: username,
			Password: password,
		},
		logger: logger.With("component", "docker"),
	}, nil
}

// Ping checks if the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return NewImageError("Ping", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// =============================================================================
// Build
// =============================================================================

// BuildImage builds the image from contextDir and tags it with ref.
// The build context is tarred in full; a .dockerignore in the context applies.
func (c *Client) BuildImage(ctx context.Context, contextDir, ref string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return NewImageError("BuildImage", ref, fmt.Sprintf("failed to tar build context: %v", err), ErrBuildFailed)
	}
	defer buildCtx.Close()

	resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{ref},
		Remove:     true,
		Dockerfile: "Dockerfile",
	})
	if err != nil {
		return NewImageError("BuildImage", ref, err.Error(), ErrBuildFailed)
	}
	defer resp.Body.Close()

	if err := drainStream(resp.Body); err != nil {
		return NewImageError("BuildImage", ref, err.Error(), ErrBuildFailed)
	}

	c.logger.Debug("image built", "ref", ref, "context", contextDir)
	return nil
}

// =============================================================================
// Tag and Push
// =============================================================================

// TagImage applies dst as an additional tag on the image referenced by src.
func (c *Client) TagImage(ctx context.Context, src, dst string) error {
	if err := c.cli.ImageTag(ctx, src, dst); err != nil {
		if client.IsErrNotFound(err) {
			return NewImageError("TagImage", src, "image not found", ErrImageNotFound)
		}
		return NewImageError("TagImage", src, err.Error(), err)
	}
	return nil
}

// PushImage pushes ref to the registry using the configured credentials.
func (c *Client) PushImage(ctx context.Context, ref string) error {
	encodedAuth, err := registry.EncodeAuthConfig(c.auth)
	if err != nil {
		return NewImageError("PushImage", ref, "failed to encode registry auth", err)
	}

	reader, err := c.cli.ImagePush(ctx, ref, image.PushOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return NewImageError("PushImage", ref, err.Error(), ErrPushFailed)
	}
	defer reader.Close()

	if err := drainStream(reader); err != nil {
		return NewImageError("PushImage", ref, err.Error(), ErrPushFailed)
	}

	c.logger.Debug("image pushed", "ref", ref)
	return nil
}

// =============================================================================
// Remove
// =============================================================================

// RemoveImage removes a local image tag. A missing image is treated as
// success so that rollback stays idempotent.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.cli.ImageRemove(ctx, ref, image.RemoveOptions{})
	if err != nil {
		if client.IsErrNotFound(err) || strings.Contains(err.Error(), "No such image") {
			return nil
		}
		return NewImageError("RemoveImage", ref, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Stream Handling
// =============================================================================

// streamMessage is one line of the daemon's JSON progress stream. Build and
// push report failures in-band, after a 200 response, so the stream has to be
// scanned for an error entry.
type streamMessage struct {
	Stream      string `json:"stream"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Error string `json:"error"`
}

// drainStream consumes a daemon progress stream and surfaces any in-band error.
func drainStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg streamMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode daemon stream: %w", err)
		}
		if msg.ErrorDetail != nil {
			return errors.New(msg.ErrorDetail.Message)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
}
