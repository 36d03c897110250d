// Package probe verifies the deployed service answers its health endpoint.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// =============================================================================
// HTTP Health Probe
// =============================================================================

// Config configures the health probe.
type Config struct {
	URL            string        // Health endpoint, e.g. http://host:5090/api/health
	RequestTimeout time.Duration // Per-request timeout. Default: 5 seconds.
	MaxElapsed     time.Duration // Total probe budget. Default: 60 seconds.
}

// HTTPProbe polls the service health endpoint with exponential backoff until
// it answers 200 or the budget elapses. The container needs a moment to bind
// its port after docker run returns, so the first attempts failing is normal.
type HTTPProbe struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an HTTP health probe.
func New(config Config, logger *slog.Logger) *HTTPProbe {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.MaxElapsed == 0 {
		config.MaxElapsed = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProbe{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger.With("component", "probe"),
	}
}

// WaitHealthy blocks until the endpoint answers 200 or the budget elapses.
func (p *HTTPProbe) WaitHealthy(ctx context.Context) error {
	attempts := 0
	op := func() error {
		attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health endpoint returned %s", resp.Status)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = p.config.MaxElapsed

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("service did not become healthy within %v (%d attempts): %w",
			p.config.MaxElapsed, attempts, err)
	}

	p.logger.Info("service healthy", "url", p.config.URL, "attempts", attempts)
	return nil
}
