// Package store persists finished release runs for operator audit.
package store

import (
	"context"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Journal Interface
// =============================================================================

// Journal is the append-only record of finished release runs. It is an audit
// artifact: the pipeline never reads it back to make decisions, and a journal
// failure never changes a run's outcome.
type Journal interface {
	RecordRun(ctx context.Context, run *release.Run) error
	GetRun(ctx context.Context, id string) (*release.Run, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]release.Run, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options for run listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
