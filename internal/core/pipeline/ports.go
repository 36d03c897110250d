// Package pipeline sequences one release run through resolve, build, publish
// and deploy, and compensates published side effects when the deploy fails.
package pipeline

import (
	"context"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Capability Ports
// =============================================================================

// Registry exposes the registry tag set for an image repository.
// ListTags is read by the resolver; DeleteTag is written by the compensator.
type Registry interface {
	ListTags(ctx context.Context, repository string) ([]string, error)
	DeleteTag(ctx context.Context, repository, tag string) error
}

// Builder produces the local "latest" image artifact from a build context.
type Builder interface {
	BuildImage(ctx context.Context, contextDir, ref string) error
}

// Publisher re-tags and pushes local artifacts to the registry, and removes
// local images during compensation.
type Publisher interface {
	TagImage(ctx context.Context, src, dst string) error
	PushImage(ctx context.Context, ref string) error
	RemoveImage(ctx context.Context, ref string) error
}

// Deployer replaces the running container on the target host with the given
// versioned image.
type Deployer interface {
	Deploy(ctx context.Context, imageRef string) error
}

// Prober verifies the deployed service answers its health endpoint.
// Implementations may retry internally; a returned error counts as a deploy
// failure.
type Prober interface {
	WaitHealthy(ctx context.Context) error
}

// Journal records finished runs for operator audit. Best-effort: journal
// failures never change a run's outcome.
type Journal interface {
	RecordRun(ctx context.Context, run *release.Run) error
}

// Notifier delivers the terminal run outcome to an external consumer.
type Notifier interface {
	NotifyRun(ctx context.Context, run *release.Run) error
}
