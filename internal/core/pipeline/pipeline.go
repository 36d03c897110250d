package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Pipeline
// =============================================================================

// Spec describes one requested release.
type Spec struct {
	Repository string // Registry namespace, e.g. "acme/widget"
	Commit     string // Source commit reference being released
	ContextDir string // Local build context directory
}

// Deps holds the pipeline's collaborators. Registry, Builder, Publisher and
// Deployer are required; Prober, Journal and Notifier may be nil.
type Deps struct {
	Registry  Registry
	Builder   Builder
	Publisher Publisher
	Deployer  Deployer
	Prober    Prober
	Journal   Journal
	Notifier  Notifier
}

// Pipeline executes release runs strictly sequentially: resolve, build,
// publish, deploy. A deploy failure is the single trigger for compensation.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a pipeline.
func New(deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:   deps,
		logger: logger.With("component", "pipeline"),
	}
}

// =============================================================================
// Run Execution
// =============================================================================

// Run executes one release for the given spec. It always returns the run with
// its terminal status; the error is the first fatal stage error, or nil when
// the run succeeded. Compensation errors are logged and never replace the
// deploy error.
func (p *Pipeline) Run(ctx context.Context, spec Spec) (*release.Run, error) {
	run := release.NewRun(spec.Commit, spec.Repository)
	logger := p.logger.With("run_id", run.ID, "repository", run.Repository)
	logger.Info("starting release run", "commit", run.Commit)

	// Resolve
	if err := run.Transition(release.StatusResolving); err != nil {
		return run, err
	}
	tags, err := p.deps.Registry.ListTags(ctx, run.Repository)
	if err != nil {
		// A wrong guess here risks an overwrite or a skipped version,
		// so the fetch is fatal and never retried.
		return p.fail(ctx, run, release.StageResolve, err)
	}
	if err := run.ResolveVersion(release.NextVersion(tags)); err != nil {
		return p.fail(ctx, run, release.StageResolve, err)
	}
	run.MarkStage(release.StageResolve, release.OutcomeSucceeded)
	logger.Info("resolved next version", "version", run.Version, "existing_tags", len(tags))

	// Build
	if err := run.Transition(release.StatusBuilding); err != nil {
		return run, err
	}
	if err := p.deps.Builder.BuildImage(ctx, spec.ContextDir, run.ImageRef("latest")); err != nil {
		return p.fail(ctx, run, release.StageBuild, err)
	}
	run.MarkStage(release.StageBuild, release.OutcomeSucceeded)
	logger.Info("built image", "ref", run.ImageRef("latest"))

	// Publish
	if err := run.Transition(release.StatusPublishing); err != nil {
		return run, err
	}
	if err := p.publish(ctx, run); err != nil {
		return p.fail(ctx, run, release.StagePublish, err)
	}
	run.MarkStage(release.StagePublish, release.OutcomeSucceeded)
	logger.Info("published image", "version", run.Version)

	// Deploy
	if err := run.Transition(release.StatusDeploying); err != nil {
		return run, err
	}
	if err := p.deploy(ctx, run); err != nil {
		run.MarkStage(release.StageDeploy, release.OutcomeFailed)
		return p.rollBack(ctx, run, err)
	}
	run.MarkStage(release.StageDeploy, release.OutcomeSucceeded)

	if err := run.Transition(release.StatusSucceeded); err != nil {
		return run, err
	}
	p.finish(ctx, run)
	logger.Info("release run succeeded", "version", run.Version)
	return run, nil
}

// publish pushes latest and the resolved version tag together. There is no
// state where one tag is pushed without the other being attempted.
func (p *Pipeline) publish(ctx context.Context, run *release.Run) error {
	latest := run.ImageRef("latest")
	versioned := run.ImageRef(run.Version.String())

	if err := p.deps.Publisher.TagImage(ctx, latest, versioned); err != nil {
		return fmt.Errorf("tag %s: %w", versioned, err)
	}
	if err := p.deps.Publisher.PushImage(ctx, latest); err != nil {
		return fmt.Errorf("push %s: %w", latest, err)
	}
	if err := p.deps.Publisher.PushImage(ctx, versioned); err != nil {
		return fmt.Errorf("push %s: %w", versioned, err)
	}
	return nil
}

// deploy replaces the container on the target host and, when a prober is
// configured, waits for the service to come up. A cancelled context is folded
// into the deploy error so that an aborted run still compensates.
func (p *Pipeline) deploy(ctx context.Context, run *release.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.deps.Deployer.Deploy(ctx, run.ImageRef(run.Version.String())); err != nil {
		return err
	}
	if p.deps.Prober != nil {
		if err := p.deps.Prober.WaitHealthy(ctx); err != nil {
			return fmt.Errorf("health probe: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Failure Handling
// =============================================================================

// fail terminates the run without compensation. Used for resolve, build and
// publish failures, where nothing has been durably published.
func (p *Pipeline) fail(ctx context.Context, run *release.Run, stage release.Stage, err error) (*release.Run, error) {
	stageErr := NewStageError(stage, err)
	run.MarkStage(stage, release.OutcomeFailed)
	run.Error = stageErr.Error()
	if terr := run.Transition(release.StatusFailed); terr != nil {
		return run, terr
	}
	p.finish(ctx, run)
	p.logger.Error("release run failed",
		"run_id", run.ID,
		"stage", stage,
		"error", err,
	)
	return run, stageErr
}

// rollBack compensates a deploy failure: delete the freshly pushed version tag
// from the registry, then remove the local versioned image. Both sub-steps are
// attempted regardless of each other's outcome, and neither can mask the
// original deploy error.
func (p *Pipeline) rollBack(ctx context.Context, run *release.Run, deployErr error) (*release.Run, error) {
	stageErr := NewStageError(release.StageDeploy, deployErr)
	run.Error = stageErr.Error()
	if terr := run.Transition(release.StatusRollingBack); terr != nil {
		return run, terr
	}

	// The run may already be cancelled; compensation still has to complete.
	cctx := context.WithoutCancel(ctx)

	versioned := run.ImageRef(run.Version.String())
	outcome := release.OutcomeSucceeded

	if err := p.deps.Registry.DeleteTag(cctx, run.Repository, run.Version.String()); err != nil {
		outcome = release.OutcomeFailed
		p.logger.Error("compensation: delete registry tag failed",
			"run_id", run.ID,
			"tag", run.Version,
			"error", err,
		)
	}
	if err := p.deps.Publisher.RemoveImage(cctx, versioned); err != nil {
		outcome = release.OutcomeFailed
		p.logger.Error("compensation: remove local image failed",
			"run_id", run.ID,
			"ref", versioned,
			"error", err,
		)
	}
	run.MarkStage(release.StageCompensate, outcome)
	run.RolledBack = true

	if terr := run.Transition(release.StatusFailed); terr != nil {
		return run, terr
	}
	p.finish(ctx, run)
	p.logger.Error("release run failed, version tag reverted",
		"run_id", run.ID,
		"version", run.Version,
		"error", deployErr,
	)
	return run, stageErr
}

// finish records and announces the terminal run, best-effort.
func (p *Pipeline) finish(ctx context.Context, run *release.Run) {
	cctx := context.WithoutCancel(ctx)
	if p.deps.Journal != nil {
		if err := p.deps.Journal.RecordRun(cctx, run); err != nil {
			p.logger.Warn("journal record failed", "run_id", run.ID, "error", err)
		}
	}
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.NotifyRun(cctx, run); err != nil {
			p.logger.Warn("run notification failed", "run_id", run.ID, "error", err)
		}
	}
}
