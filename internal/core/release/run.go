package release

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVersionNotSet     = errors.New("version must be resolved before publishing")
	ErrVersionFixed      = errors.New("version is already resolved")
)

// =============================================================================
// Run Status
// =============================================================================

// Status is the position of a run in the release state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusResolving   Status = "resolving"
	StatusBuilding    Status = "building"
	StatusPublishing  Status = "publishing"
	StatusDeploying   Status = "deploying"
	StatusRollingBack Status = "rolling_back"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageBuild      Stage = "build"
	StagePublish    Stage = "publish"
	StageDeploy     Stage = "deploy"
	StageCompensate Stage = "compensate"
)

// Outcome is the per-stage result recorded on a run.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// =============================================================================
// Release Run
// =============================================================================

// Run is the unit of work for one pipeline execution. It owns the resolved
// version tag and per-stage outcomes for its duration; the only durable traces
// of a run are the registry, the remote host and the journal entry.
type Run struct {
	ID         string            `json:"id"`
	Commit     string            `json:"commit"`
	Repository string            `json:"repository"`
	Version    VersionTag        `json:"version,omitempty"`
	Status     Status            `json:"status"`
	Stages     map[Stage]Outcome `json:"stages"`
	RolledBack bool              `json:"rolled_back"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// NewRun creates a pending run for the given commit and image repository.
func NewRun(commit, repository string) *Run {
	return &Run{
		ID:         uuid.New().String(),
		Commit:     commit,
		Repository: repository,
		Status:     StatusPending,
		Stages: map[Stage]Outcome{
			StageResolve: OutcomePending,
			StageBuild:   OutcomePending,
			StagePublish: OutcomePending,
			StageDeploy:  OutcomePending,
		},
		StartedAt: time.Now().UTC(),
	}
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed status transitions. Failures in
// resolving, building or publishing go straight to failed; only a deploying
// failure passes through rolling_back.
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusResolving},
	StatusResolving:   {StatusBuilding, StatusFailed},
	StatusBuilding:    {StatusPublishing, StatusFailed},
	StatusPublishing:  {StatusDeploying, StatusFailed},
	StatusDeploying:   {StatusSucceeded, StatusRollingBack},
	StatusRollingBack: {StatusFailed},
	StatusSucceeded:   {}, // Terminal state
	StatusFailed:      {}, // Terminal state
}

// ValidateTransition checks if a status transition is allowed.
func ValidateTransition(from, to Status) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// Transition moves the run to a new status, validating the edge.
func (r *Run) Transition(to Status) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	if to == StatusDeploying && r.Version == "" {
		return ErrVersionNotSet
	}
	r.Status = to

	if r.Terminal() {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	return nil
}

// Terminal reports whether the run has reached a terminal status.
func (r *Run) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// ResolveVersion fixes the version tag for the remainder of the run.
// The tag is immutable once set.
func (r *Run) ResolveVersion(v VersionTag) error {
	if r.Version != "" {
		return ErrVersionFixed
	}
	r.Version = v
	return nil
}

// MarkStage records the outcome of a stage.
func (r *Run) MarkStage(stage Stage, outcome Outcome) {
	r.Stages[stage] = outcome
}

// ImageRef returns the repository reference for the given tag.
func (r *Run) ImageRef(tag string) string {
	return r.Repository + ":" + tag
}
