package pipeline

import (
	"fmt"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Stage Errors
// =============================================================================

// StageError wraps a stage failure with the stage it occurred in. The
// orchestrator dispatches compensation on the stage, not on the error value.
type StageError struct {
	Stage release.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage release.Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Compensable reports whether the failure requires rollback of published
// side effects. Only deploy failures do: earlier stages have published
// nothing, and a partial publish is treated as not-yet-published.
func (e *StageError) Compensable() bool {
	return e.Stage == release.StageDeploy
}
