package docker

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrConnectionFailed = errors.New("docker connection failed")
	ErrBuildFailed      = errors.New("image build failed")
	ErrPushFailed       = errors.New("image push failed")
	ErrImageNotFound    = errors.New("image not found")
)

// ImageError wraps image operation errors with additional context.
type ImageError struct {
	Op      string // Operation that failed
	Ref     string // Image reference if applicable
	Message string
	Err     error
}

func (e *ImageError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// NewImageError creates a new ImageError.
func NewImageError(op, ref, message string, err error) *ImageError {
	return &ImageError{
		Op:      op,
		Ref:     ref,
		Message: message,
		Err:     err,
	}
}
