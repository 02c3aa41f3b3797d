package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheenhq/sitesmith/internal/crawler"
	"github.com/sheenhq/sitesmith/internal/planner"
)

// Category classifies a pipeline failure for retry and reporting purposes.
type Category string

const (
	// CategoryTransient failures are retried with backoff.
	CategoryTransient Category = "transient"
	// CategoryValidation failures are terminal: retrying the same input
	// produces the same bad output.
	CategoryValidation Category = "validation"
	// CategorySecurity failures are terminal: the target resolved somewhere
	// the crawler refuses to touch.
	CategorySecurity Category = "security"
	// CategoryStalled marks migrations whose worker lease expired mid-run.
	CategoryStalled Category = "stalled"
)

// Stable error codes surfaced on failed migrations and in failure events.
const (
	CodeFetchFailed   = "fetch_failed"
	CodeBlockedTarget = "blocked_target"
	CodePlanInvalid   = "plan_invalid"
	CodeStalled       = "stalled"
	CodeCancelled     = "cancelled"
	CodeStorageFailed = "storage_failed"
)

// PipelineError is a classified pipeline failure.
type PipelineError struct {
	Category Category
	Code     string
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Category, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Classify maps an arbitrary phase error onto the failure taxonomy. Unknown
// errors default to transient so that infrastructure hiccups get retried.
// Parameters:
//   - phase: phase name used in the fallback code.
//   - err: the phase error.
// Returns:
//   - *PipelineError: classified failure.
func Classify(phase string, err error) *PipelineError {
	var classified *PipelineError
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, crawler.ErrBlocked):
		return &PipelineError{Category: CategorySecurity, Code: CodeBlockedTarget, Err: err}
	case errors.Is(err, planner.ErrInvalidPlan):
		return &PipelineError{Category: CategoryValidation, Code: CodePlanInvalid, Err: err}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return &PipelineError{Category: CategoryTransient, Code: phase + "_interrupted", Err: err}
	default:
		return &PipelineError{Category: CategoryTransient, Code: phase + "_failed", Err: err}
	}
}

// IsRetryable reports whether a classified failure should go back on the
// queue.
func IsRetryable(err *PipelineError) bool {
	return err.Category == CategoryTransient
}
