package workflow

import "fmt"

// WorkflowErrorKind classifies a workflow-level failure.
type WorkflowErrorKind string

const (
	// WorkflowStageFailed means a named stage returned an error; later
	// stages never ran.
	WorkflowStageFailed WorkflowErrorKind = "stage_failed"
	// WorkflowLoopExhausted means the refinement loop hit its iteration cap
	// and policy chose not to proceed with the unaccepted artifact.
	WorkflowLoopExhausted WorkflowErrorKind = "loop_exhausted"
	// WorkflowCancelled means the run's context was cancelled.
	WorkflowCancelled WorkflowErrorKind = "cancelled"
)

// WorkflowError is the failure carried in a Result's diagnostics. It wraps
// the underlying cause, so callers can reach invocation or resolution
// errors through errors.As.
type WorkflowError struct {
	Kind  WorkflowErrorKind
	Stage string
	Err   error
}

func (e *WorkflowError) Error() string {
	switch e.Kind {
	case WorkflowStageFailed:
		return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
	case WorkflowLoopExhausted:
		return "refinement loop exhausted without an accepted artifact"
	case WorkflowCancelled:
		return fmt.Sprintf("workflow cancelled: %v", e.Err)
	default:
		return fmt.Sprintf("workflow error: %v", e.Err)
	}
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewStageError tags err with the identity of the stage that raised it.
func NewStageError(stage string, err error) *WorkflowError {
	return &WorkflowError{Kind: WorkflowStageFailed, Stage: stage, Err: err}
}
