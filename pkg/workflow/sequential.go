package workflow

import "context"

// ============================================================================
// SEQUENTIAL RUNNER - Ordered stages, fail-fast
// ============================================================================

// Stage is a named unit of work. It receives the previous stage's output
// and returns its own.
type Stage struct {
	Name string
	Run  func(ctx context.Context, input Artifact) (Artifact, error)
}

// SequentialRunner executes stages in declaration order, feeding each
// stage's output to the next. The first failure stops the sequence.
type SequentialRunner struct {
	stages []Stage
}

func NewSequentialRunner(stages ...Stage) *SequentialRunner {
	return &SequentialRunner{stages: stages}
}

// Run executes the stages against input. On failure it returns a
// WorkflowError naming the stage that failed; stages after it do not run.
// Context cancellation is checked between stages and returned unwrapped.
func (r *SequentialRunner) Run(ctx context.Context, input Artifact) (Artifact, error) {
	current := input
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := stage.Run(ctx, current)
		if err != nil {
			return nil, NewStageError(stage.Name, err)
		}
		current = out
	}
	return current, nil
}
