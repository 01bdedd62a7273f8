package orchestrator

import (
	"fmt"
	"time"

	"github.com/coursewright/coursewright/pkg/workflow"
)

// ============================================================================
// RESULT AGGREGATOR - Pure glue between loop exit and assembly
// ============================================================================

// AggregateForAssembly merges the loop's final artifact and verdict into
// the payload handed to the assembly stage. Rejecting nil inputs is the
// only failure mode; it signals a caller bug, not a runtime condition.
func AggregateForAssembly(artifact workflow.Artifact, verdict *workflow.Verdict) (workflow.Artifact, error) {
	if artifact == nil {
		return nil, fmt.Errorf("no artifact to assemble")
	}
	if verdict == nil {
		return nil, fmt.Errorf("no verdict for artifact")
	}

	return workflow.Artifact{
		"research": map[string]any(artifact),
		"verdict": map[string]any{
			"accepted": verdict.Accepted,
			"score":    verdict.Score,
			"feedback": verdict.Feedback,
		},
	}, nil
}

// FinalResult packages the assembly stage's output as the run's terminal
// result. The outcome distinguishes an accepted artifact from a best-effort
// one assembled after loop exhaustion.
func FinalResult(content workflow.Artifact, loop *workflow.LoopResult, duration time.Duration) *workflow.Result {
	outcome := workflow.OutcomeCompleted
	if !loop.Accepted {
		outcome = workflow.OutcomeExhausted
	}
	return &workflow.Result{
		Outcome: outcome,
		Content: content,
		Diagnostics: workflow.Diagnostics{
			Iterations:  loop.Iterations,
			LastVerdict: loop.Verdict,
			Duration:    duration,
		},
	}
}
