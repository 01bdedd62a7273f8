// Package workflow provides the execution primitives the orchestrator is
// built from: a sequential stage runner and a judge-gated refinement loop.
package workflow

import "time"

// ============================================================================
// ARTIFACTS AND VERDICTS
// ============================================================================

// Artifact is the unit of data flowing between stages. Producers emit one,
// evaluators judge one, the assembler consumes one.
type Artifact map[string]any

// Verdict is an evaluator's judgment of an artifact.
type Verdict struct {
	Accepted bool    `json:"accepted"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// ============================================================================
// LOOP STATE
// ============================================================================

// LoopPhase names a position in the refinement loop's state machine.
type LoopPhase string

const (
	PhaseProducing  LoopPhase = "producing"
	PhaseEvaluating LoopPhase = "evaluating"
	PhaseAccepted   LoopPhase = "accepted"
	PhaseRetrying   LoopPhase = "retrying"
	PhaseExhausted  LoopPhase = "exhausted"
)

// LoopState is a snapshot of the refinement loop, surfaced to observers
// between transitions.
type LoopState struct {
	Phase     LoopPhase
	Iteration int
	Artifact  Artifact
	Verdict   *Verdict
	Feedback  []string
}

// ============================================================================
// RUN OUTCOMES
// ============================================================================

// Outcome is the terminal status of a workflow run.
type Outcome string

const (
	// OutcomeCompleted means the run finished with an accepted artifact.
	OutcomeCompleted Outcome = "completed"
	// OutcomeExhausted means the run finished, but the refinement loop hit
	// its iteration cap without acceptance.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeFailed means the run aborted before producing final content.
	OutcomeFailed Outcome = "failed"
)

// Diagnostics carries the run detail needed to explain any outcome without
// re-running.
type Diagnostics struct {
	FailedStage string
	Iterations  int
	LastVerdict *Verdict
	Cancelled   bool
	Error       error
	Duration    time.Duration
}

// Result is a completed workflow run. Content is nil exactly when Outcome
// is OutcomeFailed.
type Result struct {
	Outcome     Outcome
	Content     Artifact
	Diagnostics Diagnostics
}
