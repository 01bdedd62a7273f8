package workflow

import "context"

// ============================================================================
// REFINEMENT LOOP - Produce, evaluate, retry with cumulative feedback
// ============================================================================

const (
	DefaultMaxIterations       = 3
	DefaultAcceptanceThreshold = 0.8
)

// ProduceFunc generates a candidate artifact. It receives the full feedback
// history from every prior rejected iteration, oldest first.
type ProduceFunc func(ctx context.Context, feedback []string) (Artifact, error)

// EvaluateFunc judges a candidate artifact.
type EvaluateFunc func(ctx context.Context, artifact Artifact) (*Verdict, error)

// LoopConfig contains configuration for the refinement loop.
type LoopConfig struct {
	MaxIterations       int
	AcceptanceThreshold float64
	// Observer, when set, receives a state snapshot after every phase
	// transition. Called synchronously; keep it cheap.
	Observer func(LoopState)
}

// LoopResult is the terminal state of a finished loop.
type LoopResult struct {
	Artifact   Artifact
	Verdict    *Verdict
	Iterations int
	Accepted   bool
	Feedback   []string
}

// Loop runs produce/evaluate rounds until a verdict is accepted or the
// iteration cap is reached.
type Loop struct {
	produce  ProduceFunc
	evaluate EvaluateFunc
	config   LoopConfig
}

func NewLoop(produce ProduceFunc, evaluate EvaluateFunc, config LoopConfig) *Loop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.AcceptanceThreshold <= 0 {
		config.AcceptanceThreshold = DefaultAcceptanceThreshold
	}
	return &Loop{produce: produce, evaluate: evaluate, config: config}
}

// Run executes the loop. A verdict is accepted when the evaluator says so
// outright or when its score meets the acceptance threshold. Rejected
// iterations append their feedback to the history handed to the next
// produce call; the final iteration's rejection is never appended, since no
// produce call follows it. Errors from produce or evaluate abort the loop
// immediately.
func (l *Loop) Run(ctx context.Context) (*LoopResult, error) {
	feedback := make([]string, 0, l.config.MaxIterations-1)

	var artifact Artifact
	var verdict *Verdict

	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.observe(LoopState{Phase: PhaseProducing, Iteration: iteration, Feedback: feedback})

		var err error
		artifact, err = l.produce(ctx, feedback)
		if err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.observe(LoopState{Phase: PhaseEvaluating, Iteration: iteration, Artifact: artifact, Feedback: feedback})

		verdict, err = l.evaluate(ctx, artifact)
		if err != nil {
			return nil, err
		}

		if l.accepted(verdict) {
			l.observe(LoopState{Phase: PhaseAccepted, Iteration: iteration, Artifact: artifact, Verdict: verdict, Feedback: feedback})
			return &LoopResult{
				Artifact:   artifact,
				Verdict:    verdict,
				Iterations: iteration,
				Accepted:   true,
				Feedback:   feedback,
			}, nil
		}

		if iteration == l.config.MaxIterations {
			break
		}

		feedback = append(feedback, verdict.Feedback)
		l.observe(LoopState{Phase: PhaseRetrying, Iteration: iteration, Artifact: artifact, Verdict: verdict, Feedback: feedback})
	}

	l.observe(LoopState{Phase: PhaseExhausted, Iteration: l.config.MaxIterations, Artifact: artifact, Verdict: verdict, Feedback: feedback})

	return &LoopResult{
		Artifact:   artifact,
		Verdict:    verdict,
		Iterations: l.config.MaxIterations,
		Accepted:   false,
		Feedback:   feedback,
	}, nil
}

func (l *Loop) accepted(v *Verdict) bool {
	return v.Accepted || v.Score >= l.config.AcceptanceThreshold
}

func (l *Loop) observe(state LoopState) {
	if l.config.Observer != nil {
		l.config.Observer(state)
	}
}
