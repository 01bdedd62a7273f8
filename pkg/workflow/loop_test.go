package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingProducer(calls *int) ProduceFunc {
	return func(ctx context.Context, feedback []string) (Artifact, error) {
		*calls++
		return Artifact{"attempt": *calls}, nil
	}
}

func staticEvaluator(verdict Verdict) EvaluateFunc {
	return func(ctx context.Context, artifact Artifact) (*Verdict, error) {
		v := verdict
		return &v, nil
	}
}

func TestLoopAcceptsOnFirstIteration(t *testing.T) {
	var produced int
	loop := NewLoop(
		countingProducer(&produced),
		staticEvaluator(Verdict{Accepted: true, Score: 0.9}),
		LoopConfig{MaxIterations: 3},
	)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, produced)
	assert.Empty(t, result.Feedback)
}

func TestLoopAcceptsOnScoreThreshold(t *testing.T) {
	var produced int
	loop := NewLoop(
		countingProducer(&produced),
		staticEvaluator(Verdict{Accepted: false, Score: 0.85}),
		LoopConfig{MaxIterations: 3, AcceptanceThreshold: 0.8},
	)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, 1, result.Iterations)
}

func TestLoopExhaustsAtMaxIterations(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			var produced int
			evaluations := 0
			loop := NewLoop(
				countingProducer(&produced),
				func(ctx context.Context, artifact Artifact) (*Verdict, error) {
					evaluations++
					return &Verdict{Accepted: false, Score: 0.1, Feedback: fmt.Sprintf("reject %d", evaluations)}, nil
				},
				LoopConfig{MaxIterations: max, AcceptanceThreshold: 0.8},
			)

			result, err := loop.Run(context.Background())
			require.NoError(t, err)

			assert.False(t, result.Accepted)
			assert.Equal(t, max, result.Iterations)
			assert.Equal(t, max, produced)
			assert.Equal(t, max, evaluations)
			// The final rejection is never appended: no produce call follows it.
			assert.Len(t, result.Feedback, max-1)
		})
	}
}

func TestLoopFeedbackHistoryIsCumulativeAndOrdered(t *testing.T) {
	var histories [][]string
	iteration := 0

	loop := NewLoop(
		func(ctx context.Context, feedback []string) (Artifact, error) {
			snapshot := make([]string, len(feedback))
			copy(snapshot, feedback)
			histories = append(histories, snapshot)
			return Artifact{}, nil
		},
		func(ctx context.Context, artifact Artifact) (*Verdict, error) {
			iteration++
			return &Verdict{Feedback: fmt.Sprintf("feedback-%d", iteration)}, nil
		},
		LoopConfig{MaxIterations: 4},
	)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Accepted)

	require.Len(t, histories, 4)
	assert.Empty(t, histories[0])
	assert.Equal(t, []string{"feedback-1"}, histories[1])
	assert.Equal(t, []string{"feedback-1", "feedback-2"}, histories[2])
	assert.Equal(t, []string{"feedback-1", "feedback-2", "feedback-3"}, histories[3])
}

func TestLoopPropagatesProduceError(t *testing.T) {
	wantErr := errors.New("producer broke")
	loop := NewLoop(
		func(ctx context.Context, feedback []string) (Artifact, error) {
			return nil, wantErr
		},
		staticEvaluator(Verdict{Accepted: true}),
		LoopConfig{},
	)

	result, err := loop.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, wantErr)
}

func TestLoopPropagatesEvaluateError(t *testing.T) {
	wantErr := errors.New("evaluator broke")
	var produced int
	loop := NewLoop(
		countingProducer(&produced),
		func(ctx context.Context, artifact Artifact) (*Verdict, error) {
			return nil, wantErr
		},
		LoopConfig{},
	)

	result, err := loop.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, produced)
}

func TestLoopStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var produced int
	loop := NewLoop(
		func(c context.Context, feedback []string) (Artifact, error) {
			produced++
			if produced == 2 {
				cancel()
			}
			return Artifact{}, nil
		},
		staticEvaluator(Verdict{Accepted: false, Feedback: "again"}),
		LoopConfig{MaxIterations: 5},
	)

	result, err := loop.Run(ctx)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, produced)
}

func TestLoopObserverSeesTransitions(t *testing.T) {
	var phases []LoopPhase
	loop := NewLoop(
		func(ctx context.Context, feedback []string) (Artifact, error) {
			return Artifact{}, nil
		},
		func(ctx context.Context, artifact Artifact) (*Verdict, error) {
			return &Verdict{Accepted: len(phases) > 2}, nil
		},
		LoopConfig{
			MaxIterations: 3,
			Observer:      func(s LoopState) { phases = append(phases, s.Phase) },
		},
	)

	result, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Accepted)

	assert.Equal(t, []LoopPhase{
		PhaseProducing, PhaseEvaluating, PhaseRetrying,
		PhaseProducing, PhaseEvaluating, PhaseAccepted,
	}, phases)
}

func TestLoopDefaults(t *testing.T) {
	loop := NewLoop(nil, nil, LoopConfig{})
	assert.Equal(t, DefaultMaxIterations, loop.config.MaxIterations)
	assert.Equal(t, DefaultAcceptanceThreshold, loop.config.AcceptanceThreshold)
}
