package orchestrator

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursewright/coursewright/pkg/a2a"
	"github.com/coursewright/coursewright/pkg/testutils"
	"github.com/coursewright/coursewright/pkg/workflow"
)

func fastConfig() Config {
	return Config{
		MaxLoopIterations:   3,
		AcceptanceThreshold: 0.8,
		PerCallTimeout:      2 * time.Second,
		RetryCount:          -1,
		ProceedOnExhaustion: true,
	}
}

func endpointsFor(researcher, judge, builder *testutils.FakeAgent) Endpoints {
	return Endpoints{
		Researcher: researcher.URL(),
		Judge:      judge.URL(),
		Builder:    builder.URL(),
	}
}

func TestRunCompletedAfterRefinement(t *testing.T) {
	var version atomic.Int32
	researcher := testutils.NewFakeAgent("researcher", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		testutils.WriteSuccess(w, map[string]any{"version": version.Add(1)})
	})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(
		workflow.Verdict{Accepted: false, Score: 0.4, Feedback: "add exercises"},
		workflow.Verdict{Accepted: false, Score: 0.6, Feedback: "deeper coverage of trees"},
		workflow.Verdict{Accepted: false, Score: 0.85},
	)
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	var events []Event
	orch := New(fastConfig(), endpointsFor(researcher, judge, builder))
	result := orch.RunWithSink(t.Context(), "Intro to Graph Theory", func(e Event) {
		events = append(events, e)
	})

	require.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, 3, result.Diagnostics.Iterations)
	require.NotNil(t, result.Diagnostics.LastVerdict)
	assert.InDelta(t, 0.85, result.Diagnostics.LastVerdict.Score, 1e-9)

	assert.Equal(t, 3, researcher.Invocations())
	assert.Equal(t, 3, judge.Invocations())
	require.Equal(t, 1, builder.Invocations())

	// Third produce call carries the full feedback history in order.
	requests := researcher.Requests()
	require.Len(t, requests, 3)
	assert.Empty(t, requests[0].PriorContext)
	assert.Equal(t, []string{"add exercises"}, requests[1].PriorContext)
	assert.Equal(t, []string{"add exercises", "deeper coverage of trees"}, requests[2].PriorContext)
	assert.Equal(t, "Intro to Graph Theory", requests[2].Payload["topic"])

	// Assembly received the iteration-3 artifact plus the verdict.
	builderReq := builder.Requests()[0]
	research, ok := builderReq.Payload["research"].(map[string]any)
	require.True(t, ok, "assembly input missing research artifact")
	assert.Equal(t, float64(3), research["version"])
	verdict, ok := builderReq.Payload["verdict"].(map[string]any)
	require.True(t, ok, "assembly input missing verdict")
	assert.InDelta(t, 0.85, verdict["score"], 1e-9)

	require.NotNil(t, result.Content)
	assert.Equal(t, true, result.Content["assembled"])

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{
		EventRunStarted, EventAgentsResolved,
		EventProducing, EventEvaluating, EventRetrying,
		EventProducing, EventEvaluating, EventRetrying,
		EventProducing, EventEvaluating, EventAccepted,
		EventAssembling, EventRunFinished,
	}, kinds)
}

func TestRunFailsFastOnResolutionFailure(t *testing.T) {
	researcher := testutils.StaticResearcher(map[string]any{"outline": "x"})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(workflow.Verdict{Accepted: true, Score: 1})
	judge.CardStatus = http.StatusInternalServerError
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	orch := New(fastConfig(), endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.Equal(t, "resolution", result.Diagnostics.FailedStage)
	assert.Nil(t, result.Content)

	var resErr *a2a.ResolutionError
	require.ErrorAs(t, result.Diagnostics.Error, &resErr)
	assert.Equal(t, a2a.ResolutionMalformed, resErr.Kind)

	// Fail-fast: no task invocation reached any agent.
	assert.Equal(t, 0, researcher.Invocations())
	assert.Equal(t, 0, judge.Invocations())
	assert.Equal(t, 0, builder.Invocations())
}

func TestRunCancelledMidLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	researcher := testutils.StaticResearcher(map[string]any{"outline": "x"})
	defer researcher.Close()

	judge := testutils.NewFakeAgent("judge", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		cancel()
		testutils.WriteSuccess(w, map[string]any{"accepted": false, "score": 0.1, "feedback": "redo"})
	})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	orch := New(fastConfig(), endpointsFor(researcher, judge, builder))
	result := orch.Run(ctx, "topic")

	require.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.True(t, result.Diagnostics.Cancelled)

	var wfErr *workflow.WorkflowError
	require.ErrorAs(t, result.Diagnostics.Error, &wfErr)
	assert.Equal(t, workflow.WorkflowCancelled, wfErr.Kind)

	// Assembly never runs on a cancelled run.
	assert.Equal(t, 0, builder.Invocations())
}

func TestRunExhaustedProceedsWithBestEffort(t *testing.T) {
	researcher := testutils.StaticResearcher(map[string]any{"outline": "thin"})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(workflow.Verdict{Accepted: false, Score: 0.2, Feedback: "not enough"})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	orch := New(fastConfig(), endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeExhausted, result.Outcome)
	assert.Equal(t, 3, result.Diagnostics.Iterations)
	require.NotNil(t, result.Content)
	assert.Equal(t, 1, builder.Invocations())
	assert.Equal(t, 3, researcher.Invocations())
}

func TestRunExhaustedAbortsPerPolicy(t *testing.T) {
	researcher := testutils.StaticResearcher(map[string]any{"outline": "thin"})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(workflow.Verdict{Accepted: false, Score: 0.2, Feedback: "not enough"})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	cfg := fastConfig()
	cfg.ProceedOnExhaustion = false
	orch := New(cfg, endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.Nil(t, result.Content)
	assert.Equal(t, 3, result.Diagnostics.Iterations)
	require.NotNil(t, result.Diagnostics.LastVerdict)
	assert.InDelta(t, 0.2, result.Diagnostics.LastVerdict.Score, 1e-9)

	var wfErr *workflow.WorkflowError
	require.ErrorAs(t, result.Diagnostics.Error, &wfErr)
	assert.Equal(t, workflow.WorkflowLoopExhausted, wfErr.Kind)

	assert.Equal(t, 0, builder.Invocations())
}

func TestRunTransientFailureWithinBudgetIsInvisible(t *testing.T) {
	var calls atomic.Int32
	researcher := testutils.NewFakeAgent("researcher", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		testutils.WriteSuccess(w, map[string]any{"outline": "solid"})
	})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(workflow.Verdict{Accepted: true, Score: 0.9})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	cfg := fastConfig()
	cfg.RetryCount = 2
	orch := New(cfg, endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, 1, result.Diagnostics.Iterations)
}

func TestRunTimeoutSurfacesAsStageFailure(t *testing.T) {
	researcher := testutils.NewFakeAgent("researcher", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		time.Sleep(500 * time.Millisecond)
		testutils.WriteSuccess(w, map[string]any{"outline": "late"})
	})
	defer researcher.Close()

	judge := testutils.ScriptedJudge(workflow.Verdict{Accepted: true, Score: 1})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	cfg := fastConfig()
	cfg.PerCallTimeout = 50 * time.Millisecond
	orch := New(cfg, endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.Equal(t, "research", result.Diagnostics.FailedStage)
	assert.False(t, result.Diagnostics.Cancelled)

	var wfErr *workflow.WorkflowError
	require.ErrorAs(t, result.Diagnostics.Error, &wfErr)
	assert.Equal(t, workflow.WorkflowStageFailed, wfErr.Kind)

	var invErr *a2a.InvocationError
	require.ErrorAs(t, result.Diagnostics.Error, &invErr)
	assert.Equal(t, a2a.InvocationTimeout, invErr.Kind)

	assert.Equal(t, 0, builder.Invocations())
}

func TestRunInvalidVerdictFailsEvaluation(t *testing.T) {
	researcher := testutils.StaticResearcher(map[string]any{"outline": "x"})
	defer researcher.Close()

	judge := testutils.NewFakeAgent("judge", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		testutils.WriteSuccess(w, map[string]any{"verdictish": "yes"})
	})
	defer judge.Close()

	builder := testutils.EchoBuilder()
	defer builder.Close()

	orch := New(fastConfig(), endpointsFor(researcher, judge, builder))
	result := orch.Run(t.Context(), "topic")

	require.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.Equal(t, "evaluation", result.Diagnostics.FailedStage)

	var invErr *a2a.InvocationError
	require.ErrorAs(t, result.Diagnostics.Error, &invErr)
	assert.Equal(t, a2a.InvocationInvalidResponse, invErr.Kind)
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	assert.Equal(t, workflow.DefaultMaxIterations, cfg.MaxLoopIterations)
	assert.InDelta(t, workflow.DefaultAcceptanceThreshold, cfg.AcceptanceThreshold, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.PerCallTimeout)
	assert.Equal(t, 2, cfg.RetryCount)
}
