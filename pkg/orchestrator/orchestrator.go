// Copyright 2025 The Coursewright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orchestrator composes the workflow primitives into the course
// creation pipeline: resolve the three remote agents, run the judge-gated
// research loop, then assemble the final content.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coursewright/coursewright/pkg/a2a"
	"github.com/coursewright/coursewright/pkg/observability"
	"github.com/coursewright/coursewright/pkg/workflow"
)

// Config contains configuration for a workflow run.
type Config struct {
	MaxLoopIterations   int
	AcceptanceThreshold float64
	PerCallTimeout      time.Duration
	// RetryCount is the transient-failure retry budget per remote call.
	// Zero means the default budget; use a negative value to disable retries.
	RetryCount int
	// ProceedOnExhaustion decides what happens when the loop hits its cap
	// without acceptance: assemble the best-effort artifact, or abort.
	ProceedOnExhaustion bool
}

// SetDefaults fills unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = workflow.DefaultMaxIterations
	}
	if c.AcceptanceThreshold <= 0 {
		c.AcceptanceThreshold = workflow.DefaultAcceptanceThreshold
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 60 * time.Second
	}
	if c.RetryCount == 0 {
		c.RetryCount = 2
	}
}

// Endpoints holds the base URLs of the three remote agents. They come from
// configuration so deployment topology stays out of the core.
type Endpoints struct {
	Researcher string
	Judge      string
	Builder    string
}

// Orchestrator owns the lifecycle of course creation runs. It is safe for
// concurrent runs: nothing mutable is shared between them.
type Orchestrator struct {
	config    Config
	endpoints Endpoints
	client    *a2a.Client
	logger    *slog.Logger
	metrics   *observability.Metrics
	sink      EventSink
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// New creates an orchestrator for the given agent endpoints.
func New(config Config, endpoints Endpoints, opts ...Option) *Orchestrator {
	config.SetDefaults()

	o := &Orchestrator{
		config:    config,
		endpoints: endpoints,
		client: a2a.NewClient(&a2a.ClientConfig{
			Timeout:    config.PerCallTimeout,
			MaxRetries: config.RetryCount,
		}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one course creation workflow for the topic. It never
// returns a Go error: every failure mode is folded into the result's
// outcome and diagnostics.
func (o *Orchestrator) Run(ctx context.Context, topic string) *workflow.Result {
	return o.run(ctx, topic, o.sink)
}

// RunWithSink runs the workflow with a per-run event sink, used by the
// HTTP server to stream progress. The constructor-level sink, if any, is
// not called for this run.
func (o *Orchestrator) RunWithSink(ctx context.Context, topic string, sink EventSink) *workflow.Result {
	return o.run(ctx, topic, sink)
}

func (o *Orchestrator) run(ctx context.Context, topic string, sink EventSink) *workflow.Result {
	start := time.Now()
	runID := uuid.New().String()
	logger := o.logger.With("runId", runID, "topic", topic)

	logger.Info("workflow run started")
	emit(sink, Event{Kind: EventRunStarted, RunID: runID, Topic: topic})

	cards, err := o.resolveAgents(ctx)
	if err != nil {
		logger.Error("agent resolution failed", "error", err)
		return o.failed(ctx, sink, runID, start, "resolution", err, nil, 0)
	}
	logger.Info("agents resolved",
		"researcher", cards.researcher.Identifier,
		"judge", cards.judge.Identifier,
		"builder", cards.builder.Identifier)
	emit(sink, Event{Kind: EventAgentsResolved, RunID: runID})

	researcher := NewResearcherAgent(o.client, cards.researcher)
	judge := NewJudgeAgent(o.client, cards.judge)
	builder := NewBuilderAgent(o.client, cards.builder)

	// Track loop progress so diagnostics can explain a mid-loop failure.
	var lastIteration int
	var lastVerdict *workflow.Verdict
	observer := o.loopObserver(runID, logger, sink)

	loop := workflow.NewLoop(
		func(ctx context.Context, feedback []string) (workflow.Artifact, error) {
			artifact, err := researcher.Produce(ctx, topic, feedback)
			if err != nil {
				return nil, workflow.NewStageError("research", err)
			}
			return artifact, nil
		},
		func(ctx context.Context, artifact workflow.Artifact) (*workflow.Verdict, error) {
			verdict, err := judge.Evaluate(ctx, artifact)
			if err != nil {
				return nil, workflow.NewStageError("evaluation", err)
			}
			return verdict, nil
		},
		workflow.LoopConfig{
			MaxIterations:       o.config.MaxLoopIterations,
			AcceptanceThreshold: o.config.AcceptanceThreshold,
			Observer: func(state workflow.LoopState) {
				lastIteration = state.Iteration
				if state.Verdict != nil {
					lastVerdict = state.Verdict
				}
				observer(state)
			},
		},
	)

	loopResult, err := loop.Run(ctx)
	if err != nil {
		logger.Error("refinement loop failed", "error", err)
		return o.failed(ctx, sink, runID, start, "refinement", err, lastVerdict, lastIteration)
	}

	o.metrics.RecordLoopIterations(ctx, loopResult.Iterations)
	if loopResult.Verdict != nil {
		o.metrics.RecordVerdictScore(ctx, loopResult.Verdict.Score)
	}

	if !loopResult.Accepted && !o.config.ProceedOnExhaustion {
		logger.Warn("loop exhausted, aborting per policy", "iterations", loopResult.Iterations)
		exhausted := &workflow.WorkflowError{Kind: workflow.WorkflowLoopExhausted}
		return o.failed(ctx, sink, runID, start, "refinement", exhausted, loopResult.Verdict, loopResult.Iterations)
	}

	assemblyInput, err := AggregateForAssembly(loopResult.Artifact, loopResult.Verdict)
	if err != nil {
		logger.Error("aggregation failed", "error", err)
		return o.failed(ctx, sink, runID, start, "aggregation", err, loopResult.Verdict, loopResult.Iterations)
	}

	emit(sink, Event{Kind: EventAssembling, RunID: runID, Iteration: loopResult.Iterations})

	runner := workflow.NewSequentialRunner(workflow.Stage{
		Name: "assembly",
		Run: func(ctx context.Context, input workflow.Artifact) (workflow.Artifact, error) {
			return builder.Assemble(ctx, input)
		},
	})
	content, err := runner.Run(ctx, assemblyInput)
	if err != nil {
		logger.Error("assembly failed", "error", err)
		return o.failed(ctx, sink, runID, start, "assembly", err, loopResult.Verdict, loopResult.Iterations)
	}

	result := FinalResult(content, loopResult, time.Since(start))
	o.metrics.RecordRun(ctx, string(result.Outcome), result.Diagnostics.Duration)
	logger.Info("workflow run finished",
		"outcome", result.Outcome,
		"iterations", loopResult.Iterations,
		"duration", result.Diagnostics.Duration)
	emit(sink, Event{Kind: EventRunFinished, RunID: runID, Outcome: result.Outcome, Iteration: loopResult.Iterations})
	return result
}

type agentCards struct {
	researcher *a2a.AgentCard
	judge      *a2a.AgentCard
	builder    *a2a.AgentCard
}

// resolveAgents fetches all three agent cards concurrently and fails fast
// if any resolution fails. A mid-loop resolution failure would discard
// accumulated loop progress, so everything is resolved up front. The
// resolver's memoization is scoped to this run.
func (o *Orchestrator) resolveAgents(ctx context.Context) (*agentCards, error) {
	resolver := a2a.NewResolver(o.config.PerCallTimeout)
	cards := &agentCards{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		card, err := resolver.Resolve(gctx, o.endpoints.Researcher)
		if err != nil {
			return err
		}
		cards.researcher = card
		return nil
	})
	g.Go(func() error {
		card, err := resolver.Resolve(gctx, o.endpoints.Judge)
		if err != nil {
			return err
		}
		cards.judge = card
		return nil
	})
	g.Go(func() error {
		card, err := resolver.Resolve(gctx, o.endpoints.Builder)
		if err != nil {
			return err
		}
		cards.builder = card
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cards, nil
}

func (o *Orchestrator) loopObserver(runID string, logger *slog.Logger, sink EventSink) func(workflow.LoopState) {
	return func(state workflow.LoopState) {
		event := Event{RunID: runID, Iteration: state.Iteration}
		switch state.Phase {
		case workflow.PhaseProducing:
			event.Kind = EventProducing
		case workflow.PhaseEvaluating:
			event.Kind = EventEvaluating
		case workflow.PhaseRetrying:
			event.Kind = EventRetrying
			event.Score = state.Verdict.Score
			event.Feedback = state.Verdict.Feedback
			logger.Info("artifact rejected, retrying",
				"iteration", state.Iteration, "score", state.Verdict.Score)
		case workflow.PhaseAccepted:
			event.Kind = EventAccepted
			event.Score = state.Verdict.Score
			logger.Info("artifact accepted",
				"iteration", state.Iteration, "score", state.Verdict.Score)
		case workflow.PhaseExhausted:
			event.Kind = EventExhausted
			if state.Verdict != nil {
				event.Score = state.Verdict.Score
			}
			logger.Warn("refinement loop exhausted", "iterations", state.Iteration)
		default:
			return
		}
		emit(sink, event)
	}
}

// failed folds any error into a terminal Failed result. Cancellation takes
// precedence over the stage classification.
func (o *Orchestrator) failed(ctx context.Context, sink EventSink, runID string, start time.Time, stage string, err error, lastVerdict *workflow.Verdict, iterations int) *workflow.Result {
	cancelled := errors.Is(err, context.Canceled)

	var wfErr *workflow.WorkflowError
	switch {
	case cancelled:
		wfErr = &workflow.WorkflowError{Kind: workflow.WorkflowCancelled, Stage: stage, Err: err}
	case errors.As(err, &wfErr):
		if wfErr.Stage != "" {
			stage = wfErr.Stage
		}
	default:
		wfErr = workflow.NewStageError(stage, err)
	}

	result := &workflow.Result{
		Outcome: workflow.OutcomeFailed,
		Diagnostics: workflow.Diagnostics{
			FailedStage: stage,
			Iterations:  iterations,
			LastVerdict: lastVerdict,
			Cancelled:   cancelled,
			Error:       wfErr,
			Duration:    time.Since(start),
		},
	}
	o.metrics.RecordRun(ctx, string(result.Outcome), result.Diagnostics.Duration)
	emit(sink, Event{Kind: EventRunFinished, RunID: runID, Outcome: workflow.OutcomeFailed, Message: wfErr.Error()})
	return result
}

func emit(sink EventSink, event Event) {
	if sink == nil {
		return
	}
	event.Timestamp = time.Now()
	sink(event)
}
