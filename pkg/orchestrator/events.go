package orchestrator

import (
	"time"

	"github.com/coursewright/coursewright/pkg/workflow"
)

// ============================================================================
// RUN EVENTS - Progress stream for observers (CLI spinner, HTTP streaming)
// ============================================================================

// EventKind names a point in a run's lifecycle.
type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventAgentsResolved EventKind = "agents_resolved"
	EventProducing      EventKind = "producing"
	EventEvaluating     EventKind = "evaluating"
	EventRetrying       EventKind = "retrying"
	EventAccepted       EventKind = "accepted"
	EventExhausted      EventKind = "exhausted"
	EventAssembling     EventKind = "assembling"
	EventRunFinished    EventKind = "run_finished"
)

// Event is a single progress notification. Fields beyond Kind, RunID and
// Timestamp are populated when they apply.
type Event struct {
	Kind      EventKind        `json:"kind"`
	RunID     string           `json:"runId"`
	Topic     string           `json:"topic,omitempty"`
	Iteration int              `json:"iteration,omitempty"`
	Score     float64          `json:"score,omitempty"`
	Feedback  string           `json:"feedback,omitempty"`
	Outcome   workflow.Outcome `json:"outcome,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventSink receives run events. Sinks are called synchronously from the
// run's goroutine; slow sinks slow the run.
type EventSink func(Event)
