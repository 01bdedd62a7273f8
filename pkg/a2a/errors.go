package a2a

import "fmt"

// ============================================================================
// RESOLUTION ERRORS - Agent card discovery failures
// ============================================================================

// ResolutionKind classifies why a descriptor could not be resolved.
type ResolutionKind string

const (
	// ResolutionUnreachable means the agent base URL could not be reached.
	ResolutionUnreachable ResolutionKind = "unreachable"
	// ResolutionMalformed means the agent answered, but not with a usable card.
	ResolutionMalformed ResolutionKind = "malformed"
)

// ResolutionError reports a failed agent card resolution.
type ResolutionError struct {
	Kind    ResolutionKind
	BaseURL string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving agent card at %s: %s: %v", e.BaseURL, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolving agent card at %s: %s", e.BaseURL, e.Kind)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ============================================================================
// INVOCATION ERRORS - Task execution failures
// ============================================================================

// InvocationKind classifies a failed task invocation.
type InvocationKind string

const (
	InvocationTimeout         InvocationKind = "timeout"
	InvocationTransport       InvocationKind = "transport"
	InvocationRemoteError     InvocationKind = "remote_error"
	InvocationInvalidResponse InvocationKind = "invalid_response"
)

// InvocationError is the failure half of a TaskResponse. Timeout and
// Transport indicate transient conditions and are retried by the client;
// RemoteError and InvalidResponse are deterministic rejections and are not.
type InvocationError struct {
	Kind    InvocationKind
	Agent   string
	TaskID  string
	Code    string // remote error code, set when Kind is RemoteError
	Message string
	Err     error
}

func (e *InvocationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("invoking agent %s: %s (%s): %s", e.Agent, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("invoking agent %s: %s: %s", e.Agent, e.Kind, msg)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *InvocationError) Retryable() bool {
	return e.Kind == InvocationTimeout || e.Kind == InvocationTransport
}
