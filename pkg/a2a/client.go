package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coursewright/coursewright/pkg/httpclient"
)

// ============================================================================
// A2A CLIENT - Task invocation against a resolved agent card
// ============================================================================

// ClientConfig contains configuration for the A2A client.
type ClientConfig struct {
	// Timeout bounds each attempt, not the whole invocation.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for transient failures.
	MaxRetries int
	// BackoffBase is the delay before the first retry; it doubles per retry.
	BackoffBase time.Duration
}

// Client invokes tasks on remote agents. Invoke never returns a Go error:
// every failure mode is normalized into the response's Failure field, so
// callers branch on one shape.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new A2A task client.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	backoff := cfg.BackoffBase
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(retries),
			httpclient.WithBaseDelay(backoff),
		),
	}
}

// Invoke sends the task request to the card's endpoint. The request's task
// ID is assigned here if empty and is reused verbatim across retries; the
// marshaled body is replayed byte-identical on every attempt.
func (c *Client) Invoke(ctx context.Context, card *AgentCard, req *TaskRequest) *TaskResponse {
	if req.TaskID == "" {
		req.TaskID = uuid.New().String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return c.failure(card, req.TaskID, InvocationInvalidResponse, "failed to encode task request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, card.Endpoint, bytes.NewReader(body))
	if err != nil {
		return c.failure(card, req.TaskID, InvocationTransport, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.classifyTransportFailure(card, req.TaskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Deterministic remote rejection; decode the error body if the agent
		// sent one.
		var wire wireResponse
		_ = json.NewDecoder(resp.Body).Decode(&wire)
		msg := wire.Message
		if msg == "" {
			msg = resp.Status
		}
		return &TaskResponse{
			TaskID: req.TaskID,
			Failure: &InvocationError{
				Kind:    InvocationRemoteError,
				Agent:   card.Identifier,
				TaskID:  req.TaskID,
				Code:    wire.Code,
				Message: msg,
			},
		}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return c.failure(card, req.TaskID, InvocationInvalidResponse, "failed to decode task response", err)
	}

	switch wire.Status {
	case wireStatusSuccess:
		return &TaskResponse{TaskID: req.TaskID, Payload: wire.Payload}
	case wireStatusError:
		return &TaskResponse{
			TaskID: req.TaskID,
			Failure: &InvocationError{
				Kind:    InvocationRemoteError,
				Agent:   card.Identifier,
				TaskID:  req.TaskID,
				Code:    wire.Code,
				Message: wire.Message,
			},
		}
	default:
		return c.failure(card, req.TaskID, InvocationInvalidResponse,
			fmt.Sprintf("unknown response status %q", wire.Status), nil)
	}
}

// classifyTransportFailure maps a post-retry transport error onto an
// invocation kind.
func (c *Client) classifyTransportFailure(card *AgentCard, taskID string, err error) *TaskResponse {
	switch {
	case httpclient.IsTimeout(err):
		return c.failure(card, taskID, InvocationTimeout, "task invocation timed out", err)
	case errors.Is(err, context.Canceled):
		return c.failure(card, taskID, InvocationTransport, "task invocation cancelled", err)
	default:
		return c.failure(card, taskID, InvocationTransport, "task invocation failed", err)
	}
}

func (c *Client) failure(card *AgentCard, taskID string, kind InvocationKind, msg string, err error) *TaskResponse {
	return &TaskResponse{
		TaskID: taskID,
		Failure: &InvocationError{
			Kind:    kind,
			Agent:   card.Identifier,
			TaskID:  taskID,
			Message: msg,
			Err:     err,
		},
	}
}
