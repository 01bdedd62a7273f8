// Package httpclient provides an HTTP client with bounded retries and
// exponential backoff for transient failures. Non-transient responses are
// returned to the caller untouched.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	TransientRetry
)

// RetryStrategyFunc classifies a response status code.
type RetryStrategyFunc func(statusCode int) RetryStrategy

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	strategyFunc RetryStrategyFunc
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   2,
		baseDelay:    500 * time.Millisecond,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// DefaultRetryStrategy retries server-side and throttling statuses only.
// Client errors are deterministic rejections; retrying them wastes budget.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return TransientRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying transient failures up to maxRetries
// times. Requests with a body must set GetBody so the body can be replayed
// on retry; http.NewRequest does this for common body types.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
				}
				req.Body = body
			}
			time.Sleep(c.delayFor(attempt - 1))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Cancellation is a caller decision, never retried.
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastResp, lastErr = nil, err
			continue
		}

		if c.strategyFunc(resp.StatusCode) == NoRetry {
			return resp, nil
		}

		// Transient status. Close so the connection can be reused.
		resp.Body.Close()
		lastResp, lastErr = resp, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	statusCode := 0
	if lastResp != nil {
		statusCode = lastResp.StatusCode
	}
	return lastResp, &RetryableError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		Err:        lastErr,
	}
}

func (c *Client) delayFor(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
}

// IsTimeout reports whether err represents a timed-out attempt.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
