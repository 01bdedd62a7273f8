package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTaskServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *AgentCard) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, &AgentCard{Identifier: "test-agent", Endpoint: srv.URL}
}

func fastClient(maxRetries int) *Client {
	return NewClient(&ClientConfig{
		Timeout:     2 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
	})
}

func TestInvokeSuccess(t *testing.T) {
	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"payload": map[string]any{"answer": "42"},
		})
	})

	resp := fastClient(0).Invoke(t.Context(), card, &TaskRequest{Payload: Payload{"q": "life"}})
	if !resp.OK() {
		t.Fatalf("Invoke() failure = %v", resp.Failure)
	}
	if resp.TaskID == "" {
		t.Error("TaskID not assigned")
	}
	if resp.Payload["answer"] != "42" {
		t.Errorf("Payload[answer] = %v, want 42", resp.Payload["answer"])
	}
}

func TestInvokeKeepsCallerTaskID(t *testing.T) {
	var seen string
	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen = req.TaskID
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	resp := fastClient(0).Invoke(t.Context(), card, &TaskRequest{TaskID: "task-123"})
	if !resp.OK() {
		t.Fatalf("Invoke() failure = %v", resp.Failure)
	}
	if seen != "task-123" {
		t.Errorf("remote saw task ID %q, want %q", seen, "task-123")
	}
}

func TestInvokeRemoteError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"wire error reply", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "code": "bad_topic", "message": "topic unsupported",
			})
		}},
		{"client error status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "code": "bad_topic", "message": "topic unsupported",
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, card := newTaskServer(t, tt.handler)

			resp := fastClient(2).Invoke(t.Context(), card, &TaskRequest{})
			if resp.OK() {
				t.Fatal("Invoke() succeeded, want remote error")
			}
			if resp.Failure.Kind != InvocationRemoteError {
				t.Errorf("Kind = %q, want %q", resp.Failure.Kind, InvocationRemoteError)
			}
			if resp.Failure.Code != "bad_topic" {
				t.Errorf("Code = %q, want %q", resp.Failure.Code, "bad_topic")
			}
			if resp.Failure.Retryable() {
				t.Error("remote errors must not be retryable")
			}
		})
	}
}

func TestInvokeInvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"undecodable body", "<html>oops</html>"},
		{"unknown status", `{"status": "pending"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			resp := fastClient(2).Invoke(t.Context(), card, &TaskRequest{})
			if resp.OK() {
				t.Fatal("Invoke() succeeded, want invalid response")
			}
			if resp.Failure.Kind != InvocationInvalidResponse {
				t.Errorf("Kind = %q, want %q", resp.Failure.Kind, InvocationInvalidResponse)
			}
			if resp.Failure.Retryable() {
				t.Error("invalid responses must not be retryable")
			}
		})
	}
}

func TestInvokeRetriesTransientThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	var taskIDs []string

	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		taskIDs = append(taskIDs, req.TaskID)
		attempt := len(taskIDs)
		mu.Unlock()

		if attempt < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	resp := fastClient(2).Invoke(t.Context(), card, &TaskRequest{Payload: Payload{"topic": "graphs"}})
	if !resp.OK() {
		t.Fatalf("Invoke() failure = %v, want success within retry budget", resp.Failure)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(taskIDs) != 3 {
		t.Fatalf("remote saw %d attempts, want 3", len(taskIDs))
	}
	for i, id := range taskIDs {
		if id != taskIDs[0] {
			t.Errorf("attempt %d used task ID %q, want %q (same across retries)", i+1, id, taskIDs[0])
		}
	}
}

func TestInvokeTransportAfterRetryBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	})

	resp := fastClient(1).Invoke(t.Context(), card, &TaskRequest{})
	if resp.OK() {
		t.Fatal("Invoke() succeeded, want transport failure")
	}
	if resp.Failure.Kind != InvocationTransport {
		t.Errorf("Kind = %q, want %q", resp.Failure.Kind, InvocationTransport)
	}
	if !resp.Failure.Retryable() {
		t.Error("transport failures must be retryable")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("remote saw %d attempts, want 2 (1 + retry budget)", attempts)
	}
}

func TestInvokeTimeout(t *testing.T) {
	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	client := NewClient(&ClientConfig{
		Timeout:     20 * time.Millisecond,
		MaxRetries:  -1,
		BackoffBase: time.Millisecond,
	})

	resp := client.Invoke(t.Context(), card, &TaskRequest{})
	if resp.OK() {
		t.Fatal("Invoke() succeeded, want timeout")
	}
	if resp.Failure.Kind != InvocationTimeout {
		t.Errorf("Kind = %q, want %q", resp.Failure.Kind, InvocationTimeout)
	}
	if !resp.Failure.Retryable() {
		t.Error("timeouts must be retryable")
	}
}

func TestInvokeCancelled(t *testing.T) {
	_, card := newTaskServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	resp := fastClient(2).Invoke(ctx, card, &TaskRequest{})
	if resp.OK() {
		t.Fatal("Invoke() succeeded, want cancellation failure")
	}
	if resp.Failure.Kind != InvocationTransport {
		t.Errorf("Kind = %q, want %q", resp.Failure.Kind, InvocationTransport)
	}
	if !errors.Is(resp.Failure, context.Canceled) {
		t.Errorf("Failure = %v, want to wrap context.Canceled", resp.Failure)
	}
}
