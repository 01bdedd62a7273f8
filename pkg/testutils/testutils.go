// Package testutils provides in-process fake remote agents. Each fake
// serves an agent card at the well-known path and a task endpoint, backed
// by httptest, so workflow tests exercise the real HTTP stack.
package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/coursewright/coursewright/pkg/a2a"
	"github.com/coursewright/coursewright/pkg/workflow"
)

// TaskHandlerFunc handles one decoded task invocation. Implementations
// write the wire reply themselves, so tests can produce success replies,
// remote errors, transient statuses, or garbage.
type TaskHandlerFunc func(w http.ResponseWriter, req *a2a.TaskRequest)

// FakeAgent is an httptest-backed remote agent.
type FakeAgent struct {
	Server *httptest.Server

	// CardStatus, when non-zero, is served instead of a card document.
	CardStatus int
	// CardJSON, when set, replaces the generated card document.
	CardJSON []byte

	identifier string
	handler    TaskHandlerFunc

	mu       sync.Mutex
	cardHits int
	requests []a2a.TaskRequest
}

// NewFakeAgent starts a fake agent with the given identifier and task
// handler. Close it when done.
func NewFakeAgent(identifier string, handler TaskHandlerFunc) *FakeAgent {
	a := &FakeAgent{identifier: identifier, handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+a2a.WellKnownCardPath, a.serveCard)
	mux.HandleFunc("POST /task", a.serveTask)
	a.Server = httptest.NewServer(mux)
	return a
}

func (a *FakeAgent) URL() string {
	return a.Server.URL
}

func (a *FakeAgent) Close() {
	a.Server.Close()
}

// CardHits reports how many times the well-known path was fetched.
func (a *FakeAgent) CardHits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cardHits
}

// Invocations reports how many task requests reached the agent.
func (a *FakeAgent) Invocations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Requests returns a copy of every task request received, in order.
func (a *FakeAgent) Requests() []a2a.TaskRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]a2a.TaskRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

func (a *FakeAgent) serveCard(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.cardHits++
	a.mu.Unlock()

	if a.CardStatus != 0 {
		w.WriteHeader(a.CardStatus)
		return
	}
	if a.CardJSON != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(a.CardJSON)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a2a.AgentCard{
		Identifier:   a.identifier,
		Endpoint:     a.Server.URL + "/task",
		Capabilities: []string{a.identifier},
	})
}

func (a *FakeAgent) serveTask(w http.ResponseWriter, r *http.Request) {
	var req a2a.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	a.handler(w, &req)
}

// WriteSuccess writes a wire-level success reply.
func WriteSuccess(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "success",
		"payload": payload,
	})
}

// WriteAgentError writes a wire-level error reply with HTTP 200.
func WriteAgentError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}

// StaticResearcher answers every task with the same payload.
func StaticResearcher(payload map[string]any) *FakeAgent {
	return NewFakeAgent("researcher", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		WriteSuccess(w, payload)
	})
}

// ScriptedJudge replies with the given verdicts in invocation order,
// repeating the last one if invoked again.
func ScriptedJudge(verdicts ...workflow.Verdict) *FakeAgent {
	var mu sync.Mutex
	var calls int
	return NewFakeAgent("judge", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		mu.Lock()
		idx := calls
		if idx >= len(verdicts) {
			idx = len(verdicts) - 1
		}
		calls++
		verdict := verdicts[idx]
		mu.Unlock()

		WriteSuccess(w, map[string]any{
			"accepted": verdict.Accepted,
			"score":    verdict.Score,
			"feedback": verdict.Feedback,
		})
	})
}

// EchoBuilder answers with a payload wrapping whatever it received.
func EchoBuilder() *FakeAgent {
	return NewFakeAgent("builder", func(w http.ResponseWriter, req *a2a.TaskRequest) {
		WriteSuccess(w, map[string]any{
			"assembled": true,
			"input":     map[string]any(req.Payload),
		})
	})
}
