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

// Package server exposes the course creation workflow over HTTP.
//
// POST /api/course streams run progress as newline-delimited JSON and
// finishes with the terminal result; POST /api/course/sync blocks and
// returns the result alone.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coursewright/coursewright/pkg/config"
	"github.com/coursewright/coursewright/pkg/observability"
	"github.com/coursewright/coursewright/pkg/orchestrator"
	"github.com/coursewright/coursewright/pkg/workflow"
)

// Runner is the orchestrator surface the server needs.
type Runner interface {
	Run(ctx context.Context, topic string) *workflow.Result
	RunWithSink(ctx context.Context, topic string, sink orchestrator.EventSink) *workflow.Result
}

// Server serves the workflow API.
type Server struct {
	runner  Runner
	logger  *slog.Logger
	metrics *observability.Metrics
	http    *http.Server
}

// New creates the server and mounts its routes.
func New(cfg *config.ServerConfig, runner Runner, logger *slog.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", metrics.Handler())
	router.Post("/api/course", s.handleCourseStream)
	router.Post("/api/course/sync", s.handleCourseSync)
	router.Post("/feedback", s.handleFeedback)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type courseRequest struct {
	Topic string `json:"topic"`
}

type feedbackRequest struct {
	RunID string  `json:"runId"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCourseSync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCourseRequest(w, r)
	if !ok {
		return
	}

	result := s.runner.Run(r.Context(), req.Topic)
	writeJSON(w, http.StatusOK, resultPayload(result))
}

// handleCourseStream runs the workflow while streaming progress events as
// ndjson. The last line is always the terminal result.
func (s *Server) handleCourseStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCourseRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		// No streaming support; degrade to the sync behavior.
		result := s.runner.Run(r.Context(), req.Topic)
		writeJSON(w, http.StatusOK, resultPayload(result))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	// Events arrive synchronously on this goroutine, so the encoder needs
	// no locking.
	sink := func(event orchestrator.Event) {
		_ = enc.Encode(streamLine{Type: lineProgress, Event: &event})
		flusher.Flush()
	}

	result := s.runner.RunWithSink(r.Context(), req.Topic, sink)
	terminal := streamLine{Type: lineResult, Result: resultPayload(result)}
	if result.Outcome == workflow.OutcomeFailed {
		terminal.Type = lineError
	}
	_ = enc.Encode(terminal)
	flusher.Flush()
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Score < 0 || req.Score > 1 {
		writeError(w, http.StatusBadRequest, "score must be in 0..1")
		return
	}

	s.logger.Info("user feedback received", "runId", req.RunID, "score", req.Score, "text", req.Text)
	s.metrics.RecordUserFeedback(r.Context(), req.Score)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) decodeCourseRequest(w http.ResponseWriter, r *http.Request) (*courseRequest, bool) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return nil, false
	}
	return &req, true
}

// Stream line types. Every run emits zero or more progress lines and ends
// with exactly one result or error line.
const (
	lineProgress = "progress"
	lineResult   = "result"
	lineError    = "error"
)

type streamLine struct {
	Type   string              `json:"type"`
	Event  *orchestrator.Event `json:"event,omitempty"`
	Result map[string]any      `json:"result,omitempty"`
}

// resultPayload shapes a workflow result for the wire. Diagnostics expose
// the failing stage and error text, never raw agent payloads.
func resultPayload(result *workflow.Result) map[string]any {
	diag := map[string]any{
		"iterations": result.Diagnostics.Iterations,
		"cancelled":  result.Diagnostics.Cancelled,
		"durationMs": result.Diagnostics.Duration.Milliseconds(),
	}
	if result.Diagnostics.FailedStage != "" {
		diag["failedStage"] = result.Diagnostics.FailedStage
	}
	if result.Diagnostics.Error != nil {
		diag["error"] = result.Diagnostics.Error.Error()
	}
	if v := result.Diagnostics.LastVerdict; v != nil {
		diag["lastVerdict"] = map[string]any{
			"accepted": v.Accepted,
			"score":    v.Score,
			"feedback": v.Feedback,
		}
	}

	payload := map[string]any{
		"outcome":     result.Outcome,
		"diagnostics": diag,
	}
	if result.Content != nil {
		payload["content"] = map[string]any(result.Content)
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
