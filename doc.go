// Package coursewright orchestrates course creation across remote A2A
// agents: a researcher produces a course outline, a judge scores it in a
// bounded refinement loop, and a content builder assembles the accepted
// outline into final course material.
//
// # Quick Start
//
// Install coursewright:
//
//	go install github.com/coursewright/coursewright/cmd/coursewright@latest
//
// Point it at your agents:
//
//	agents:
//	  researcher: http://localhost:8001
//	  judge: http://localhost:8002
//	  builder: http://localhost:8003
//
//	workflow:
//	  max_iterations: 3
//	  acceptance_threshold: 0.8
//
// Run a workflow or start the HTTP server:
//
//	coursewright run "Intro to Graph Theory" --config coursewright.yaml
//	coursewright serve --config coursewright.yaml
//
// # Using as a Go Library
//
// Import the packages you need:
//
//	import (
//	    "github.com/coursewright/coursewright/pkg/orchestrator"
//	    "github.com/coursewright/coursewright/pkg/a2a"
//	    "github.com/coursewright/coursewright/pkg/workflow"
//	)
//
// # Architecture
//
// Each remote agent advertises an agent card at a well-known path. The
// orchestrator resolves all three cards up front, then drives the
// produce/evaluate loop with cumulative judge feedback, and finally hands
// the judged artifact to the builder. Every run terminates with a
// workflow.Result whose outcome is Completed, Exhausted, or Failed.
package coursewright
