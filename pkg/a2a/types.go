// Package a2a implements the agent-to-agent protocol spoken by coursewright:
// descriptor discovery at a well-known path, and a single task-invocation
// exchange against the endpoint the descriptor advertises.
package a2a

// WellKnownCardPath is the fixed suffix appended to an agent base URL to
// locate its card.
const WellKnownCardPath = "/.well-known/agent-card.json"

// ============================================================================
// AGENT CARD - Agent Discovery & Capability Advertisement
// ============================================================================

// AgentCard is a remote agent's descriptor. Immutable once resolved; the
// resolver caches it for the lifetime of a workflow run.
type AgentCard struct {
	Identifier   string   `json:"identifier"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version,omitempty"`
}

// HasCapability reports whether the card declares the given capability tag.
func (c *AgentCard) HasCapability(tag string) bool {
	for _, cap := range c.Capabilities {
		if cap == tag {
			return true
		}
	}
	return false
}

// ============================================================================
// TASK - Unit of Work
// ============================================================================

// Payload is opaque structured content exchanged with agents.
type Payload map[string]any

// TaskRequest is one task invocation. The task ID is unique per invocation
// and reused verbatim across retries of the same invocation, so the remote
// side can deduplicate if it chooses.
type TaskRequest struct {
	TaskID       string   `json:"taskId"`
	Payload      Payload  `json:"payload"`
	PriorContext []string `json:"priorContext,omitempty"`
}

// TaskResponse is polymorphic over success and failure. Exactly one of
// Payload (success) or Failure is set.
type TaskResponse struct {
	TaskID  string
	Payload Payload
	Failure *InvocationError
}

// OK reports whether the invocation succeeded.
func (r *TaskResponse) OK() bool {
	return r.Failure == nil
}

// wireResponse is the JSON shape agents reply with.
type wireResponse struct {
	Status  string  `json:"status"`
	Payload Payload `json:"payload,omitempty"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message,omitempty"`
}

const (
	wireStatusSuccess = "success"
	wireStatusError   = "error"
)
