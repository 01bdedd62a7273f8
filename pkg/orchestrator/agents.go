package orchestrator

import (
	"context"
	"fmt"

	"github.com/coursewright/coursewright/pkg/a2a"
	"github.com/coursewright/coursewright/pkg/workflow"
)

// ============================================================================
// TYPED AGENT WRAPPERS - One per remote role
// ============================================================================
//
// Each wrapper binds a resolved card to the task client and exposes the
// role's operation with domain types instead of raw payloads.

// ResearcherAgent produces candidate course outlines for a topic.
type ResearcherAgent struct {
	client *a2a.Client
	card   *a2a.AgentCard
}

func NewResearcherAgent(client *a2a.Client, card *a2a.AgentCard) *ResearcherAgent {
	return &ResearcherAgent{client: client, card: card}
}

// Produce asks the researcher for an artifact. The feedback history from
// prior rejected attempts rides along as prior context so the agent can
// address earlier criticisms.
func (r *ResearcherAgent) Produce(ctx context.Context, topic string, feedback []string) (workflow.Artifact, error) {
	resp := r.client.Invoke(ctx, r.card, &a2a.TaskRequest{
		Payload:      a2a.Payload{"topic": topic},
		PriorContext: feedback,
	})
	if !resp.OK() {
		return nil, resp.Failure
	}
	return workflow.Artifact(resp.Payload), nil
}

// JudgeAgent evaluates artifacts and returns verdicts.
type JudgeAgent struct {
	client *a2a.Client
	card   *a2a.AgentCard
}

func NewJudgeAgent(client *a2a.Client, card *a2a.AgentCard) *JudgeAgent {
	return &JudgeAgent{client: client, card: card}
}

// Evaluate submits the artifact for judgment. A reply that does not carry a
// parseable verdict is an invalid response, not a rejection.
func (j *JudgeAgent) Evaluate(ctx context.Context, artifact workflow.Artifact) (*workflow.Verdict, error) {
	resp := j.client.Invoke(ctx, j.card, &a2a.TaskRequest{
		Payload: a2a.Payload{"artifact": map[string]any(artifact)},
	})
	if !resp.OK() {
		return nil, resp.Failure
	}

	verdict, err := parseVerdict(resp.Payload)
	if err != nil {
		return nil, &a2a.InvocationError{
			Kind:    a2a.InvocationInvalidResponse,
			Agent:   j.card.Identifier,
			TaskID:  resp.TaskID,
			Message: "judge reply does not carry a verdict",
			Err:     err,
		}
	}
	return verdict, nil
}

func parseVerdict(payload a2a.Payload) (*workflow.Verdict, error) {
	accepted, ok := payload["accepted"].(bool)
	if !ok {
		return nil, fmt.Errorf("missing or non-boolean %q field", "accepted")
	}

	verdict := &workflow.Verdict{Accepted: accepted}

	if raw, present := payload["score"]; present {
		score, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("non-numeric %q field", "score")
		}
		verdict.Score = score
	}
	if raw, present := payload["feedback"]; present {
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("non-string %q field", "feedback")
		}
		verdict.Feedback = text
	}
	return verdict, nil
}

// BuilderAgent assembles judged research into final course content.
type BuilderAgent struct {
	client *a2a.Client
	card   *a2a.AgentCard
}

func NewBuilderAgent(client *a2a.Client, card *a2a.AgentCard) *BuilderAgent {
	return &BuilderAgent{client: client, card: card}
}

func (b *BuilderAgent) Assemble(ctx context.Context, input workflow.Artifact) (workflow.Artifact, error) {
	resp := b.client.Invoke(ctx, b.card, &a2a.TaskRequest{
		Payload: a2a.Payload(input),
	})
	if !resp.OK() {
		return nil, resp.Failure
	}
	return workflow.Artifact(resp.Payload), nil
}
