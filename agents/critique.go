package agents

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
	"github.com/adalundhe/metapersona/core/workflow"
)

// CritiqueAgent evaluates outputs against the reflection rubric and renders
// the verdict as actionable critique text.
type CritiqueAgent struct {
	*base
	reflection *workflow.ReflectionEngine
}

// NewCritiqueAgent creates and attaches a critique agent.
func NewCritiqueAgent(cfg Config) *CritiqueAgent {
	a := &CritiqueAgent{
		base: newBase(cfg, "critique_agent", "critique",
			"Evaluates outputs for clarity, accuracy, completeness, and alignment",
			[]agent.Capability{
				{Name: "output_evaluation", Description: "Score outputs on the quality rubric", Confidence: 0.9,
					Examples: []string{"critique", "review", "evaluate", "assess"}},
				{Name: "feedback", Description: "Produce actionable revision feedback", Confidence: 0.85,
					Examples: []string{"feedback", "score", "rate"}},
			}),
	}
	a.reflection = workflow.NewReflectionEngine(cfg.Provider, a.logger)
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores critique fitness.
func (a *CritiqueAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "critique", "review", "evaluate", "assess", "score", "rate", "feedback") {
		return 0.9
	}
	if containsAny(lowered, "improve", "revise", "check") {
		return 0.6
	}
	return 0.3
}

// HandleTask evaluates the given text and reports the verdict.
func (a *CritiqueAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	eval := a.reflection.EvaluateResponse(ctx, task, a.sch)
	result := agent.Success(a.id, renderEvaluation(eval))
	result.Metadata = map[string]any{"agent_role": a.role, "evaluation": eval}
	return result, nil
}

func (a *CritiqueAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case messaging.IntentCritiqueRequest, messaging.IntentRequest, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	output, ok := msg.PayloadString("output", "task", "input")
	if !ok {
		return a.errorReply(msg, "missing output to critique")
	}

	eval := a.reflection.EvaluateResponse(ctx, output, a.sch)
	if a.board != nil {
		a.board.Write(critiqueKey(output), eval, a.id, map[string]any{"source_agent": a.id})
	}
	return msg.Reply("critique_response", map[string]any{
		"critique":   renderEvaluation(eval),
		"evaluation": eval,
		"handled_by": a.id,
	})
}

// renderEvaluation turns the rubric scores into critique text other agents
// can act on.
func renderEvaluation(eval workflow.Evaluation) string {
	verdict := "No refinement needed."
	if eval.NeedsRefinement {
		verdict = "Refinement needed."
	}
	return fmt.Sprintf("Clarity %d/5, accuracy %d/5, completeness %d/5, alignment %d/5. %s",
		eval.Clarity, eval.Accuracy, eval.Completeness, eval.Alignment, verdict)
}

func critiqueKey(output string) string {
	sum := sha256.Sum256([]byte(output))
	return fmt.Sprintf("critique:%x", sum[:8])
}
