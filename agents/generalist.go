package agents

import (
	"context"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
)

// specializedKeywords lower the generalist's score so specialists win the
// routing contest for their own domains.
var specializedKeywords = []string{
	"research", "search for", "find information",
	"write code", "function", "program",
	"write email", "write letter", "draft",
}

// GeneralistAgent handles conversation and anything no specialist claims.
type GeneralistAgent struct {
	*base
}

// NewGeneralistAgent creates and attaches a generalist agent.
func NewGeneralistAgent(cfg Config) *GeneralistAgent {
	a := &GeneralistAgent{
		base: newBase(cfg, "generalist_agent", "generalist",
			"Handles conversation, explanations, and general assistance",
			[]agent.Capability{
				{Name: "conversation", Description: "Natural conversation and discussion", Confidence: 0.8,
					Examples: []string{"chat", "discuss", "explain", "help"}},
				{Name: "general_assistance", Description: "General tasks and questions", Confidence: 0.7,
					Examples: []string{"help with", "tell me about", "what is", "how to"}},
			}),
	}
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask yields to specialists and takes the middle ground on
// everything else.
func (a *GeneralistAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, specializedKeywords...) {
		return 0.3
	}
	return 0.5
}

// HandleTask executes one general task through the provider.
func (a *GeneralistAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	return a.handleTask(ctx, task, 0.7)
}

func (a *GeneralistAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case messaging.IntentRequest, messaging.IntentProduce, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	task, ok := msg.PayloadString(taskKeys...)
	if !ok {
		return a.errorReply(msg, "missing task text")
	}
	output, err := a.generate(ctx, task, 0.7)
	if err != nil {
		a.logger.Warn("general task failed", "agent", a.id, "error", err)
		return a.errorReply(msg, err.Error())
	}
	return msg.Reply(messaging.IntentResponse, map[string]any{"output": output, "handled_by": a.id})
}
