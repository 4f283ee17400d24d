package agents

import (
	"context"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
)

var codeLanguages = []string{"python", "javascript", "java", "c++", "rust", "go", "typescript"}

// CodeAgent writes and debugs code.
type CodeAgent struct {
	*base
}

// NewCodeAgent creates and attaches a code agent.
func NewCodeAgent(cfg Config) *CodeAgent {
	a := &CodeAgent{
		base: newBase(cfg, "code_agent", "execution",
			"Writes, reviews, and debugs code",
			[]agent.Capability{
				{Name: "code_development", Description: "Write code and implement features", Confidence: 0.95,
					Examples: []string{"write code", "create function", "implement", "develop"}},
				{Name: "debugging", Description: "Debug and fix code", Confidence: 0.85,
					Examples: []string{"debug", "fix", "error", "issue"}},
			}),
	}
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores coding fitness: very high for explicit coding
// phrases, high for named languages, medium for technical vocabulary.
func (a *CodeAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "write email", "write article", "write letter", "draft") {
		return 0.15
	}
	if strings.Contains(lowered, "research") && !strings.Contains(lowered, "code") {
		return 0.2
	}
	if containsAny(lowered, "write code", "write a function", "write a script", "create a program") {
		return 0.95
	}
	if containsAny(lowered, codeLanguages...) {
		return 0.9
	}
	if containsAny(lowered, "function", "class", "api", "algorithm", "debug") {
		return 0.7
	}
	return 0.3
}

// HandleTask executes one coding task through the provider.
func (a *CodeAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	return a.handleTask(ctx, task, 0.2)
}

func (a *CodeAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case "code_request", messaging.IntentRequest, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	task, ok := msg.PayloadString(taskKeys...)
	if !ok {
		return a.errorReply(msg, "missing task text")
	}
	output, err := a.generate(ctx, task, 0.2)
	if err != nil {
		a.logger.Warn("code task failed", "agent", a.id, "error", err)
		return a.errorReply(msg, err.Error())
	}
	return msg.Reply(messaging.IntentResponse, map[string]any{"output": output, "handled_by": a.id})
}
