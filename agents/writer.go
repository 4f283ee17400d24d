package agents

import (
	"context"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
)

// WriterAgent produces prose: documents, summaries, and general content.
type WriterAgent struct {
	*base
}

// NewWriterAgent creates and attaches a writer agent.
func NewWriterAgent(cfg Config) *WriterAgent {
	a := &WriterAgent{
		base: newBase(cfg, "writing_agent", "writing",
			"Writes professional documents, articles, and summaries",
			[]agent.Capability{
				{Name: "professional_writing", Description: "Write professional documents", Confidence: 0.95,
					Examples: []string{"write email", "write letter", "draft memo", "compose message"}},
				{Name: "content_creation", Description: "Create articles and long-form content", Confidence: 0.9,
					Examples: []string{"write article", "write blog", "create content"}},
			}),
	}
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores writing fitness: very high for professional
// documents, high for content formats, low for code and bare research.
func (a *WriterAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "code", "function", "program", "script") {
		return 0.15
	}
	if strings.Contains(lowered, "research") && !containsAny(lowered, "write", "draft", "compose") {
		return 0.2
	}
	if containsAny(lowered, "write email", "write letter", "write memo", "draft email") {
		return 0.95
	}
	if containsAny(lowered, "article", "blog", "post", "essay", "report") {
		return 0.9
	}
	if containsAny(lowered, "write", "compose", "draft", "create") {
		return 0.7
	}
	return 0.3
}

// HandleTask executes one writing task through the provider.
func (a *WriterAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	return a.handleTask(ctx, task, 0.7)
}

func (a *WriterAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case "writing_request", messaging.IntentRequest, messaging.IntentProduce,
		messaging.IntentRefine, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	task, ok := msg.PayloadString(taskKeys...)
	if !ok {
		return a.errorReply(msg, "missing task text")
	}
	if msg.Intent == messaging.IntentRefine {
		if critique, has := msg.PayloadString("critique"); has {
			task = "Revise the following text per the critique.\n\nText:\n" + task +
				"\n\nCritique:\n" + critique
		}
	}

	output, err := a.generate(ctx, task, 0.7)
	if err != nil {
		a.logger.Warn("writing task failed", "agent", a.id, "error", err)
		return a.errorReply(msg, err.Error())
	}

	if msg.Intent == messaging.IntentRefine {
		return msg.Reply(messaging.IntentResponse, map[string]any{"refined": output, "handled_by": a.id})
	}
	return msg.Reply(messaging.IntentResponse, map[string]any{"output": output, "handled_by": a.id})
}
