package agents

import (
	"context"
	"strings"
	"time"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
)

// ResearchAgent gathers and synthesizes information. Each research step's
// result is written to the blackboard under research:{step}.
type ResearchAgent struct {
	*base
}

// NewResearchAgent creates and attaches a research agent.
func NewResearchAgent(cfg Config) *ResearchAgent {
	a := &ResearchAgent{
		base: newBase(cfg, "research_agent", "research",
			"Researches and analyzes information, synthesizing findings into usable summaries",
			[]agent.Capability{
				{Name: "research_and_analysis", Description: "Research and analyze information", Confidence: 0.9,
					Examples: []string{"research", "find information", "analyze", "investigate"}},
				{Name: "information_synthesis", Description: "Synthesize findings into summaries", Confidence: 0.85,
					Examples: []string{"summarize", "synthesize", "combine information"}},
			}),
	}
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores research fitness: high for explicit research verbs,
// medium for analysis, and deliberately low for code and writing tasks.
func (a *ResearchAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "write code", "write a function", "program") {
		return 0.2
	}
	if containsAny(lowered, "write email", "write letter", "draft") {
		return 0.2
	}
	if containsAny(lowered, "research", "find information", "search for", "investigate") {
		return 0.9
	}
	if containsAny(lowered, "analyze", "compare", "evaluate", "assess") {
		return 0.75
	}
	return 0.3
}

// HandleTask executes one research task through the provider.
func (a *ResearchAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	return a.handleTask(ctx, task, 0.2)
}

func (a *ResearchAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case "research_request", messaging.IntentRequest, messaging.IntentProduce, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	query, _ := msg.PayloadString("query", "user_request", "task", "step", "input")
	steps := stepList(msg.Payload["steps"], query)

	results := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		output, err := a.generate(ctx, step, 0.2)
		if err != nil {
			a.logger.Warn("research step failed", "agent", a.id, "step", step, "error", err)
			output = ""
		}
		entry := map[string]any{
			"query":     step,
			"result":    output,
			"agent":     a.id,
			"timestamp": time.Now(),
		}
		results = append(results, entry)
		if a.board != nil {
			a.board.Write("research:"+step, entry, a.id, map[string]any{"source_agent": a.id})
		}
	}

	combined := make([]string, 0, len(results))
	for _, r := range results {
		if s, ok := r["result"].(string); ok && s != "" {
			combined = append(combined, s)
		}
	}
	return msg.Reply("research_response", map[string]any{
		"results":    results,
		"output":     strings.Join(combined, "\n"),
		"handled_by": a.id,
	})
}

// stepList reads a []string or []any payload field, falling back to the
// single query.
func stepList(raw any, fallback string) []string {
	switch v := raw.(type) {
	case []string:
		if len(v) > 0 {
			return v
		}
	case []any:
		steps := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				steps = append(steps, s)
			}
		}
		if len(steps) > 0 {
			return steps
		}
	}
	return []string{fallback}
}
