package agents

import (
	"context"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/messaging"
	"github.com/adalundhe/metapersona/core/workflow"
)

// PlanningAgent decomposes requests into step plans. It owns a workflow
// engine and exposes plan generation to the distributed planner.
type PlanningAgent struct {
	*base
	engine *workflow.Engine
}

// NewPlanningAgent creates and attaches a planning agent.
func NewPlanningAgent(cfg Config) *PlanningAgent {
	a := &PlanningAgent{
		base: newBase(cfg, "planning_agent", "planning",
			"Breaks requests into ordered actionable plans and coordinates their execution",
			[]agent.Capability{
				{Name: "plan_generation", Description: "Decompose requests into step plans", Confidence: 0.95,
					Examples: []string{"plan", "break down", "roadmap", "organize"}},
				{Name: "workflow_coordination", Description: "Coordinate multi-step execution across agents", Confidence: 0.85,
					Examples: []string{"workflow", "sequence", "steps"}},
			}),
	}
	a.engine = workflow.NewEngine(workflow.EngineConfig{
		AgentID:   a.id,
		AgentRole: a.role,
		Local:     a,
		Provider:  cfg.Provider,
		Router:    cfg.Router,
		Rules:     a.rules,
		Board:     cfg.Board,
		Schema:    cfg.Schema,
		Logger:    a.logger,
	})
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores planning fitness.
func (a *PlanningAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "plan", "break down", "roadmap", "organize", "steps", "workflow") {
		return 0.9
	}
	if containsAny(lowered, "coordinate", "schedule", "sequence") {
		return 0.7
	}
	return 0.3
}

// HandleTask runs the full workflow for the request: decompose, execute
// each step, assemble.
func (a *PlanningAgent) HandleTask(ctx context.Context, task string, taskContext map[string]any) (*agent.TaskResult, error) {
	steps := a.engine.PlanGeneration(ctx, task)
	results := a.engine.StepExecution(ctx, steps, taskContext, workflow.StepConfig{})
	output := a.engine.AssembleFinalOutput(results)

	result := agent.Success(a.id, output)
	result.Metadata = map[string]any{
		"agent_role": a.role,
		"steps":      steps,
		"results":    results,
	}
	return result, nil
}

// GeneratePlanSteps exposes plan decomposition to the distributed planning
// engine.
func (a *PlanningAgent) GeneratePlanSteps(ctx context.Context, request string, _ map[string]any) ([]string, error) {
	return a.engine.PlanGeneration(ctx, request), nil
}

// Reason is the engine's local execution path: one provider call under the
// planning system prompt.
func (a *PlanningAgent) Reason(ctx context.Context, step string, history []llm.Message) (string, error) {
	if a.provider == nil {
		return "", llm.ErrNoProviders
	}
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.System(a.systemPrompt()))
	messages = append(messages, history...)
	messages = append(messages, llm.User(step))
	return a.provider.Generate(ctx, messages, 0.3)
}

func (a *PlanningAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case "planning_request", messaging.IntentRequest, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	task, ok := msg.PayloadString(taskKeys...)
	if !ok {
		return a.errorReply(msg, "missing task text")
	}

	steps := a.engine.PlanGeneration(ctx, task)
	if a.board != nil {
		a.board.Write(blackboard.PlanKey(task), steps, a.id, map[string]any{"source_agent": a.id})
	}
	return msg.Reply("planning_response", map[string]any{
		"plan":       strings.Join(steps, "\n"),
		"steps":      steps,
		"handled_by": a.id,
	})
}
