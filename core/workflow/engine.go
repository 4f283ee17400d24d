package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/consensus"
	"github.com/adalundhe/metapersona/core/delegation"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/messaging"
	"github.com/adalundhe/metapersona/core/schema"
)

// delegationOutputKeys is the preference order for extracting a step
// output from a delegation response payload.
var delegationOutputKeys = []string{"output", "result", "plan", "aligned_output", "critique", "results"}

// LocalExecutor is the executing agent's own reasoning pipeline, used
// when a step resolves back to the agent itself.
type LocalExecutor interface {
	Reason(ctx context.Context, step string, history []llm.Message) (string, error)
}

// CritiqueConfig enables the critique loop for each step's output.
// Agents holds producer, critique, and refine ids in order; missing
// positions fall back to the producer.
type CritiqueConfig struct {
	Agents []string
	Rounds int
}

// ConsensusConfig enables consensus merging, overriding the refined
// output.
type ConsensusConfig struct {
	Outputs   []consensus.AgentOutput
	Strategy  string
	Weights   map[string]float64
	Critiques []consensus.Critique
}

// DebateConfig enables a recorded debate per step. Topic defaults to the
// step text.
type DebateConfig struct {
	AgentIDs []string
	Topic    string
	Rounds   int
}

// CrossReflectionConfig enables cross-agent output comparison.
type CrossReflectionConfig struct {
	Outputs []LabeledOutput
}

// StepConfig carries the optional per-run sub-protocol configuration.
type StepConfig struct {
	// AgentMap forces specific steps (by index) to specific agents.
	AgentMap map[int]string

	Critique        *CritiqueConfig
	Consensus       *ConsensusConfig
	Debate          *DebateConfig
	CrossReflection *CrossReflectionConfig
}

// StepResult records everything about one executed step.
type StepResult struct {
	Step                 string                 `json:"step"`
	Output               string                 `json:"output"`
	Reflection           Evaluation             `json:"reflection"`
	RefinedOutput        string                 `json:"refined_output"`
	RefinementPerformed  bool                   `json:"refinement_performed"`
	Agent                string                 `json:"agent"`
	CritiqueTrace        *consensus.LoopResult  `json:"critique_trace,omitempty"`
	ConsensusTrace       *consensus.MergeResult `json:"consensus_trace,omitempty"`
	DebateTrace          *consensus.DebateResult `json:"debate_trace,omitempty"`
	CrossReflectionTrace *CrossReflection       `json:"cross_reflection_trace,omitempty"`
}

// Engine orchestrates multi-step reasoning for one agent: decompose,
// execute each step locally or by delegation, then reflect and refine.
type Engine struct {
	agentID    string
	agentRole  string
	local      LocalExecutor
	provider   llm.Provider
	reflection *ReflectionEngine
	router     *messaging.Router
	classifier *delegation.Classifier
	rules      *delegation.RulesEngine
	board      *blackboard.Blackboard
	sch        schema.Schema

	critiqueLoop    *consensus.CritiqueLoop
	consensusEngine *consensus.Engine
	debatePattern   *consensus.DebatePattern
	crossReflection *CrossAgentReflectionEngine

	logger *slog.Logger
}

// EngineConfig wires an Engine. Router and Rules may be nil for a purely
// local engine; the step executor then always runs locally.
type EngineConfig struct {
	AgentID   string
	AgentRole string
	Local     LocalExecutor
	Provider  llm.Provider
	Router    *messaging.Router
	Rules     *delegation.RulesEngine
	Board     *blackboard.Blackboard
	Schema    schema.Schema
	Logger    *slog.Logger
}

// NewEngine creates a workflow engine for one agent.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	board := cfg.Board
	if board == nil {
		board = blackboard.New(blackboard.WithLogger(logger))
	}
	rules := cfg.Rules
	if rules == nil {
		rules = delegation.NewRulesEngine(map[delegation.TaskType]string{
			delegation.TypePlanning:  "planning_agent",
			delegation.TypeWriting:   "writing_agent",
			delegation.TypeResearch:  "research_agent",
			delegation.TypeCritique:  "critique_agent",
			delegation.TypeAlignment: "persona_alignment_agent",
		}, cfg.AgentID, nil)
	}

	e := &Engine{
		agentID:         cfg.AgentID,
		agentRole:       cfg.AgentRole,
		local:           cfg.Local,
		provider:        cfg.Provider,
		reflection:      NewReflectionEngine(cfg.Provider, logger),
		router:          cfg.Router,
		classifier:      delegation.NewClassifier(),
		rules:           rules,
		board:           board,
		sch:             cfg.Schema,
		consensusEngine: consensus.NewEngine(board, logger),
		crossReflection: NewCrossAgentReflectionEngine(cfg.Provider, board, logger),
		logger:          logger,
	}
	if cfg.Router != nil {
		e.critiqueLoop = consensus.NewCritiqueLoop(cfg.Router, board, logger)
		e.debatePattern = consensus.NewDebatePattern(cfg.Router, board, logger)
	}
	return e
}

// PlanGeneration decomposes a request into ordered actionable steps via
// the LLM. Any failure falls back to a single-step plan containing the
// request verbatim.
func (e *Engine) PlanGeneration(ctx context.Context, userRequest string) []string {
	prompt := `Analyze the following user request and break it down into a step-by-step plan. Each step should be clear and actionable.

User Request:
` + userRequest + `

Return a JSON list of steps.`

	raw, err := e.provider.Generate(ctx, []llm.Message{
		llm.System("You are an expert planner for complex professional tasks."),
		llm.User(prompt),
	}, 0.2)
	if err != nil {
		e.logger.Warn("plan generation failed, using single-step plan", "error", err)
		return []string{userRequest}
	}

	steps, err := llm.DecodeStringList(raw)
	if err != nil || len(steps) == 0 {
		e.logger.Warn("plan unparseable, using single-step plan", "error", err)
		return []string{userRequest}
	}
	return steps
}

// StepExecution runs each step in order: classify, resolve a target
// agent, execute locally or delegate, optionally critique, then always
// reflect and refine. Each step's refined output joins the running
// history visible to later steps.
func (e *Engine) StepExecution(ctx context.Context, steps []string, execContext map[string]any, cfg StepConfig) []StepResult {
	if execContext == nil {
		execContext = make(map[string]any)
	}

	incomingDepth := 0
	if d, ok := execContext[messaging.MetaDelegationDepth].(int); ok {
		incomingDepth = d
	}
	traceID, _ := execContext[messaging.MetaTraceID].(string)
	history, _ := execContext["history"].([]llm.Message)

	results := make([]StepResult, 0, len(steps))
	for idx, step := range steps {
		taskType, _ := e.classifier.Classify(step)

		delegateAgent := cfg.AgentMap[idx]
		var rule delegation.Rule
		if delegateAgent == "" {
			delegateAgent, rule = e.rules.AgentForTask(taskType, execContext)
			if delegateAgent == "" {
				delegateAgent = e.agentID
			}
		}

		level, score := delegation.EstimateConfidence(e.agentRole, taskType)

		var output string
		local := delegateAgent == e.agentID || delegateAgent == e.agentRole
		if local && level != delegation.LevelLow {
			output = e.runLocal(ctx, step, history)
		} else {
			output = e.delegateStep(ctx, step, delegateAgent, taskType, score, rule, incomingDepth, traceID, history)
			if output == "" {
				output = e.runLocal(ctx, step, history)
			}
		}

		result := StepResult{
			Step:  step,
			Agent: delegateAgent,
		}

		if cfg.Critique != nil && e.critiqueLoop != nil && len(cfg.Critique.Agents) > 0 {
			producer := cfg.Critique.Agents[0]
			critiqueAgent := producer
			refineAgent := producer
			if len(cfg.Critique.Agents) > 1 {
				critiqueAgent = cfg.Critique.Agents[1]
			}
			if len(cfg.Critique.Agents) > 2 {
				refineAgent = cfg.Critique.Agents[2]
			}
			rounds := cfg.Critique.Rounds
			if rounds <= 0 {
				rounds = 1
			}
			loopResult := e.critiqueLoop.Run(producer, critiqueAgent, refineAgent, output, rounds, execContext, traceID)
			if loopResult.FinalOutput != "" {
				output = loopResult.FinalOutput
			}
			result.CritiqueTrace = &loopResult
		}

		// The reflect/refine gate applies unconditionally, local or
		// delegated.
		eval := e.reflection.EvaluateResponse(ctx, output, e.sch)
		refined := output
		if eval.NeedsRefinement {
			if revised, err := e.reflection.RefineResponse(ctx, output, e.sch, eval); err != nil {
				e.logger.Warn("refinement failed, keeping unrefined output", "error", err)
			} else {
				refined = revised
			}
		}
		result.Output = output
		result.Reflection = eval
		result.RefinedOutput = refined
		result.RefinementPerformed = eval.NeedsRefinement

		if cfg.Consensus != nil && len(cfg.Consensus.Outputs) > 0 {
			merge := e.consensusEngine.Merge(cfg.Consensus.Outputs, cfg.Consensus.Strategy,
				cfg.Consensus.Weights, cfg.Consensus.Critiques, traceID)
			result.RefinedOutput = merge.Consensus
			result.ConsensusTrace = &merge
		}

		if cfg.Debate != nil && e.debatePattern != nil && len(cfg.Debate.AgentIDs) > 0 {
			topic := cfg.Debate.Topic
			if topic == "" {
				topic = step
			}
			rounds := cfg.Debate.Rounds
			if rounds <= 0 {
				rounds = 2
			}
			debate := e.debatePattern.Run(cfg.Debate.AgentIDs, topic, rounds, execContext, traceID)
			result.DebateTrace = &debate
		}

		if cfg.CrossReflection != nil && len(cfg.CrossReflection.Outputs) > 0 {
			reflection := e.crossReflection.ReflectOnOutputs(ctx, cfg.CrossReflection.Outputs, traceID)
			result.CrossReflectionTrace = &reflection
		}

		results = append(results, result)

		history = append(history, llm.Assistant(result.RefinedOutput))
		execContext["history"] = history
	}
	return results
}

// AssembleFinalOutput newline-joins the refined step outputs in order.
func (e *Engine) AssembleFinalOutput(results []StepResult) string {
	outputs := make([]string, len(results))
	for i, r := range results {
		outputs[i] = r.RefinedOutput
	}
	return strings.Join(outputs, "\n")
}

func (e *Engine) runLocal(ctx context.Context, step string, history []llm.Message) string {
	if e.local == nil {
		return ""
	}
	output, err := e.local.Reason(ctx, step, history)
	if err != nil {
		e.logger.Warn("local execution failed", "step", step, "error", err)
		return ""
	}
	return output
}

// delegateStep routes the step to the target agent, stamping the next
// delegation depth, and extracts the response's primary output. An empty
// return means delegation yielded nothing and the caller falls back to
// local execution.
func (e *Engine) delegateStep(ctx context.Context, step, target string, taskType delegation.TaskType, confidence float64, rule delegation.Rule, incomingDepth int, traceID string, history []llm.Message) string {
	if e.router == nil {
		return ""
	}

	metadata := map[string]any{
		"delegated_by": e.agentRole,
		"delegation": map[string]any{
			"task_type":  string(taskType),
			"confidence": confidence,
			"rule":       string(rule),
		},
		messaging.MetaDelegationDepth: incomingDepth + 1,
	}
	if traceID != "" {
		metadata[messaging.MetaTraceID] = traceID
	}

	response := e.router.RouteMessage(messaging.New(e.agentID, target, messaging.IntentRequest, map[string]any{
		"user_request": step,
		"history":      history,
	}, metadata))
	if response == nil {
		return ""
	}
	output, _ := response.PayloadString(delegationOutputKeys...)
	return output
}
