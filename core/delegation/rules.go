package delegation

// Rule identifies which resolution path produced an agent assignment.
// Callers log the rule tag for audit, so the precedence order here is a
// contract, not an implementation detail.
type Rule string

const (
	// RuleOverride fired because the caller's context named an agent.
	RuleOverride Rule = "override"

	// RuleExplicitOverride fired from the engine's per-type override map.
	RuleExplicitOverride Rule = "explicit_override"

	// RuleStandard fired from the general task-type map.
	RuleStandard Rule = "standard"

	// RuleFallback fired because only the fallback agent was left.
	RuleFallback Rule = "fallback"

	// RuleNoMatch means no agent could be resolved.
	RuleNoMatch Rule = "no_match"
)

// ContextOverrideKey is the context key carrying a caller-supplied agent
// override.
const ContextOverrideKey = "override_agent"

// RulesEngine maps task types to responsible agent ids with ordered
// fallback: caller override, explicit per-type override, standard map,
// fallback agent, no match.
type RulesEngine struct {
	agentMap      map[TaskType]string
	overrides     map[TaskType]string
	fallbackAgent string
}

// NewRulesEngine creates a rules engine over the given task-type map.
func NewRulesEngine(agentMap map[TaskType]string, fallbackAgent string, overrides map[TaskType]string) *RulesEngine {
	if agentMap == nil {
		agentMap = make(map[TaskType]string)
	}
	if overrides == nil {
		overrides = make(map[TaskType]string)
	}
	return &RulesEngine{
		agentMap:      agentMap,
		overrides:     overrides,
		fallbackAgent: fallbackAgent,
	}
}

// AgentForTask resolves the responsible agent for a task type. The empty
// agent id with RuleNoMatch means nothing resolved; callers treat that as
// a defined outcome, not an error.
func (e *RulesEngine) AgentForTask(taskType TaskType, taskContext map[string]any) (string, Rule) {
	if taskContext != nil {
		if override, ok := taskContext[ContextOverrideKey].(string); ok && override != "" {
			return override, RuleOverride
		}
	}
	if agentID, ok := e.overrides[taskType]; ok {
		return agentID, RuleExplicitOverride
	}
	if agentID, ok := e.agentMap[taskType]; ok {
		return agentID, RuleStandard
	}
	if e.fallbackAgent != "" {
		return e.fallbackAgent, RuleFallback
	}
	return "", RuleNoMatch
}
