// Package agents provides the concrete agent set: research, code, writer,
// generalist, critique, planning, and persona alignment. Every agent
// satisfies the core agent contract for registry routing and, when attached
// to a router, answers envelope traffic with the shared delegation-aware
// message handler.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/delegation"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/messaging"
	"github.com/adalundhe/metapersona/core/schema"
)

// taskKeys is the preference order for extracting the task text from an
// incoming request payload.
var taskKeys = []string{"task", "query", "user_request", "output", "input"}

// Config wires one concrete agent. Provider is required for real output;
// Router, Board, and Schema are optional.
type Config struct {
	ID       string
	Provider llm.Provider
	Router   *messaging.Router
	Board    *blackboard.Blackboard
	Schema   schema.Schema
	Rules    *delegation.RulesEngine
	Logger   *slog.Logger
}

// serveFunc handles one locally-accepted envelope and returns the reply.
type serveFunc func(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope

// base carries the plumbing shared by every concrete agent: identity,
// capability list, provider access, and the classify/estimate/delegate
// message loop.
type base struct {
	id           string
	role         string
	description  string
	capabilities []agent.Capability

	provider   llm.Provider
	router     *messaging.Router
	board      *blackboard.Blackboard
	sch        schema.Schema
	classifier *delegation.Classifier
	rules      *delegation.RulesEngine
	logger     *slog.Logger

	serve serveFunc
}

func newBase(cfg Config, defaultID, role, description string, capabilities []agent.Capability) *base {
	id := cfg.ID
	if id == "" {
		id = defaultID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := cfg.Rules
	if rules == nil {
		rules = defaultRules(id, role)
	}
	return &base{
		id:           id,
		role:         role,
		description:  description,
		capabilities: capabilities,
		provider:     cfg.Provider,
		router:       cfg.Router,
		board:        cfg.Board,
		sch:          cfg.Schema,
		classifier:   delegation.NewClassifier(),
		rules:        rules,
		logger:       logger,
	}
}

// defaultRules is the standard task-type map with the owning agent claiming
// its own role and everything else pointing at the well-known specialist
// ids.
func defaultRules(agentID, role string) *delegation.RulesEngine {
	agentMap := map[delegation.TaskType]string{
		delegation.TypePlanning:  "planning_agent",
		delegation.TypeWriting:   "writing_agent",
		delegation.TypeResearch:  "research_agent",
		delegation.TypeCritique:  "critique_agent",
		delegation.TypeAlignment: "persona_alignment_agent",
	}
	if t := delegation.TaskType(role); agentMap[t] != "" {
		agentMap[t] = agentID
	}
	return delegation.NewRulesEngine(agentMap, agentID, nil)
}

func (b *base) ID() string                       { return b.id }
func (b *base) Role() string                     { return b.role }
func (b *base) Description() string              { return b.description }
func (b *base) Capabilities() []agent.Capability { return b.capabilities }

// attach registers the agent's envelope handler with the router, if one is
// configured.
func (b *base) attach() {
	if b.router != nil {
		b.router.RegisterAgent(b.id, b.handleMessage)
	}
}

// handleMessage is the shared message loop: refuse over-deep delegation,
// classify the task, and either serve locally or hand off to the
// responsible agent with the hop count bumped.
func (b *base) handleMessage(msg *messaging.Envelope) *messaging.Envelope {
	depth := msg.DelegationDepth()
	if depth > messaging.MaxDelegationDepth {
		b.logger.Warn("delegation depth exceeded, refusing",
			"agent", b.id, "depth", depth, "trace_id", msg.TraceID())
		return msg.Reply(messaging.IntentError, map[string]any{
			"error": fmt.Sprintf("delegation depth %d exceeds maximum %d", depth, messaging.MaxDelegationDepth),
		})
	}

	// Domain intents (critique_request, planning_request...) classify by
	// name; generic intents classify by the task text they carry.
	taskType, _ := b.classifier.Classify(msg.Intent)
	if taskType == delegation.TypeUnknown {
		task, _ := msg.PayloadString(taskKeys...)
		taskType, _ = b.classifier.Classify(task)
	}
	level, score := delegation.EstimateConfidence(b.role, taskType)
	target, rule := b.rules.AgentForTask(taskType, msg.Metadata)

	// A request we sent to ourselves is a delegation cycle, not work.
	// Refuse it the same way depth exhaustion is refused. Other self-sent
	// intents (refine, internal notifications) still run locally.
	selfSent := msg.Sender == b.id
	if selfSent && msg.Intent == messaging.IntentRequest {
		b.logger.Warn("self-delegation loop detected, refusing",
			"agent", b.id, "trace_id", msg.TraceID())
		return msg.Reply(messaging.IntentError, map[string]any{
			"error": fmt.Sprintf("self-delegation loop: %s sent itself a request", b.id),
		})
	}

	if selfSent || (target == b.id && level != delegation.LevelLow) {
		return b.dispatch(msg)
	}

	if target == "" || target == b.id || b.router == nil {
		// Nowhere better to send it. Low confidence still beats no answer.
		return b.dispatch(msg)
	}

	b.logger.Info("delegating task",
		"agent", b.id, "target", target, "task_type", string(taskType), "rule", string(rule))
	response := b.router.DelegateTask(b.id, target, msg.Intent, msg.Payload, delegationMeta(msg, b.id, taskType, score, rule))
	if response == nil {
		b.logger.Warn("delegation yielded no response, handling locally", "agent", b.id, "target", target)
		return b.dispatch(msg)
	}
	return response
}

// dispatch runs the agent-specific intent handler, converting unknown
// intents into error replies.
func (b *base) dispatch(msg *messaging.Envelope) *messaging.Envelope {
	if b.serve == nil {
		return b.errorReply(msg, "agent has no handler")
	}
	response := b.serve(context.Background(), msg)
	if response == nil {
		return b.errorReply(msg, fmt.Sprintf("unknown intent: %s", msg.Intent))
	}
	return response
}

func (b *base) errorReply(msg *messaging.Envelope, text string) *messaging.Envelope {
	return msg.Reply(messaging.IntentError, map[string]any{"error": text})
}

func delegationMeta(msg *messaging.Envelope, delegator string, taskType delegation.TaskType, score float64, rule delegation.Rule) map[string]any {
	meta := make(map[string]any, len(msg.Metadata)+3)
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	meta["delegated_by"] = delegator
	meta["delegation"] = map[string]any{
		"task_type":  string(taskType),
		"confidence": score,
		"rule":       string(rule),
	}
	meta[messaging.MetaDelegationDepth] = msg.DelegationDepth() + 1
	return meta
}

// systemPrompt renders the agent's role, specialization, capabilities, and
// any configured profession context into one prompt.
func (b *base) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a specialized agent.\n\n")
	sb.WriteString("Role: " + b.role + "\n")
	sb.WriteString("Specialization: " + b.description + "\n")
	if len(b.capabilities) > 0 {
		sb.WriteString("\nCapabilities:\n")
		for _, cap := range b.capabilities {
			sb.WriteString("- " + cap.Name + ": " + cap.Description + "\n")
		}
	}
	if b.sch != nil {
		if summary := b.sch.ContextSummary(500); summary != "" {
			sb.WriteString("\nProfession context:\n" + summary + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

// generate runs the task through the provider under the agent's system
// prompt.
func (b *base) generate(ctx context.Context, task string, temperature float64) (string, error) {
	if b.provider == nil {
		return "", llm.ErrNoProviders
	}
	return b.provider.Generate(ctx, []llm.Message{
		llm.System(b.systemPrompt()),
		llm.User(task),
	}, temperature)
}

// handleTask is the default registry-facing execution path: one provider
// call, success on output.
func (b *base) handleTask(ctx context.Context, task string, temperature float64) (*agent.TaskResult, error) {
	output, err := b.generate(ctx, task, temperature)
	if err != nil {
		return nil, fmt.Errorf("%s handling task: %w", b.id, err)
	}
	result := agent.Success(b.id, output)
	result.Metadata = map[string]any{"agent_role": b.role}
	return result, nil
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
