// Package routing implements the single-shot task router: score all
// registered agents against a task, optionally re-rank with an LLM pass,
// pick the best above a confidence floor, execute, and record history.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/registry"
)

const (
	// DefaultMinConfidence is the routing threshold when none is given.
	DefaultMinConfidence = 0.5

	// HistoryCap bounds routing history; oldest decisions are trimmed.
	HistoryCap = 1000

	// TaskTruncateLen bounds the task text stored per decision.
	TaskTruncateLen = 200

	// MaxAlternatives bounds the runner-ups stored per decision.
	MaxAlternatives = 5

	// MaxAdjustment clamps the LLM re-ranking confidence adjustment.
	MaxAdjustment = 0.3
)

// NoAgentError is the fixed failure text for an unroutable task.
const NoAgentError = "no suitable agent found for task"

// Alternative is one runner-up candidate recorded with a decision.
type Alternative struct {
	AgentID    string  `json:"agent_id"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

// Decision is one recorded routing outcome. Analytics only; decisions are
// never replayed.
type Decision struct {
	Task            string        `json:"task"`
	SelectedAgentID string        `json:"selected_agent_id"`
	Confidence      float64       `json:"confidence"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Stats summarizes routing history.
type Stats struct {
	TotalRoutes   int            `json:"total_routes"`
	AgentCounts   map[string]int `json:"agent_counts"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// RouteOptions carry the optional routing inputs.
type RouteOptions struct {
	// AgentID selects an agent directly, bypassing all scoring.
	AgentID string

	// PreferredRole restricts the candidate pool to one role when agents
	// with that role exist.
	PreferredRole string

	// ConversationHistory is merged into the task context for scoring.
	ConversationHistory []string
}

// TaskRouter scores, selects, and executes. All mutation of routing
// history is mutex-guarded.
type TaskRouter struct {
	mu            sync.Mutex
	registry      *registry.Registry
	defaultAgent  string
	minConfidence float64
	provider      llm.Provider
	useLLMRouting bool
	history       []Decision
	logger        *slog.Logger
}

// Option configures a TaskRouter.
type Option func(*TaskRouter)

// WithDefaultAgent sets the fallback agent used when no candidate meets
// the threshold.
func WithDefaultAgent(agentID string) Option {
	return func(r *TaskRouter) { r.defaultAgent = agentID }
}

// WithMinConfidence sets the routing threshold.
func WithMinConfidence(min float64) Option {
	return func(r *TaskRouter) { r.minConfidence = min }
}

// WithLLMRouting enables the LLM re-ranking pass using the given provider.
func WithLLMRouting(provider llm.Provider) Option {
	return func(r *TaskRouter) {
		r.provider = provider
		r.useLLMRouting = provider != nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *TaskRouter) { r.logger = logger }
}

// New creates a router over the given registry.
func New(reg *registry.Registry, opts ...Option) *TaskRouter {
	r := &TaskRouter{
		registry:      reg,
		minConfidence: DefaultMinConfidence,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type scored struct {
	agent      agent.Agent
	confidence float64
}

// RouteTask selects an agent for the task, or nil when nothing qualifies
// and no default is configured. The returned confidence is the selected
// agent's final (possibly LLM-adjusted) score.
func (r *TaskRouter) RouteTask(ctx context.Context, task string, taskContext map[string]any, opts RouteOptions) (agent.Agent, float64) {
	// Direct selection bypasses scoring entirely.
	if opts.AgentID != "" {
		if a := r.registry.Get(opts.AgentID); a != nil {
			r.record(task, a.ID(), 1.0, nil)
			return a, 1.0
		}
		r.logger.Warn("requested agent not registered, falling back to scoring", "agent_id", opts.AgentID)
	}

	pool := r.registry.ListAll()
	if opts.PreferredRole != "" {
		if byRole := r.registry.GetByRole(opts.PreferredRole); len(byRole) > 0 {
			pool = byRole
		}
	}

	if len(opts.ConversationHistory) > 0 {
		merged := make(map[string]any, len(taskContext)+1)
		for k, v := range taskContext {
			merged[k] = v
		}
		merged["conversation_history"] = opts.ConversationHistory
		taskContext = merged
	}

	var candidates []scored
	for _, a := range pool {
		conf := a.CanHandleTask(task, taskContext)
		if conf >= r.minConfidence {
			candidates = append(candidates, scored{agent: a, confidence: conf})
		}
	}

	if len(candidates) > 1 && r.useLLMRouting {
		candidates = r.llmRerank(ctx, task, candidates)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})

	if len(candidates) == 0 {
		if r.defaultAgent != "" {
			if a := r.registry.Get(r.defaultAgent); a != nil {
				r.record(task, a.ID(), 0.0, nil)
				return a, 0.0
			}
		}
		r.record(task, "", 0.0, nil)
		return nil, 0.0
	}

	selected := candidates[0]
	var alternatives []Alternative
	for _, c := range candidates[1:] {
		if len(alternatives) == MaxAlternatives {
			break
		}
		alternatives = append(alternatives, Alternative{
			AgentID:    c.agent.ID(),
			Role:       c.agent.Role(),
			Confidence: c.confidence,
		})
	}
	r.record(task, selected.agent.ID(), selected.confidence, alternatives)
	return selected.agent, selected.confidence
}

// rerankVerdict is the JSON shape the re-ranking prompt asks for.
type rerankVerdict struct {
	RecommendedAgentID   string  `json:"recommended_agent_id"`
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
}

// llmRerank asks the LLM to judge true task intent against the candidate
// descriptions and applies an asymmetric adjustment: the full boost to the
// LLM's pick, half the magnitude as a penalty to everyone else. Any
// failure leaves the heuristic scores untouched.
func (r *TaskRouter) llmRerank(ctx context.Context, task string, candidates []scored) []scored {
	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- id: %s, role: %s, description: %s, heuristic_confidence: %.2f\n",
			c.agent.ID(), c.agent.Role(), c.agent.Description(), c.confidence)
	}

	messages := []llm.Message{
		llm.System("You analyze task routing. Given a task and candidate agents, " +
			"identify the agent whose specialty best matches the task's true intent. " +
			"Respond with JSON only: " +
			`{"recommended_agent_id": "<id>", "confidence_adjustment": <-0.3 to 0.3>}`),
		llm.User(fmt.Sprintf("Task: %s\n\nCandidates:\n%s", task, sb.String())),
	}

	raw, err := r.provider.Generate(ctx, messages, 0.2)
	if err != nil {
		r.logger.Warn("llm re-ranking failed, keeping heuristic scores", "error", err)
		return candidates
	}

	verdict, err := llm.Decode[rerankVerdict](raw)
	if err != nil {
		r.logger.Warn("llm re-ranking verdict unparseable, keeping heuristic scores", "error", err)
		return candidates
	}

	adj := verdict.ConfidenceAdjustment
	if adj > MaxAdjustment {
		adj = MaxAdjustment
	} else if adj < -MaxAdjustment {
		adj = -MaxAdjustment
	}

	recommended := false
	for _, c := range candidates {
		if c.agent.ID() == verdict.RecommendedAgentID {
			recommended = true
			break
		}
	}
	if !recommended {
		r.logger.Warn("llm recommended unknown agent, keeping heuristic scores",
			"agent_id", verdict.RecommendedAgentID)
		return candidates
	}

	penalty := 0.5 * abs(adj)
	adjusted := make([]scored, len(candidates))
	for i, c := range candidates {
		if c.agent.ID() == verdict.RecommendedAgentID {
			c.confidence = clamp01(c.confidence + adj)
		} else {
			c.confidence = clamp01(c.confidence - penalty)
		}
		adjusted[i] = c
	}
	return adjusted
}

// ExecuteTask routes and runs the task. Unroutable tasks and agent
// failures both surface as a failed TaskResult, never as an error.
func (r *TaskRouter) ExecuteTask(ctx context.Context, task string, taskContext map[string]any, opts RouteOptions) *agent.TaskResult {
	selected, _ := r.RouteTask(ctx, task, taskContext, opts)
	if selected == nil {
		return agent.Failure("", NoAgentError)
	}

	result, err := selected.HandleTask(ctx, task, taskContext)
	if err != nil {
		r.logger.Warn("task execution failed", "agent_id", selected.ID(), "error", err)
		return agent.Failure(selected.ID(), err.Error())
	}
	r.registry.RecordInteraction(selected.ID())
	if result == nil {
		return agent.Failure(selected.ID(), "agent returned no result")
	}
	return result
}

// ExplainedCandidate is one row of a routing explanation.
type ExplainedCandidate struct {
	AgentID        string  `json:"agent_id"`
	Role           string  `json:"role"`
	Confidence     float64 `json:"confidence"`
	MeetsThreshold bool    `json:"meets_threshold"`
}

// Explanation is the full score transparency for a task, without
// executing anything.
type Explanation struct {
	Task       string               `json:"task"`
	Threshold  float64              `json:"threshold"`
	Candidates []ExplainedCandidate `json:"candidates"`
}

// ExplainRouting scores every registered agent for the task and returns
// the ranked list. Pure analysis: no execution, no history mutation.
func (r *TaskRouter) ExplainRouting(task string, taskContext map[string]any) Explanation {
	explanation := Explanation{
		Task:      task,
		Threshold: r.minConfidence,
	}
	for _, a := range r.registry.ListAll() {
		conf := a.CanHandleTask(task, taskContext)
		explanation.Candidates = append(explanation.Candidates, ExplainedCandidate{
			AgentID:        a.ID(),
			Role:           a.Role(),
			Confidence:     conf,
			MeetsThreshold: conf >= r.minConfidence,
		})
	}
	sort.SliceStable(explanation.Candidates, func(i, j int) bool {
		return explanation.Candidates[i].Confidence > explanation.Candidates[j].Confidence
	})
	return explanation
}

// RoutingStats summarizes recorded decisions.
func (r *TaskRouter) RoutingStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		TotalRoutes: len(r.history),
		AgentCounts: make(map[string]int),
	}
	var sum float64
	for _, d := range r.history {
		if d.SelectedAgentID != "" {
			stats.AgentCounts[d.SelectedAgentID]++
		}
		sum += d.Confidence
	}
	if len(r.history) > 0 {
		stats.AvgConfidence = sum / float64(len(r.history))
	}
	return stats
}

// RecentRoutes returns the most recent n decisions, newest last.
func (r *TaskRouter) RecentRoutes(n int) []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.history) {
		n = len(r.history)
	}
	out := make([]Decision, n)
	copy(out, r.history[len(r.history)-n:])
	return out
}

func (r *TaskRouter) record(task, agentID string, confidence float64, alternatives []Alternative) {
	if len(task) > TaskTruncateLen {
		// Back off to a rune boundary so the stored task stays valid UTF-8.
		cut := TaskTruncateLen
		for cut > 0 && !utf8.RuneStart(task[cut]) {
			cut--
		}
		task = task[:cut]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, Decision{
		Task:            task,
		SelectedAgentID: agentID,
		Confidence:      confidence,
		Alternatives:    alternatives,
		Timestamp:       time.Now(),
	})
	if len(r.history) > HistoryCap {
		r.history = r.history[len(r.history)-HistoryCap:]
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
