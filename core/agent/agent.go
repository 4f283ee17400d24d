// Package agent defines the capability-polymorphic agent contract. An agent
// scores its own fitness for a task and, when selected, executes it against
// an LLM provider. Concrete agents live in the top-level agents package.
package agent

import (
	"context"
	"time"
)

// DefaultCapabilityConfidence is used when a capability declares no
// confidence of its own.
const DefaultCapabilityConfidence = 0.8

// Capability describes one thing an agent can do. Declared once at
// construction and immutable thereafter.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
	Examples    []string `json:"examples,omitempty"`
}

// NewCapability creates a capability with the default confidence.
func NewCapability(name, description string, examples ...string) Capability {
	return Capability{
		Name:        name,
		Description: description,
		Confidence:  DefaultCapabilityConfidence,
		Examples:    examples,
	}
}

// Agent is the routing target contract. CanHandleTask must be a pure scoring
// function; HandleTask performs the work.
type Agent interface {
	// ID returns the unique agent identifier used for registration and
	// message addressing.
	ID() string

	// Role returns the agent's role label (research, writing, planning...).
	Role() string

	// Description returns a human-readable summary for routing prompts.
	Description() string

	// Capabilities returns the agent's declared capability list.
	Capabilities() []Capability

	// CanHandleTask scores the agent's fitness for a task in [0.0, 1.0].
	// Must have no side effects.
	CanHandleTask(task string, taskContext map[string]any) float64

	// HandleTask executes the task. Implementations return an error only
	// for failures the caller should convert to a failed TaskResult;
	// domain-level failure detail belongs in the result itself.
	HandleTask(ctx context.Context, task string, taskContext map[string]any) (*TaskResult, error)
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	AgentID   string         `json:"agent_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Success creates a successful result.
func Success(agentID, output string) *TaskResult {
	return &TaskResult{
		Success:   true,
		Output:    output,
		AgentID:   agentID,
		Timestamp: time.Now(),
	}
}

// Failure creates a failed result carrying the error message.
func Failure(agentID, errMessage string) *TaskResult {
	return &TaskResult{
		Success:   false,
		Error:     errMessage,
		AgentID:   agentID,
		Timestamp: time.Now(),
	}
}
