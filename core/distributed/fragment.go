// Package distributed implements plan fragmentation, ownership negotiation,
// and bounded-parallel fragment execution over the message router and
// blackboard.
package distributed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a fragment's execution state. Transitions are forward-only:
// pending -> in_progress -> completed or failed.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var validTransitions = map[State][]State{
	StatePending:    {StateInProgress},
	StateInProgress: {StateCompleted, StateFailed},
}

// TraceEntry is one recorded state-change or assignment event.
type TraceEntry struct {
	Action    string    `json:"action,omitempty"`
	State     State     `json:"state,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Result    any       `json:"result,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PlanFragment is one independently assignable unit of a distributed plan.
// Mutation is not internally synchronized; the executing engine serializes
// access under its own lock.
type PlanFragment struct {
	FragmentID    string         `json:"fragment_id"`
	ParentPlanID  string         `json:"parent_plan_id,omitempty"`
	Step          string         `json:"step"`
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	State         State          `json:"state"`
	Result        any            `json:"result,omitempty"`
	Trace         []TraceEntry   `json:"trace,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewFragment creates a pending fragment for one plan step.
func NewFragment(step, parentPlanID string) *PlanFragment {
	now := time.Now()
	return &PlanFragment{
		FragmentID:   uuid.New().String(),
		ParentPlanID: parentPlanID,
		Step:         step,
		State:        StatePending,
		Metadata:     make(map[string]any),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UpdateState advances the fragment's state, recording the transition in
// the trace. Invalid transitions are rejected.
func (f *PlanFragment) UpdateState(newState State, result any) error {
	allowed := false
	for _, s := range validTransitions[f.State] {
		if s == newState {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid fragment state transition %s -> %s", f.State, newState)
	}

	f.State = newState
	f.UpdatedAt = time.Now()
	if result != nil {
		f.Result = result
	}
	f.Trace = append(f.Trace, TraceEntry{
		State:     newState,
		Result:    result,
		Timestamp: f.UpdatedAt,
	})
	return nil
}

// AssignAgent records the fragment's owner.
func (f *PlanFragment) AssignAgent(agentID string) {
	f.AssignedAgent = agentID
	f.UpdatedAt = time.Now()
	f.Trace = append(f.Trace, TraceEntry{
		Action:    "assigned",
		Agent:     agentID,
		Timestamp: f.UpdatedAt,
	})
}

// =============================================================================
// Dependency Graph
// =============================================================================

// DependencyGraph tracks fragment dependencies and completion for parallel
// scheduling. Not internally synchronized; the parallel engine guards all
// access with the same lock it uses for blackboard commits, which is what
// makes ready-set reads consistent with dependency completion.
type DependencyGraph struct {
	fragments    map[string]*PlanFragment
	dependencies map[string]map[string]struct{}
	dependents   map[string]map[string]struct{}
	completed    map[string]struct{}
	order        []string
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		fragments:    make(map[string]*PlanFragment),
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
		completed:    make(map[string]struct{}),
	}
}

// AddFragment registers a fragment and its direct dependencies.
func (g *DependencyGraph) AddFragment(f *PlanFragment, dependsOn []string) {
	id := f.FragmentID
	g.fragments[id] = f
	g.order = append(g.order, id)
	if g.dependencies[id] == nil {
		g.dependencies[id] = make(map[string]struct{})
	}
	for _, dep := range dependsOn {
		g.dependencies[id][dep] = struct{}{}
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[string]struct{})
		}
		g.dependents[dep][id] = struct{}{}
	}
}

// MarkCompleted records a fragment as done for scheduling purposes. Failed
// fragments are marked too; completion here means "will not run again".
func (g *DependencyGraph) MarkCompleted(fragmentID string) {
	g.completed[fragmentID] = struct{}{}
}

// ReadyFragments returns the fragments not yet completed whose every
// dependency is completed, in insertion order.
func (g *DependencyGraph) ReadyFragments() []*PlanFragment {
	var ready []*PlanFragment
	for _, id := range g.order {
		if _, done := g.completed[id]; done {
			continue
		}
		blocked := false
		for dep := range g.dependencies[id] {
			if _, done := g.completed[dep]; !done {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, g.fragments[id])
		}
	}
	return ready
}

// IsBlocked reports whether a fragment still has unresolved dependencies.
func (g *DependencyGraph) IsBlocked(fragmentID string) bool {
	for dep := range g.dependencies[fragmentID] {
		if _, done := g.completed[dep]; !done {
			return true
		}
	}
	return false
}

// AllCompleted reports whether every registered fragment is completed.
func (g *DependencyGraph) AllCompleted() bool {
	return len(g.completed) == len(g.fragments)
}

// Dependents returns the ids of fragments that depend on the given one.
func (g *DependencyGraph) Dependents(fragmentID string) []string {
	var out []string
	for id := range g.dependents[fragmentID] {
		out = append(out, id)
	}
	return out
}
