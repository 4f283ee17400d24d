// Package registry implements the in-memory agent directory with best
// effort persisted snapshots. Registration is idempotent overwrite, so hot
// reloading an agent instance under the same id is a supported pattern.
package registry

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/storage"
)

// SnapshotKey is the storage key the registry persists its descriptor
// snapshot under.
const SnapshotKey = "registry/agents"

// Descriptor is the persisted metadata for one registered agent.
type Descriptor struct {
	AgentID      string             `json:"agent_id"`
	Role         string             `json:"role"`
	Description  string             `json:"description,omitempty"`
	Capabilities []agent.Capability `json:"capabilities,omitempty"`
	Skills       int                `json:"skills"`
	Interactions int                `json:"interactions"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Candidate pairs an agent with its score for a specific task.
type Candidate struct {
	Agent      agent.Agent
	Confidence float64
}

// Status summarizes the registry for external surfaces.
type Status struct {
	AgentCount   int            `json:"agent_count"`
	Roles        []string       `json:"roles"`
	Interactions map[string]int `json:"interactions"`
}

// SkillCounter reports how many skills apply to an agent. Wired from the
// skills package so descriptors carry a real count.
type SkillCounter func(a agent.Agent) int

type entry struct {
	agent      agent.Agent
	descriptor Descriptor
	order      int
}

// Registry is the agent directory. All mutation is mutex-guarded; snapshot
// persistence failures are logged, never raised.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	nextOrder  int
	store      storage.Store
	skillCount SkillCounter
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore enables snapshot persistence through the given store.
func WithStore(store storage.Store) Option {
	return func(r *Registry) { r.store = store }
}

// WithSkillCounter sets the skill counter used for descriptors.
func WithSkillCounter(fn SkillCounter) Option {
	return func(r *Registry) { r.skillCount = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an agent to the directory. Registering an id that already
// exists overwrites the previous instance with a warning; the snapshot is
// rewritten either way.
func (r *Registry) Register(a agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if existing, ok := r.entries[id]; ok {
		r.logger.Warn("overwriting registered agent", "agent_id", id, "role", existing.descriptor.Role)
		existing.agent = a
		existing.descriptor.Role = a.Role()
		existing.descriptor.Description = a.Description()
		existing.descriptor.Capabilities = a.Capabilities()
		existing.descriptor.Skills = r.countSkills(a)
	} else {
		r.entries[id] = &entry{
			agent: a,
			descriptor: Descriptor{
				AgentID:      id,
				Role:         a.Role(),
				Description:  a.Description(),
				Capabilities: a.Capabilities(),
				Skills:       r.countSkills(a),
				RegisteredAt: time.Now(),
			},
			order: r.nextOrder,
		}
		r.nextOrder++
	}
	r.logger.Info("agent registered", "agent_id", id, "role", a.Role())
	r.persistSnapshot()
}

// Deregister removes an agent by id, reporting whether it was present.
func (r *Registry) Deregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, found := r.entries[agentID]
	if found {
		delete(r.entries, agentID)
		r.logger.Info("agent deregistered", "agent_id", agentID)
		r.persistSnapshot()
	}
	return found
}

// Get returns the agent registered under id, or nil.
func (r *Registry) Get(agentID string) agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[agentID]; ok {
		return e.agent
	}
	return nil
}

// GetByRole returns all agents whose role matches, case-insensitively, in
// registration order.
func (r *Registry) GetByRole(role string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*entry
	for _, e := range r.entries {
		if strings.EqualFold(e.descriptor.Role, role) {
			matched = append(matched, e)
		}
	}
	sortByOrder(matched)

	out := make([]agent.Agent, len(matched))
	for i, e := range matched {
		out[i] = e.agent
	}
	return out
}

// ListAll returns every registered agent in registration order.
func (r *Registry) ListAll() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.orderedEntries()
	out := make([]agent.Agent, len(entries))
	for i, e := range entries {
		out[i] = e.agent
	}
	return out
}

// ListRoles returns the deduplicated role set in registration order.
func (r *Registry) ListRoles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var roles []string
	for _, e := range r.orderedEntries() {
		role := e.descriptor.Role
		if _, ok := seen[role]; !ok {
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	return roles
}

// Descriptors returns a snapshot of all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptorsLocked()
}

// AgentsForTask scores every registered agent against the task and returns
// those at or above minConfidence, sorted descending by confidence. The
// sort is stable, so ties keep registration order.
func (r *Registry) AgentsForTask(task string, taskContext map[string]any, minConfidence float64) []Candidate {
	r.mu.RLock()
	entries := r.orderedEntries()
	r.mu.RUnlock()

	var candidates []Candidate
	for _, e := range entries {
		conf := e.agent.CanHandleTask(task, taskContext)
		if conf >= minConfidence {
			candidates = append(candidates, Candidate{Agent: e.agent, Confidence: conf})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// RecordInteraction bumps an agent's interaction counter. Unknown ids are
// ignored.
func (r *Registry) RecordInteraction(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[agentID]; ok {
		e.descriptor.Interactions++
	}
}

// GetStatus summarizes the registry.
func (r *Registry) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{
		AgentCount:   len(r.entries),
		Interactions: make(map[string]int, len(r.entries)),
	}
	seen := make(map[string]struct{})
	for _, e := range r.orderedEntries() {
		status.Interactions[e.descriptor.AgentID] = e.descriptor.Interactions
		if _, ok := seen[e.descriptor.Role]; !ok {
			seen[e.descriptor.Role] = struct{}{}
			status.Roles = append(status.Roles, e.descriptor.Role)
		}
	}
	return status
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) countSkills(a agent.Agent) int {
	if r.skillCount == nil {
		return 0
	}
	return r.skillCount(a)
}

// persistSnapshot rewrites the descriptor snapshot. Best effort: a storage
// failure is logged and swallowed. Must be called with r.mu held so the
// last snapshot on disk always reflects the last mutation.
func (r *Registry) persistSnapshot() {
	if r.store == nil {
		return
	}
	if err := r.store.Write(SnapshotKey, r.descriptorsLocked()); err != nil {
		r.logger.Warn("failed to persist registry snapshot", "error", err)
	}
}

// descriptorsLocked must be called with r.mu held.
func (r *Registry) descriptorsLocked() []Descriptor {
	entries := r.orderedEntries()
	out := make([]Descriptor, len(entries))
	for i, e := range entries {
		out[i] = e.descriptor
	}
	return out
}

// orderedEntries must be called with r.mu held.
func (r *Registry) orderedEntries() []*entry {
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sortByOrder(entries)
	return entries
}

func sortByOrder(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})
}
