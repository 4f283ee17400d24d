package blackboard

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Convenience Views
// =============================================================================
//
// Read helpers over the key conventions used by the distributed planning and
// parallel execution engines. These are queries, not new state; everything
// here is derived from regular entries.

// MergeDecision records one result-merge outcome for a parallel group or
// consensus round.
type MergeDecision struct {
	GroupID   string    `json:"group_id"`
	Strategy  string    `json:"strategy"`
	Inputs    []any     `json:"inputs,omitempty"`
	Result    any       `json:"result"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// ListParallelGroups returns the distinct parallel group ids that have
// published fragment state.
func (b *Blackboard) ListParallelGroups() []string {
	keys := b.Keys("parallel_group:")

	seen := make(map[string]struct{})
	var groups []string
	for _, k := range keys {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) < 2 {
			continue
		}
		if _, ok := seen[parts[1]]; !ok {
			seen[parts[1]] = struct{}{}
			groups = append(groups, parts[1])
		}
	}
	sort.Strings(groups)
	return groups
}

// ParallelGroup returns every fragment state published under a group id,
// keyed by fragment id.
func (b *Blackboard) ParallelGroup(groupID string) map[string]any {
	prefix := "parallel_group:" + groupID + ":fragment:"
	out := make(map[string]any)
	for _, k := range b.Keys(prefix) {
		fragmentID := strings.TrimPrefix(k, prefix)
		out[fragmentID] = b.Read(k)
	}
	return out
}

// LogMergeDecision records a merge outcome for a group. Decisions accumulate
// through entry history, so repeated merges for the same group are all
// retrievable via MergeHistory.
func (b *Blackboard) LogMergeDecision(decision MergeDecision) {
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now()
	}
	b.Update(MergeKey(decision.GroupID), decision, decision.Author, nil)
}

// MergeHistory returns every merge decision recorded for a group, oldest
// first.
func (b *Blackboard) MergeHistory(groupID string) []MergeDecision {
	entry := b.ReadEntry(MergeKey(groupID))
	if entry == nil {
		return nil
	}

	var out []MergeDecision
	for _, rev := range entry.History {
		if d, ok := rev.Value.(MergeDecision); ok {
			out = append(out, d)
		}
	}
	if d, ok := entry.Value.(MergeDecision); ok {
		out = append(out, d)
	}
	return out
}

// ListPlanFragments returns the fragment states published under a plan id,
// keyed by fragment id.
func (b *Blackboard) ListPlanFragments(planID string) map[string]any {
	prefix := "plan:" + planID + ":fragment:"
	out := make(map[string]any)
	for _, k := range b.Keys(prefix) {
		fragmentID := strings.TrimPrefix(k, prefix)
		out[fragmentID] = b.Read(k)
	}
	return out
}

// PlanState returns the top-level state published for a plan, or nil.
func (b *Blackboard) PlanState(planID string) any {
	return b.Read(PlanKey(planID))
}

// ListNegotiationLogs returns the negotiation outcomes recorded for a plan,
// keyed by fragment id.
func (b *Blackboard) ListNegotiationLogs(planID string) map[string]any {
	prefix := "plan:" + planID + ":negotiation:"
	out := make(map[string]any)
	for _, k := range b.Keys(prefix) {
		fragmentID := strings.TrimPrefix(k, prefix)
		out[fragmentID] = b.Read(k)
	}
	return out
}
