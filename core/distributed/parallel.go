package distributed

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/messaging"
)

// DefaultMaxWorkers bounds concurrent fragment execution.
const DefaultMaxWorkers = 4

// Result-merge strategies.
const (
	MergeLastWriteWins = "last_write_wins"
	MergePriority      = "priority"
	MergeAgentWeighted = "agent_weighted"
)

// Dispatcher routes a message to its receiver. Satisfied by
// messaging.Router.
type Dispatcher interface {
	RouteMessage(msg *messaging.Envelope) *messaging.Envelope
}

// ParallelEngine executes mutually unblocked fragments concurrently via a
// bounded worker pool. A single lock keeps dependency-graph mutation and
// blackboard commits atomic relative to each other.
type ParallelEngine struct {
	mu         sync.Mutex
	router     Dispatcher
	board      *blackboard.Blackboard
	maxWorkers int
	logger     *slog.Logger
}

// NewParallelEngine creates an engine with the given worker bound.
// maxWorkers <= 0 uses the default.
func NewParallelEngine(router Dispatcher, board *blackboard.Blackboard, maxWorkers int, logger *slog.Logger) *ParallelEngine {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParallelEngine{
		router:     router,
		board:      board,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Execute runs fragments until all complete or no progress is possible.
// A round with incomplete fragments but an empty ready set is a stall
// (unresolvable dependencies); the loop exits and returns the fragments
// that did run rather than hanging.
func (e *ParallelEngine) Execute(ctx context.Context, graph *DependencyGraph, execContext map[string]any) []*PlanFragment {
	var results []*PlanFragment

	for {
		e.mu.Lock()
		done := graph.AllCompleted()
		var ready []*PlanFragment
		if !done {
			ready = graph.ReadyFragments()
		}
		e.mu.Unlock()

		if done {
			break
		}
		if len(ready) == 0 {
			e.logger.Warn("no ready fragments with work remaining, stall detected")
			break
		}

		sem := make(chan struct{}, e.maxWorkers)
		var wg sync.WaitGroup
		batch := make([]*PlanFragment, len(ready))

		for i, fragment := range ready {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, f *PlanFragment) {
				defer wg.Done()
				defer func() { <-sem }()
				e.executeFragment(ctx, f, execContext, graph)
				batch[i] = f
			}(i, fragment)
		}
		wg.Wait()
		results = append(results, batch...)
	}
	return results
}

// executeFragment runs one fragment: mark in progress, dispatch to the
// assigned agent, record the terminal state, commit to the blackboard, and
// mark the graph, the last three under the shared lock.
func (e *ParallelEngine) executeFragment(_ context.Context, f *PlanFragment, execContext map[string]any, graph *DependencyGraph) {
	e.mu.Lock()
	if err := f.UpdateState(StateInProgress, nil); err != nil {
		e.logger.Warn("fragment not runnable", "fragment_id", f.FragmentID, "error", err)
		graph.MarkCompleted(f.FragmentID)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	response := e.router.RouteMessage(messaging.New(
		"parallel_execution_engine",
		f.AssignedAgent,
		messaging.IntentExecuteFragment,
		map[string]any{"fragment": f.FragmentID, "step": f.Step, "context": execContext},
		map[string]any{"plan_id": f.ParentPlanID, "fragment_id": f.FragmentID},
	))

	e.mu.Lock()
	defer e.mu.Unlock()

	if response != nil && response.Payload != nil {
		_ = f.UpdateState(StateCompleted, response.Payload["result"])
	} else {
		_ = f.UpdateState(StateFailed, nil)
	}
	e.board.Update(e.fragmentKey(f), fragmentSnapshot(f), "parallel_execution_engine", map[string]any{
		"plan_id":        f.ParentPlanID,
		"assigned_agent": f.AssignedAgent,
	})
	graph.MarkCompleted(f.FragmentID)
}

// DispatchParallelFragments builds a dependency graph from the fragments'
// declared dependencies, tags every fragment with a shared parallel group
// id, executes the group, and logs its completion. This is the entry point
// the router layer uses for fragment fan-out.
func (e *ParallelEngine) DispatchParallelFragments(ctx context.Context, fragments []*PlanFragment, execContext map[string]any) []*PlanFragment {
	graph := NewDependencyGraph()
	groupID := uuid.New().String()

	fragmentIDs := make([]string, len(fragments))
	for i, f := range fragments {
		if f.Metadata == nil {
			f.Metadata = make(map[string]any)
		}
		f.Metadata[messaging.MetaParallelGroupID] = groupID
		graph.AddFragment(f, f.Dependencies)
		fragmentIDs[i] = f.FragmentID
	}
	e.board.Write("parallel_group:"+groupID, fragmentIDs, "router", map[string]any{"group_id": groupID})

	executed := e.Execute(ctx, graph, execContext)

	e.logger.Info("parallel group complete",
		"group_id", groupID,
		"fragments", len(executed))
	return executed
}

// MergeResults collapses a group's fragment results by the named strategy.
// An unknown strategy returns the full result list rather than guessing, and
// an empty group merges to nil. Every decision is logged to the blackboard.
func (e *ParallelEngine) MergeResults(fragments []*PlanFragment, groupID, strategy string) any {
	if len(fragments) == 0 {
		return nil
	}

	var merged any

	switch strategy {
	case MergeLastWriteWins:
		latest := fragments[0]
		for _, f := range fragments[1:] {
			if f.UpdatedAt.After(latest.UpdatedAt) {
				latest = f
			}
		}
		merged = latest.Result
	case MergePriority:
		merged = pickByMetadata(fragments, "priority")
	case MergeAgentWeighted:
		merged = pickByMetadata(fragments, "agent_weight")
	default:
		all := make([]any, len(fragments))
		for i, f := range fragments {
			all[i] = f.Result
		}
		merged = all
	}

	inputs := make([]any, len(fragments))
	for i, f := range fragments {
		inputs[i] = f.FragmentID
	}
	e.board.LogMergeDecision(blackboard.MergeDecision{
		GroupID:  groupID,
		Strategy: strategy,
		Inputs:   inputs,
		Result:   merged,
		Author:   "parallel_execution_engine",
	})
	return merged
}

// pickByMetadata returns the result of the fragment with the highest
// numeric metadata value under key, defaulting to 0. Stable: ties keep
// the earlier fragment.
func pickByMetadata(fragments []*PlanFragment, key string) any {
	sorted := make([]*PlanFragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return metadataNumber(sorted[i], key) > metadataNumber(sorted[j], key)
	})
	return sorted[0].Result
}

func metadataNumber(f *PlanFragment, key string) float64 {
	switch v := f.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// fragmentKey picks the blackboard key for a fragment's state: group-scoped
// when it belongs to a parallel group, plan-scoped otherwise.
func (e *ParallelEngine) fragmentKey(f *PlanFragment) string {
	if groupID, ok := f.Metadata[messaging.MetaParallelGroupID].(string); ok && groupID != "" {
		return blackboard.FragmentKey(groupID, f.FragmentID)
	}
	return blackboard.PlanFragmentKey(f.ParentPlanID, f.FragmentID)
}

// fragmentSnapshot is the blackboard representation of a fragment.
func fragmentSnapshot(f *PlanFragment) map[string]any {
	return map[string]any{
		"fragment_id":    f.FragmentID,
		"parent_plan_id": f.ParentPlanID,
		"step":           f.Step,
		"assigned_agent": f.AssignedAgent,
		"dependencies":   f.Dependencies,
		"state":          string(f.State),
		"result":         f.Result,
		"metadata":       f.Metadata,
		"updated_at":     f.UpdatedAt,
	}
}
