package distributed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/delegation"
	"github.com/adalundhe/metapersona/core/messaging"
)

// PlanGenerator produces the ordered steps of a plan. Implemented by the
// planning agent.
type PlanGenerator interface {
	GeneratePlanSteps(ctx context.Context, request string, planContext map[string]any) ([]string, error)
}

// Plan is a generated multi-step plan with traceability.
type Plan struct {
	PlanID      string         `json:"plan_id"`
	UserRequest string         `json:"user_request"`
	Steps       []string       `json:"steps"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CandidateFunc returns the bidders eligible for a task type. Wired from
// the agent registry.
type CandidateFunc func(taskType delegation.TaskType) []Bidder

// PlanningEngine orchestrates distributed plan generation, fragmentation,
// assignment with negotiation, and execution.
type PlanningEngine struct {
	router      Dispatcher
	board       *blackboard.Blackboard
	rules       *delegation.RulesEngine
	classifier  *delegation.Classifier
	negotiation *NegotiationProtocol
	parallel    *ParallelEngine
	candidates  CandidateFunc
	logger      *slog.Logger
}

// NewPlanningEngine wires a planning engine. candidates may be nil, in
// which case only the rules engine resolves assignments.
func NewPlanningEngine(router Dispatcher, board *blackboard.Blackboard, rules *delegation.RulesEngine, parallel *ParallelEngine, candidates CandidateFunc, logger *slog.Logger) *PlanningEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanningEngine{
		router:      router,
		board:       board,
		rules:       rules,
		classifier:  delegation.NewClassifier(),
		negotiation: NewNegotiationProtocol(board, logger),
		parallel:    parallel,
		candidates:  candidates,
		logger:      logger,
	}
}

// GeneratePlan asks the generator to decompose the request and persists
// the plan to the blackboard. A generator failure degrades to a
// single-step plan containing the request verbatim.
func (e *PlanningEngine) GeneratePlan(ctx context.Context, userRequest string, generator PlanGenerator, planContext map[string]any) Plan {
	steps, err := generator.GeneratePlanSteps(ctx, userRequest, planContext)
	if err != nil || len(steps) == 0 {
		if err != nil {
			e.logger.Warn("plan generation failed, using single-step plan", "error", err)
		}
		steps = []string{userRequest}
	}

	plan := Plan{
		PlanID:      uuid.New().String(),
		UserRequest: userRequest,
		Steps:       steps,
		Context:     planContext,
		CreatedAt:   time.Now(),
	}
	e.board.Write(blackboard.PlanKey(plan.PlanID), plan, "distributed_planning_engine", map[string]any{
		"plan_id": plan.PlanID,
	})
	return plan
}

// FragmentPlan breaks a plan into fragments, one per step. Steps are not
// sub-split.
func (e *PlanningEngine) FragmentPlan(plan Plan) []*PlanFragment {
	fragments := make([]*PlanFragment, len(plan.Steps))
	for i, step := range plan.Steps {
		fragments[i] = NewFragment(step, plan.PlanID)
	}
	return fragments
}

// AssignFragments resolves an owner for each fragment: classify the step,
// gather candidates, prefer writing-flagged agents for writing steps, and
// negotiate when more than one candidate remains. Every assignment is
// persisted.
func (e *PlanningEngine) AssignFragments(fragments []*PlanFragment, assignContext map[string]any) []*PlanFragment {
	for _, fragment := range fragments {
		taskType, _ := e.classifier.Classify(fragment.Step)

		candidates := e.candidatesFor(taskType)
		if taskType == delegation.TypeWriting {
			if writing := filterWriting(candidates); len(writing) > 0 {
				candidates = writing
			}
		}

		var assigned string
		switch len(candidates) {
		case 0:
			assigned, _ = e.rules.AgentForTask(taskType, assignContext)
		case 1:
			assigned = candidates[0].AgentID
		default:
			outcome := e.negotiation.Initiate(fragment, candidates, taskType)
			assigned = outcome.SelectedAgent
		}

		if assigned != "" {
			fragment.AssignAgent(assigned)
		}
		e.board.Write(
			blackboard.PlanFragmentKey(fragment.ParentPlanID, fragment.FragmentID),
			fragmentSnapshot(fragment),
			"distributed_planning_engine",
			map[string]any{
				"plan_id":        fragment.ParentPlanID,
				"assigned_agent": assigned,
			},
		)
	}
	return fragments
}

// ExecuteDistributedPlan runs the fragments. Declared dependencies (or an
// explicit request) route execution through the parallel engine; otherwise
// fragments run strictly sequentially via direct messages.
func (e *PlanningEngine) ExecuteDistributedPlan(ctx context.Context, fragments []*PlanFragment, execContext map[string]any, parallel bool) []*PlanFragment {
	hasDependencies := false
	for _, f := range fragments {
		if len(f.Dependencies) > 0 {
			hasDependencies = true
			break
		}
	}

	if parallel || hasDependencies {
		return e.parallel.DispatchParallelFragments(ctx, fragments, execContext)
	}

	for _, fragment := range fragments {
		if err := fragment.UpdateState(StateInProgress, nil); err != nil {
			e.logger.Warn("fragment not runnable", "fragment_id", fragment.FragmentID, "error", err)
			continue
		}

		response := e.router.RouteMessage(messaging.New(
			"distributed_planning_engine",
			fragment.AssignedAgent,
			messaging.IntentExecuteFragment,
			map[string]any{"fragment": fragment.FragmentID, "step": fragment.Step, "context": execContext},
			map[string]any{"plan_id": fragment.ParentPlanID, "fragment_id": fragment.FragmentID},
		))

		if response != nil && response.Payload != nil {
			_ = fragment.UpdateState(StateCompleted, response.Payload["result"])
		} else {
			_ = fragment.UpdateState(StateFailed, nil)
		}
		e.board.Update(
			blackboard.PlanFragmentKey(fragment.ParentPlanID, fragment.FragmentID),
			fragmentSnapshot(fragment),
			"distributed_planning_engine",
			map[string]any{
				"plan_id":        fragment.ParentPlanID,
				"assigned_agent": fragment.AssignedAgent,
			},
		)
	}
	return fragments
}

func (e *PlanningEngine) candidatesFor(taskType delegation.TaskType) []Bidder {
	if e.candidates == nil {
		return nil
	}
	return e.candidates(taskType)
}

func filterWriting(candidates []Bidder) []Bidder {
	var out []Bidder
	for _, c := range candidates {
		if strings.Contains(c.AgentID, "writing") {
			out = append(out, c)
		}
	}
	return out
}
