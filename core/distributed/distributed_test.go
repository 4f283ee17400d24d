package distributed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/delegation"
	"github.com/adalundhe/metapersona/core/messaging"
)

func TestFragmentStateMachine(t *testing.T) {
	f := NewFragment("do a thing", "plan-1")
	assert.Equal(t, StatePending, f.State)

	// Completing before starting is rejected.
	assert.Error(t, f.UpdateState(StateCompleted, nil))

	require.NoError(t, f.UpdateState(StateInProgress, nil))
	require.NoError(t, f.UpdateState(StateCompleted, "done"))
	assert.Equal(t, "done", f.Result)

	// Terminal states are final.
	assert.Error(t, f.UpdateState(StateInProgress, nil))
	assert.Error(t, f.UpdateState(StateFailed, nil))

	// Transitions and the assignment are traced.
	f2 := NewFragment("other", "plan-1")
	f2.AssignAgent("writer")
	require.NoError(t, f2.UpdateState(StateInProgress, nil))
	require.NoError(t, f2.UpdateState(StateFailed, nil))
	assert.Len(t, f2.Trace, 3)
	assert.Equal(t, "assigned", f2.Trace[0].Action)
}

func TestDependencyGraphReadiness(t *testing.T) {
	g := NewDependencyGraph()
	a := NewFragment("step a", "p")
	b := NewFragment("step b", "p")
	c := NewFragment("step c", "p")

	g.AddFragment(a, nil)
	g.AddFragment(b, nil)
	g.AddFragment(c, []string{a.FragmentID, b.FragmentID})

	ready := g.ReadyFragments()
	require.Len(t, ready, 2)
	assert.True(t, g.IsBlocked(c.FragmentID))

	// One of two dependencies done: still blocked.
	g.MarkCompleted(a.FragmentID)
	ready = g.ReadyFragments()
	require.Len(t, ready, 1)
	assert.Equal(t, b.FragmentID, ready[0].FragmentID)

	// Both done: c becomes ready.
	g.MarkCompleted(b.FragmentID)
	ready = g.ReadyFragments()
	require.Len(t, ready, 1)
	assert.Equal(t, c.FragmentID, ready[0].FragmentID)
	assert.False(t, g.IsBlocked(c.FragmentID))

	g.MarkCompleted(c.FragmentID)
	assert.True(t, g.AllCompleted())
	assert.Contains(t, g.Dependents(a.FragmentID), c.FragmentID)
}

func echoRouter() *messaging.Router {
	router := messaging.NewRouter(nil)
	for _, id := range []string{"research_agent", "writing_agent", "generalist_agent"} {
		id := id
		router.RegisterAgent(id, func(msg *messaging.Envelope) *messaging.Envelope {
			step, _ := msg.PayloadString("step")
			return msg.Reply(messaging.IntentResponse, map[string]any{"result": id + ": " + step})
		})
	}
	return router
}

func TestParallelExecuteRespectsDependencies(t *testing.T) {
	router := echoRouter()
	board := blackboard.New()
	engine := NewParallelEngine(router, board, 4, nil)

	a := NewFragment("research part one", "p")
	b := NewFragment("research part two", "p")
	c := NewFragment("summarize both", "p")
	for _, f := range []*PlanFragment{a, b, c} {
		f.AssignAgent("research_agent")
	}
	c.Dependencies = []string{a.FragmentID, b.FragmentID}

	executed := engine.DispatchParallelFragments(context.Background(), []*PlanFragment{a, b, c}, nil)
	require.Len(t, executed, 3)

	for _, f := range []*PlanFragment{a, b, c} {
		assert.Equal(t, StateCompleted, f.State)
	}
	// c ran in the batch after its dependencies.
	assert.Equal(t, c.FragmentID, executed[2].FragmentID)

	// Group membership and fragment states landed on the blackboard.
	groups := board.ListParallelGroups()
	require.Len(t, groups, 1)
	assert.Len(t, board.ParallelGroup(groups[0]), 3)
}

func TestParallelExecuteStallDetection(t *testing.T) {
	router := echoRouter()
	engine := NewParallelEngine(router, blackboard.New(), 2, nil)

	a := NewFragment("step a", "p")
	b := NewFragment("step b", "p")
	a.AssignAgent("research_agent")
	b.AssignAgent("research_agent")
	// b depends on a fragment nobody will ever complete.
	b.Dependencies = []string{"ghost-fragment"}

	executed := engine.DispatchParallelFragments(context.Background(), []*PlanFragment{a, b}, nil)

	// a ran; b stayed blocked and the loop exited instead of hanging.
	require.Len(t, executed, 1)
	assert.Equal(t, a.FragmentID, executed[0].FragmentID)
	assert.Equal(t, StatePending, b.State)
}

func TestParallelExecuteFailsFragmentWithUnknownAgent(t *testing.T) {
	router := messaging.NewRouter(nil)
	engine := NewParallelEngine(router, blackboard.New(), 2, nil)

	f := NewFragment("step", "p")
	f.AssignAgent("nobody")

	executed := engine.DispatchParallelFragments(context.Background(), []*PlanFragment{f}, nil)
	require.Len(t, executed, 1)
	assert.Equal(t, StateFailed, f.State)
}

func TestMergeResultsStrategies(t *testing.T) {
	board := blackboard.New()
	engine := NewParallelEngine(echoRouter(), board, 2, nil)

	lo := NewFragment("low", "p")
	hi := NewFragment("high", "p")
	lo.Metadata["priority"] = 1
	hi.Metadata["priority"] = 5
	lo.Metadata["agent_weight"] = 0.9
	hi.Metadata["agent_weight"] = 0.1
	require.NoError(t, lo.UpdateState(StateInProgress, nil))
	require.NoError(t, lo.UpdateState(StateCompleted, "low result"))
	require.NoError(t, hi.UpdateState(StateInProgress, nil))
	require.NoError(t, hi.UpdateState(StateCompleted, "high result"))

	fragments := []*PlanFragment{lo, hi}

	assert.Equal(t, "high result", engine.MergeResults(fragments, "g1", MergePriority))
	assert.Equal(t, "low result", engine.MergeResults(fragments, "g1", MergeAgentWeighted))

	// hi was completed last, so last write wins picks it.
	assert.Equal(t, "high result", engine.MergeResults(fragments, "g1", MergeLastWriteWins))

	// Unknown strategy concatenates.
	all := engine.MergeResults(fragments, "g1", "unknown")
	assert.Equal(t, []any{"low result", "high result"}, all)

	// Every merge decision is logged.
	assert.Len(t, board.MergeHistory("g1"), 4)
}

func TestMergeResultsEmptyGroup(t *testing.T) {
	engine := NewParallelEngine(echoRouter(), blackboard.New(), 2, nil)

	for _, strategy := range []string{MergeLastWriteWins, MergePriority, MergeAgentWeighted, "unknown"} {
		assert.Nil(t, engine.MergeResults(nil, "g-empty", strategy))
	}
}

func TestNegotiationPicksHighestBid(t *testing.T) {
	board := blackboard.New()
	protocol := NewNegotiationProtocol(board, nil)

	f := NewFragment("draft the report", "plan-1")
	outcome := protocol.Initiate(f, []Bidder{
		{AgentID: "research_agent", Role: "research"},
		{AgentID: "writing_agent", Role: "writing"},
		{AgentID: "generalist_agent", Role: "generalist"},
	}, delegation.TypeWriting)

	assert.Equal(t, "writing_agent", outcome.SelectedAgent)
	require.Len(t, outcome.Log, 3)

	logs := board.ListNegotiationLogs("plan-1")
	assert.Len(t, logs, 1)
}

func TestNegotiationTieBreaksByOrder(t *testing.T) {
	protocol := NewNegotiationProtocol(blackboard.New(), nil)

	f := NewFragment("anything", "p")
	outcome := protocol.Initiate(f, []Bidder{
		{AgentID: "first", Role: "generalist"},
		{AgentID: "second", Role: "generalist"},
	}, delegation.TypeExecution)

	assert.Equal(t, "first", outcome.SelectedAgent)
}

func TestNegotiationSingleCandidateShortCircuits(t *testing.T) {
	protocol := NewNegotiationProtocol(blackboard.New(), nil)

	f := NewFragment("anything", "p")
	outcome := protocol.Initiate(f, []Bidder{{AgentID: "only", Role: "research"}}, delegation.TypeResearch)

	assert.Equal(t, "only", outcome.SelectedAgent)
	assert.Empty(t, outcome.Log)
}

type fixedGenerator struct {
	steps []string
	err   error
}

func (g *fixedGenerator) GeneratePlanSteps(context.Context, string, map[string]any) ([]string, error) {
	return g.steps, g.err
}

func newPlanningFixture(router *messaging.Router, board *blackboard.Blackboard, candidates CandidateFunc) *PlanningEngine {
	rules := delegation.NewRulesEngine(map[delegation.TaskType]string{
		delegation.TypeResearch: "research_agent",
		delegation.TypeWriting:  "writing_agent",
	}, "generalist_agent", nil)
	parallel := NewParallelEngine(router, board, 4, nil)
	return NewPlanningEngine(router, board, rules, parallel, candidates, nil)
}

func TestGeneratePlan(t *testing.T) {
	board := blackboard.New()
	engine := newPlanningFixture(echoRouter(), board, nil)

	plan := engine.GeneratePlan(context.Background(), "build a report",
		&fixedGenerator{steps: []string{"gather sources", "draft the report"}}, nil)

	require.Len(t, plan.Steps, 2)
	assert.NotEmpty(t, plan.PlanID)
	assert.NotNil(t, board.PlanState(plan.PlanID))
}

func TestGeneratePlanFallsBackToSingleStep(t *testing.T) {
	engine := newPlanningFixture(echoRouter(), blackboard.New(), nil)

	plan := engine.GeneratePlan(context.Background(), "build a report",
		&fixedGenerator{err: errors.New("llm down")}, nil)

	assert.Equal(t, []string{"build a report"}, plan.Steps)
}

func TestFragmentPlanOnePerStep(t *testing.T) {
	engine := newPlanningFixture(echoRouter(), blackboard.New(), nil)
	plan := Plan{PlanID: "p1", Steps: []string{"a", "b", "c"}}

	fragments := engine.FragmentPlan(plan)
	require.Len(t, fragments, 3)
	for i, f := range fragments {
		assert.Equal(t, plan.Steps[i], f.Step)
		assert.Equal(t, "p1", f.ParentPlanID)
		assert.Equal(t, StatePending, f.State)
	}
}

func TestAssignFragmentsPrefersWritingAgents(t *testing.T) {
	board := blackboard.New()
	candidates := func(taskType delegation.TaskType) []Bidder {
		return []Bidder{
			{AgentID: "generalist_agent", Role: "generalist"},
			{AgentID: "writing_agent", Role: "writing"},
		}
	}
	engine := newPlanningFixture(echoRouter(), board, candidates)

	fragments := engine.FragmentPlan(Plan{PlanID: "p1", Steps: []string{"draft the summary"}})
	engine.AssignFragments(fragments, nil)

	assert.Equal(t, "writing_agent", fragments[0].AssignedAgent)
	assert.Len(t, board.ListPlanFragments("p1"), 1)
}

func TestAssignFragmentsNegotiatesContestedOwnership(t *testing.T) {
	board := blackboard.New()
	candidates := func(delegation.TaskType) []Bidder {
		return []Bidder{
			{AgentID: "generalist_agent", Role: "generalist"},
			{AgentID: "research_agent", Role: "research"},
		}
	}
	engine := newPlanningFixture(echoRouter(), board, candidates)

	fragments := engine.FragmentPlan(Plan{PlanID: "p1", Steps: []string{"investigate the outage"}})
	engine.AssignFragments(fragments, nil)

	// research bids high for a research step.
	assert.Equal(t, "research_agent", fragments[0].AssignedAgent)
	assert.Len(t, board.ListNegotiationLogs("p1"), 1)
}

func TestAssignFragmentsFallsBackToRules(t *testing.T) {
	engine := newPlanningFixture(echoRouter(), blackboard.New(), nil)

	fragments := engine.FragmentPlan(Plan{PlanID: "p1", Steps: []string{"investigate the outage"}})
	engine.AssignFragments(fragments, nil)

	assert.Equal(t, "research_agent", fragments[0].AssignedAgent)
}

func TestExecuteDistributedPlanSequential(t *testing.T) {
	board := blackboard.New()
	engine := newPlanningFixture(echoRouter(), board, nil)

	fragments := engine.FragmentPlan(Plan{PlanID: "p1", Steps: []string{"investigate", "draft"}})
	engine.AssignFragments(fragments, nil)
	executed := engine.ExecuteDistributedPlan(context.Background(), fragments, nil, false)

	require.Len(t, executed, 2)
	for _, f := range executed {
		assert.Equal(t, StateCompleted, f.State)
		assert.NotNil(t, f.Result)
	}
}

func TestExecuteDistributedPlanRoutesThroughParallelOnDependencies(t *testing.T) {
	board := blackboard.New()
	engine := newPlanningFixture(echoRouter(), board, nil)

	fragments := engine.FragmentPlan(Plan{PlanID: "p1", Steps: []string{"investigate", "draft"}})
	engine.AssignFragments(fragments, nil)
	fragments[1].Dependencies = []string{fragments[0].FragmentID}

	executed := engine.ExecuteDistributedPlan(context.Background(), fragments, nil, false)
	require.Len(t, executed, 2)
	assert.NotEmpty(t, board.ListParallelGroups())
}
