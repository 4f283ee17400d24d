package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/messaging"
)

const passingEval = `{"clarity": 5, "accuracy": 5, "completeness": 5, "alignment": 4, "needs_refinement": false}`

func TestAgentsSatisfyContract(t *testing.T) {
	cfg := Config{Provider: llm.NewMockProvider()}
	for _, a := range []agent.Agent{
		NewResearchAgent(cfg),
		NewCodeAgent(cfg),
		NewWriterAgent(cfg),
		NewGeneralistAgent(cfg),
		NewCritiqueAgent(cfg),
		NewPlanningAgent(cfg),
		NewPersonaAlignmentAgent(cfg),
	} {
		assert.NotEmpty(t, a.ID())
		assert.NotEmpty(t, a.Role())
		assert.NotEmpty(t, a.Description())
		assert.NotEmpty(t, a.Capabilities())
	}
}

func TestCanHandleTaskHeuristics(t *testing.T) {
	cfg := Config{Provider: llm.NewMockProvider()}
	research := NewResearchAgent(cfg)
	code := NewCodeAgent(cfg)
	writer := NewWriterAgent(cfg)
	generalist := NewGeneralistAgent(cfg)

	tests := []struct {
		name  string
		task  string
		best  agent.Agent
		worst agent.Agent
	}{
		{"research task", "investigate and research the competitor landscape", research, code},
		{"coding task", "write a function to parse csv files in python", code, writer},
		{"writing task", "write email to the board about quarterly results", writer, code},
		{"general chat", "tell me about your day", generalist, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bestScore := tt.best.CanHandleTask(tt.task, nil)
			for _, other := range []agent.Agent{research, code, writer, generalist} {
				if other == tt.best {
					continue
				}
				assert.GreaterOrEqual(t, bestScore, other.CanHandleTask(tt.task, nil),
					"%s should win %q over %s", tt.best.ID(), tt.task, other.ID())
			}
			if tt.worst != nil {
				assert.Less(t, tt.worst.CanHandleTask(tt.task, nil), 0.5)
			}
		})
	}
}

func TestHandleTask(t *testing.T) {
	mock := llm.NewMockProvider("the findings")
	research := NewResearchAgent(Config{Provider: mock})

	result, err := research.HandleTask(context.Background(), "research the market", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "the findings", result.Output)
	assert.Equal(t, "research_agent", result.AgentID)
}

func TestHandleTaskWithoutProvider(t *testing.T) {
	research := NewResearchAgent(Config{})

	_, err := research.HandleTask(context.Background(), "research the market", nil)
	require.Error(t, err)
}

func TestResearchMessageWritesResults(t *testing.T) {
	router := messaging.NewRouter(nil)
	board := blackboard.New()
	mock := llm.NewMockProvider("finding one", "finding two")
	NewResearchAgent(Config{Provider: mock, Router: router, Board: board})

	response := router.RouteMessage(messaging.New("caller", "research_agent", "research_request", map[string]any{
		"query": "market research",
		"steps": []string{"find market size", "find competitors"},
	}, nil))

	require.NotNil(t, response)
	assert.Equal(t, "research_response", response.Intent)
	output, ok := response.PayloadString("output")
	require.True(t, ok)
	assert.Equal(t, "finding one\nfinding two", output)
	assert.NotNil(t, board.Read("research:find market size"))
	assert.NotNil(t, board.Read("research:find competitors"))
}

func TestDelegationAcrossAgents(t *testing.T) {
	router := messaging.NewRouter(nil)
	mock := llm.NewMockProvider()
	NewWriterAgent(Config{Provider: mock, Router: router})
	NewResearchAgent(Config{Provider: mock, Router: router})

	// A research task addressed at the writer should hop to the researcher.
	response := router.RouteMessage(messaging.New("caller", "writing_agent", messaging.IntentRequest, map[string]any{
		"task": "investigate the latest competitor filings",
	}, map[string]any{messaging.MetaTraceID: "t-delegate"}))

	require.NotNil(t, response)
	handledBy, ok := response.PayloadString("handled_by")
	require.True(t, ok)
	assert.Equal(t, "research_agent", handledBy)

	hops := router.TaskLineage("t-delegate")
	require.Len(t, hops, 1)
	assert.Equal(t, "writing_agent", hops[0].From)
	assert.Equal(t, "research_agent", hops[0].To)
}

func TestDelegationDepthRefused(t *testing.T) {
	router := messaging.NewRouter(nil)
	NewWriterAgent(Config{Provider: llm.NewMockProvider(), Router: router})

	response := router.RouteMessage(messaging.New("caller", "writing_agent", messaging.IntentRequest, map[string]any{
		"task": "investigate the latest competitor filings",
	}, map[string]any{messaging.MetaDelegationDepth: messaging.MaxDelegationDepth + 1}))

	require.NotNil(t, response)
	assert.Equal(t, messaging.IntentError, response.Intent)
}

func TestSelfSentRequestRejected(t *testing.T) {
	router := messaging.NewRouter(nil)
	mock := llm.NewMockProvider("drafted locally")
	NewWriterAgent(Config{Provider: mock, Router: router})
	NewResearchAgent(Config{Provider: llm.NewMockProvider(), Router: router})

	// A request an agent sends to itself is a delegation cycle and gets an
	// error reply, not an answer.
	response := router.RouteMessage(messaging.New("writing_agent", "writing_agent", messaging.IntentRequest, map[string]any{
		"task": "investigate then draft",
	}, nil))

	require.NotNil(t, response)
	assert.Equal(t, messaging.IntentError, response.Intent)
	errText, ok := response.PayloadString("error")
	require.True(t, ok)
	assert.Contains(t, errText, "self-delegation")
	assert.Zero(t, mock.CallCount())
}

func TestSelfSentNonRequestHandledLocally(t *testing.T) {
	router := messaging.NewRouter(nil)
	mock := llm.NewMockProvider("the revised draft")
	NewWriterAgent(Config{Provider: mock, Router: router})

	// Only the request intent trips the loop guard; a self-addressed refine
	// still runs.
	response := router.RouteMessage(messaging.New("writing_agent", "writing_agent", messaging.IntentRefine, map[string]any{
		"output":   "the original draft",
		"critique": "tighten the opening",
	}, nil))

	require.NotNil(t, response)
	refined, ok := response.PayloadString("refined")
	require.True(t, ok)
	assert.Equal(t, "the revised draft", refined)
}

func TestDelegationFallsBackLocallyWhenTargetMissing(t *testing.T) {
	router := messaging.NewRouter(nil)
	mock := llm.NewMockProvider("handled anyway")
	NewWriterAgent(Config{Provider: mock, Router: router})

	response := router.RouteMessage(messaging.New("caller", "writing_agent", messaging.IntentRequest, map[string]any{
		"task": "investigate the latest competitor filings",
	}, nil))

	require.NotNil(t, response)
	handledBy, _ := response.PayloadString("handled_by")
	assert.Equal(t, "writing_agent", handledBy)
}

func TestCritiqueMessage(t *testing.T) {
	router := messaging.NewRouter(nil)
	board := blackboard.New()
	mock := llm.NewMockProvider(passingEval)
	NewCritiqueAgent(Config{Provider: mock, Router: router, Board: board})

	response := router.RouteMessage(messaging.New("caller", "critique_agent", messaging.IntentCritiqueRequest, map[string]any{
		"output": "the draft under review",
	}, nil))

	require.NotNil(t, response)
	assert.Equal(t, "critique_response", response.Intent)
	critique, ok := response.PayloadString("critique")
	require.True(t, ok)
	assert.Contains(t, critique, "alignment 4/5")
	assert.Contains(t, critique, "No refinement needed.")
}

func TestWriterRefineIncludesCritique(t *testing.T) {
	router := messaging.NewRouter(nil)
	mock := llm.NewMockProvider("the revised draft")
	NewWriterAgent(Config{Provider: mock, Router: router})

	response := router.RouteMessage(messaging.New("caller", "writing_agent", messaging.IntentRefine, map[string]any{
		"output":   "write up the original draft",
		"critique": "too verbose",
	}, nil))

	require.NotNil(t, response)
	refined, ok := response.PayloadString("refined")
	require.True(t, ok)
	assert.Equal(t, "the revised draft", refined)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[1].Content, "too verbose")
}

func TestPlanningMessage(t *testing.T) {
	router := messaging.NewRouter(nil)
	board := blackboard.New()
	mock := llm.NewMockProvider(`["organize the outline", "organize the details"]`)
	NewPlanningAgent(Config{Provider: mock, Router: router, Board: board})

	response := router.RouteMessage(messaging.New("caller", "planning_agent", "planning_request", map[string]any{
		"task": "plan the product launch",
	}, nil))

	require.NotNil(t, response)
	assert.Equal(t, "planning_response", response.Intent)
	plan, ok := response.PayloadString("plan")
	require.True(t, ok)
	assert.Equal(t, "organize the outline\norganize the details", plan)
	assert.NotNil(t, board.Read("plan:plan the product launch"))
}

func TestPlanningGeneratePlanSteps(t *testing.T) {
	mock := llm.NewMockProvider(`["step one", "step two"]`)
	planning := NewPlanningAgent(Config{Provider: mock})

	steps, err := planning.GeneratePlanSteps(context.Background(), "launch the product", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"step one", "step two"}, steps)
}

func TestAlignmentWithoutProviderTagsOutput(t *testing.T) {
	router := messaging.NewRouter(nil)
	NewPersonaAlignmentAgent(Config{Router: router})

	response := router.RouteMessage(messaging.New("caller", "persona_alignment_agent", "alignment_request", map[string]any{
		"output": "align the raw text",
	}, nil))

	require.NotNil(t, response)
	aligned, ok := response.PayloadString("aligned_output")
	require.True(t, ok)
	assert.Equal(t, "[persona-aligned] align the raw text", aligned)
}
