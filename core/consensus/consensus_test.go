package consensus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/messaging"
)

func TestMergeMajority(t *testing.T) {
	board := blackboard.New()
	engine := NewEngine(board, nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "X"},
		{Agent: "b", Output: "X"},
		{Agent: "c", Output: "Y"},
	}, StrategyMajority, nil, nil, "t1")

	assert.Equal(t, "X", result.Consensus)
	assert.Equal(t, []string{"a", "b", "c"}, result.Trace.Agents)

	// The decision is always logged.
	assert.NotNil(t, board.Read(blackboard.ConsensusKey("t1")))
}

func TestMergeMajorityTieBreaksFirstSeen(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "Y"},
		{Agent: "b", Output: "X"},
	}, StrategyMajority, nil, nil, "")

	assert.Equal(t, "Y", result.Consensus)
}

func TestMergeWeighted(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "X"},
		{Agent: "b", Output: "Y"},
		{Agent: "c", Output: "Y"},
	}, StrategyWeighted, map[string]float64{"a": 5.0}, nil, "")

	// a's single vote at weight 5 beats two unweighted votes for Y.
	assert.Equal(t, "X", result.Consensus)
}

func TestMergeWeightedDegradesToMajority(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "X"},
		{Agent: "b", Output: "X"},
		{Agent: "c", Output: "Y"},
	}, StrategyWeighted, nil, nil, "")

	assert.Equal(t, "X", result.Consensus)
}

func TestMergeCritiqueRefine(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "draft one"},
		{Agent: "b", Output: "draft two"},
	}, StrategyCritiqueRefine, nil, []Critique{
		{Score: 2.0},
		{Score: 4.5},
	}, "")

	assert.Equal(t, "draft two", result.Consensus)
}

func TestMergeBestCandidate(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "draft one"},
		{Agent: "b", Output: "draft two"},
		{Agent: "c", Output: "draft three"},
	}, StrategyBestCandidate, nil, []Critique{
		{Score: 3.0},
		{Score: 1.0},
		{Score: 4.0},
	}, "")

	assert.Equal(t, "draft three", result.Consensus)
}

func TestMergeCritiqueStrategiesDegradeWithoutCritiques(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)
	outputs := []AgentOutput{
		{Agent: "a", Output: "X"},
		{Agent: "b", Output: "X"},
		{Agent: "c", Output: "Y"},
	}

	for _, strategy := range []string{StrategyCritiqueRefine, StrategyBestCandidate} {
		result := engine.Merge(outputs, strategy, nil, nil, "")
		assert.Equal(t, "X", result.Consensus, "strategy %s", strategy)
	}
}

func TestMergeUnknownStrategyPicksFirst(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)

	result := engine.Merge([]AgentOutput{
		{Agent: "a", Output: "first"},
		{Agent: "b", Output: "second"},
	}, "no_such_strategy", nil, nil, "")

	assert.Equal(t, "first", result.Consensus)
}

func TestMergeEmptyOutputs(t *testing.T) {
	engine := NewEngine(blackboard.New(), nil)
	result := engine.Merge(nil, StrategyMajority, nil, nil, "")
	assert.Empty(t, result.Consensus)
}

func newLoopFixture(t *testing.T) (*messaging.Router, *blackboard.Blackboard) {
	t.Helper()
	router := messaging.NewRouter(nil)
	board := blackboard.New()

	router.RegisterAgent("producer", func(msg *messaging.Envelope) *messaging.Envelope {
		switch msg.Intent {
		case messaging.IntentProduce:
			return msg.Reply(messaging.IntentResponse, map[string]any{"output": "produced"})
		case messaging.IntentRefine:
			critique, _ := msg.PayloadString("critique")
			return msg.Reply(messaging.IntentResponse, map[string]any{"refined": "refined after " + critique})
		}
		return nil
	})
	router.RegisterAgent("critic", func(msg *messaging.Envelope) *messaging.Envelope {
		out, _ := msg.PayloadString("output")
		return msg.Reply(messaging.IntentResponse, map[string]any{"critique": "critique of " + out})
	})
	return router, board
}

func TestCritiqueLoopTwoRounds(t *testing.T) {
	router, board := newLoopFixture(t)
	loop := NewCritiqueLoop(router, board, nil)

	result := loop.Run("producer", "critic", "", "initial draft", 2, nil, "trace-1")

	require.Len(t, result.Trace, 2)

	// Round 1 uses the initial input, not a produce hop.
	assert.Equal(t, "initial draft", result.Trace[0].ProducerOutput)
	assert.Equal(t, "critique of initial draft", result.Trace[0].Critique)

	// Round 2 produces fresh output.
	assert.Equal(t, "produced", result.Trace[1].ProducerOutput)

	// Final output is the last round's refined value.
	assert.Equal(t, result.Trace[1].Refined, result.FinalOutput)

	// Two round entries plus one full trace on the blackboard.
	assert.NotNil(t, board.Read("critique_loop:trace-1:round1"))
	assert.NotNil(t, board.Read("critique_loop:trace-1:round2"))
	assert.NotNil(t, board.Read("critique_loop:trace-1:full_trace"))
}

func TestCritiqueLoopRefineDefaultsToProducer(t *testing.T) {
	router, board := newLoopFixture(t)
	loop := NewCritiqueLoop(router, board, nil)

	result := loop.Run("producer", "critic", "", "draft", 1, nil, "")
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "producer", result.Trace[0].RefineAgent)
}

func TestDebateRecordsAllTurns(t *testing.T) {
	router := messaging.NewRouter(nil)
	board := blackboard.New()

	for _, id := range []string{"optimist", "skeptic"} {
		id := id
		router.RegisterAgent(id, func(msg *messaging.Envelope) *messaging.Envelope {
			return msg.Reply(messaging.IntentResponse, map[string]any{
				"argument": fmt.Sprintf("%s speaks", id),
			})
		})
	}

	debate := NewDebatePattern(router, board, nil)
	result := debate.Run([]string{"optimist", "skeptic"}, "should we rewrite it", 2, nil, "t1")

	require.Len(t, result.Trace, 4)
	assert.Equal(t, "optimist", result.Trace[0].Agent)
	assert.Equal(t, "skeptic", result.Trace[1].Agent)
	assert.Equal(t, 1, result.Trace[0].Round)
	assert.Equal(t, 2, result.Trace[2].Round)
	assert.Equal(t, "optimist speaks", result.Trace[0].Argument)

	assert.NotNil(t, board.Read("debate:t1:round1:optimist"))
	assert.NotNil(t, board.Read("debate:t1:round2:skeptic"))
	assert.NotNil(t, board.Read("debate:t1:full_trace"))
}

func TestDebateUnknownAgentRecordsEmptyArgument(t *testing.T) {
	router := messaging.NewRouter(nil)
	board := blackboard.New()

	debate := NewDebatePattern(router, board, nil)
	result := debate.Run([]string{"ghost"}, "topic", 1, nil, "")

	require.Len(t, result.Trace, 1)
	assert.Empty(t, result.Trace[0].Argument)
}
