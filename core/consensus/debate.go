package consensus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/messaging"
)

// debateOrchestrator is the sender id on debate-turn messages.
const debateOrchestrator = "debate_orchestrator"

// Argument is one agent's turn in a debate.
type Argument struct {
	Agent     string    `json:"agent"`
	Argument  string    `json:"argument"`
	Round     int       `json:"round"`
	Topic     string    `json:"topic"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DebateState is the accumulated exchange.
type DebateState struct {
	Topic     string     `json:"topic"`
	Arguments []Argument `json:"arguments"`
}

// DebateResult is the outcome of a debate run. This layer records the
// exchange; judging it belongs to a downstream consumer.
type DebateResult struct {
	FinalState DebateState `json:"final_state"`
	Trace      []Argument  `json:"trace"`
}

// DebatePattern orchestrates multi-round debates over the message router,
// logging each argument and a final state snapshot to the blackboard.
type DebatePattern struct {
	router *messaging.Router
	board  *blackboard.Blackboard
	logger *slog.Logger
}

// NewDebatePattern creates a debate orchestrator.
func NewDebatePattern(router *messaging.Router, board *blackboard.Blackboard, logger *slog.Logger) *DebatePattern {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebatePattern{router: router, board: board, logger: logger}
}

// Run sends each agent, in list order, a debate turn per round carrying
// the topic and the accumulated argument state so far.
func (d *DebatePattern) Run(agentIDs []string, topic string, rounds int, debateContext map[string]any, traceID string) DebateResult {
	keyID := traceID
	if keyID == "" {
		keyID = noTraceID
	}

	state := DebateState{Topic: topic}

	for round := 1; round <= rounds; round++ {
		for _, agentID := range agentIDs {
			payload := mergePayload(map[string]any{
				"topic": topic,
				"state": state,
			}, debateContext)

			var metadata map[string]any
			if traceID != "" {
				metadata = map[string]any{messaging.MetaTraceID: traceID}
			}

			var argumentText string
			response := d.router.RouteMessage(messaging.New(debateOrchestrator, agentID, messaging.IntentDebateTurn, payload, metadata))
			if response != nil {
				argumentText, _ = response.PayloadString("argument", "output", "result")
			}

			arg := Argument{
				Agent:     agentID,
				Argument:  argumentText,
				Round:     round,
				Topic:     topic,
				TraceID:   traceID,
				Timestamp: time.Now(),
			}
			state.Arguments = append(state.Arguments, arg)
			d.board.Write(fmt.Sprintf("debate:%s:round%d:%s", keyID, round, agentID), arg, agentID, map[string]any{
				"debate_round": round,
				"trace_id":     traceID,
				"topic":        topic,
			})
		}
	}

	d.board.Write(fmt.Sprintf("debate:%s:full_trace", keyID), state, debateOrchestrator, map[string]any{
		"trace_id": traceID,
		"rounds":   rounds,
		"topic":    topic,
	})

	return DebateResult{FinalState: state, Trace: state.Arguments}
}
