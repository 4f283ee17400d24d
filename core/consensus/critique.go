package consensus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/messaging"
)

// responseKeys is the preference order for extracting the main output from
// a hop's response payload.
var responseKeys = []string{"output", "refined", "critique", "result", "final_output"}

// RoundLog records one produce/critique/refine cycle.
type RoundLog struct {
	Round          int       `json:"round"`
	ProducerAgent  string    `json:"producer_agent"`
	CritiqueAgent  string    `json:"critique_agent"`
	RefineAgent    string    `json:"refine_agent"`
	ProducerOutput string    `json:"producer_output"`
	Critique       string    `json:"critique"`
	Refined        string    `json:"refined"`
	TraceID        string    `json:"trace_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// LoopResult is the outcome of a critique loop run.
type LoopResult struct {
	FinalOutput string     `json:"final_output"`
	Trace       []RoundLog `json:"trace"`
}

// CritiqueLoop runs produce -> critique -> refine cycles through the
// message router, feeding each round's refined output into the next.
type CritiqueLoop struct {
	router *messaging.Router
	board  *blackboard.Blackboard
	logger *slog.Logger
}

// NewCritiqueLoop creates a loop over the given router and blackboard.
func NewCritiqueLoop(router *messaging.Router, board *blackboard.Blackboard, logger *slog.Logger) *CritiqueLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &CritiqueLoop{router: router, board: board, logger: logger}
}

// Run executes the loop for the given number of rounds. refineAgent falls
// back to the producer when empty. On round one the initial input stands
// in for the producer's output when supplied. Every round is logged to the
// blackboard, plus one full-trace entry at the end.
func (l *CritiqueLoop) Run(producerAgent, critiqueAgent, refineAgent, initialInput string, rounds int, loopContext map[string]any, traceID string) LoopResult {
	if refineAgent == "" {
		refineAgent = producerAgent
	}

	keyID := traceID
	if keyID == "" {
		keyID = noTraceID
	}

	var trace []RoundLog
	currentOutput := initialInput

	for round := 1; round <= rounds; round++ {
		producerOutput := currentOutput
		if round > 1 || initialInput == "" {
			producerOutput = l.send(producerAgent, producerAgent, messaging.IntentProduce,
				mergePayload(map[string]any{"input": currentOutput}, loopContext), traceID)
		}

		critique := l.send(producerAgent, critiqueAgent, messaging.IntentCritiqueRequest,
			mergePayload(map[string]any{"output": producerOutput}, loopContext), traceID)

		refined := l.send(critiqueAgent, refineAgent, messaging.IntentRefine,
			mergePayload(map[string]any{"output": producerOutput, "critique": critique}, loopContext), traceID)

		roundLog := RoundLog{
			Round:          round,
			ProducerAgent:  producerAgent,
			CritiqueAgent:  critiqueAgent,
			RefineAgent:    refineAgent,
			ProducerOutput: producerOutput,
			Critique:       critique,
			Refined:        refined,
			TraceID:        traceID,
			Timestamp:      time.Now(),
		}
		trace = append(trace, roundLog)
		l.board.Write(fmt.Sprintf("critique_loop:%s:round%d", keyID, round), roundLog, producerAgent, map[string]any{
			"critique_round": round,
			"trace_id":       traceID,
		})

		currentOutput = refined
	}

	l.board.Write(fmt.Sprintf("critique_loop:%s:full_trace", keyID), trace, producerAgent, map[string]any{
		"trace_id": traceID,
		"rounds":   rounds,
	})

	return LoopResult{FinalOutput: currentOutput, Trace: trace}
}

// send routes a message and extracts the primary output string from the
// response. A missing handler or silent response yields "".
func (l *CritiqueLoop) send(sender, receiver, intent string, payload map[string]any, traceID string) string {
	var metadata map[string]any
	if traceID != "" {
		metadata = map[string]any{messaging.MetaTraceID: traceID}
	}

	response := l.router.RouteMessage(messaging.New(sender, receiver, intent, payload, metadata))
	if response == nil {
		return ""
	}
	if out, ok := response.PayloadString(responseKeys...); ok {
		return out
	}
	return ""
}

func mergePayload(payload, extra map[string]any) map[string]any {
	for k, v := range extra {
		if _, exists := payload[k]; !exists {
			payload[k] = v
		}
	}
	return payload
}
