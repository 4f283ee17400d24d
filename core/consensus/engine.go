// Package consensus implements the quality-control passes layered over
// agent outputs: a multi-strategy merging engine, a produce/critique/refine
// loop, and a round-based debate recorder. All decisions land on the
// blackboard for audit.
package consensus

import (
	"log/slog"
	"time"

	"github.com/adalundhe/metapersona/core/blackboard"
)

// Merge strategies.
const (
	StrategyMajority       = "majority"
	StrategyWeighted       = "weighted"
	StrategyCritiqueRefine = "critique_refine"
	StrategyBestCandidate  = "best_candidate"
)

// noTraceID stands in when the caller supplies no trace id, keeping the
// blackboard key shape stable.
const noTraceID = "noid"

// AgentOutput is one agent's contribution to a merge.
type AgentOutput struct {
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

// Critique is a scored review of one agent output, positionally paired
// with the outputs passed to Merge.
type Critique struct {
	Agent    string  `json:"agent,omitempty"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback,omitempty"`
}

// MergeTrace is the full record of one merge decision.
type MergeTrace struct {
	Strategy  string             `json:"strategy"`
	Inputs    []AgentOutput      `json:"inputs"`
	Critiques []Critique         `json:"critiques,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	TraceID   string             `json:"trace_id,omitempty"`
	Agents    []string           `json:"agents"`
	Consensus string             `json:"consensus"`
	Timestamp time.Time          `json:"timestamp"`
}

// MergeResult pairs the consensus output with its trace.
type MergeResult struct {
	Consensus string     `json:"consensus"`
	Trace     MergeTrace `json:"trace"`
}

// Engine merges outputs from multiple agents. A strategy missing its
// required inputs degrades to majority rather than failing.
type Engine struct {
	board  *blackboard.Blackboard
	logger *slog.Logger
}

// NewEngine creates a consensus engine over the given blackboard.
func NewEngine(board *blackboard.Blackboard, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{board: board, logger: logger}
}

// Merge collapses the agent outputs into one via the named strategy and
// unconditionally logs the full decision to the blackboard.
func (e *Engine) Merge(outputs []AgentOutput, strategy string, weights map[string]float64, critiques []Critique, traceID string) MergeResult {
	var consensus string
	switch strategy {
	case StrategyMajority:
		consensus = majorityVote(outputs)
	case StrategyWeighted:
		consensus = weightedScore(outputs, weights)
	case StrategyCritiqueRefine:
		consensus = critiqueRefine(outputs, critiques)
	case StrategyBestCandidate:
		consensus = bestCandidate(outputs, critiques)
	default:
		if len(outputs) > 0 {
			consensus = outputs[0].Output
		}
	}

	agents := make([]string, len(outputs))
	for i, o := range outputs {
		agents[i] = o.Agent
	}
	trace := MergeTrace{
		Strategy:  strategy,
		Inputs:    outputs,
		Critiques: critiques,
		Weights:   weights,
		TraceID:   traceID,
		Agents:    agents,
		Consensus: consensus,
		Timestamp: time.Now(),
	}

	key := traceID
	if key == "" {
		key = noTraceID
	}
	e.board.Write(blackboard.ConsensusKey(key), trace, "consensus_engine", map[string]any{
		"strategy": strategy,
		"trace_id": traceID,
	})
	e.logger.Info("consensus merged",
		"strategy", strategy,
		"agents", len(outputs),
		"trace_id", traceID)

	return MergeResult{Consensus: consensus, Trace: trace}
}

// majorityVote picks the most frequent output; ties break to the value
// seen first.
func majorityVote(outputs []AgentOutput) string {
	if len(outputs) == 0 {
		return ""
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, o := range outputs {
		counts[o.Output]++
		if _, ok := firstSeen[o.Output]; !ok {
			firstSeen[o.Output] = i
		}
	}

	best := outputs[0].Output
	for value, count := range counts {
		if count > counts[best] || (count == counts[best] && firstSeen[value] < firstSeen[best]) {
			best = value
		}
	}
	return best
}

// weightedScore sums each distinct output's configured per-agent weights
// and picks the heaviest. Unweighted agents count 1.0. No weights at all
// degrades to majority.
func weightedScore(outputs []AgentOutput, weights map[string]float64) string {
	if len(weights) == 0 {
		return majorityVote(outputs)
	}

	scores := make(map[string]float64)
	firstSeen := make(map[string]int)
	for i, o := range outputs {
		w, ok := weights[o.Agent]
		if !ok {
			w = 1.0
		}
		scores[o.Output] += w
		if _, seen := firstSeen[o.Output]; !seen {
			firstSeen[o.Output] = i
		}
	}

	var best string
	bestScore := -1.0
	for value, score := range scores {
		if score > bestScore || (score == bestScore && firstSeen[value] < firstSeen[best]) {
			best = value
			bestScore = score
		}
	}
	return best
}

// critiqueRefine picks the output whose paired critique scored highest.
func critiqueRefine(outputs []AgentOutput, critiques []Critique) string {
	if len(critiques) == 0 {
		return majorityVote(outputs)
	}

	n := len(outputs)
	if len(critiques) < n {
		n = len(critiques)
	}

	bestIdx := 0
	for i := 1; i < n; i++ {
		if critiques[i].Score > critiques[bestIdx].Score {
			bestIdx = i
		}
	}
	if bestIdx >= len(outputs) {
		return majorityVote(outputs)
	}
	return outputs[bestIdx].Output
}

// bestCandidate scans for the single highest-scoring critique and returns
// its paired output.
func bestCandidate(outputs []AgentOutput, critiques []Critique) string {
	if len(critiques) == 0 || len(outputs) == 0 {
		return majorityVote(outputs)
	}

	bestIdx := 0
	bestScore := critiques[0].Score
	for i, c := range critiques {
		if c.Score > bestScore {
			bestScore = c.Score
			bestIdx = i
		}
	}
	if bestIdx >= len(outputs) {
		bestIdx = len(outputs) - 1
	}
	return outputs[bestIdx].Output
}
