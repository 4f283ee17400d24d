package distributed

import (
	"log/slog"
	"time"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/delegation"
)

// Bidder is one candidate in an ownership negotiation.
type Bidder struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

// BidRound is one candidate's recorded bid.
type BidRound struct {
	Round      int              `json:"round"`
	Agent      string           `json:"agent"`
	Level      delegation.Level `json:"level"`
	Score      float64          `json:"score"`
	FragmentID string           `json:"fragment_id"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NegotiationOutcome is the result of one negotiation.
type NegotiationOutcome struct {
	FragmentID    string     `json:"fragment_id"`
	SelectedAgent string     `json:"selected_agent"`
	Log           []BidRound `json:"negotiation_log"`
}

// NegotiationProtocol resolves contested fragment ownership. Each
// candidate bids its estimated confidence for the fragment's task type;
// the highest score wins, with ties broken by candidate order. Every
// outcome is persisted per fragment.
type NegotiationProtocol struct {
	board  *blackboard.Blackboard
	logger *slog.Logger
}

// NewNegotiationProtocol creates a protocol over the given blackboard.
func NewNegotiationProtocol(board *blackboard.Blackboard, logger *slog.Logger) *NegotiationProtocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &NegotiationProtocol{board: board, logger: logger}
}

// Initiate runs a bidding round over the candidates for the fragment.
// With no candidates the outcome selects nobody; with one it short
// circuits.
func (n *NegotiationProtocol) Initiate(fragment *PlanFragment, candidates []Bidder, taskType delegation.TaskType) NegotiationOutcome {
	outcome := NegotiationOutcome{FragmentID: fragment.FragmentID}

	switch len(candidates) {
	case 0:
		n.persist(fragment, outcome)
		return outcome
	case 1:
		outcome.SelectedAgent = candidates[0].AgentID
		n.persist(fragment, outcome)
		return outcome
	}

	bestScore := -1.0
	for i, c := range candidates {
		level, score := delegation.EstimateConfidence(c.Role, taskType)
		outcome.Log = append(outcome.Log, BidRound{
			Round:      i + 1,
			Agent:      c.AgentID,
			Level:      level,
			Score:      score,
			FragmentID: fragment.FragmentID,
			Timestamp:  time.Now(),
		})
		if score > bestScore {
			bestScore = score
			outcome.SelectedAgent = c.AgentID
		}
	}

	n.persist(fragment, outcome)
	return outcome
}

func (n *NegotiationProtocol) persist(fragment *PlanFragment, outcome NegotiationOutcome) {
	n.board.Write(
		blackboard.NegotiationKey(fragment.ParentPlanID, fragment.FragmentID),
		outcome,
		"negotiation_protocol",
		map[string]any{
			"fragment_id":    fragment.FragmentID,
			"selected_agent": outcome.SelectedAgent,
		},
	)
	n.logger.Info("negotiation resolved",
		"fragment_id", fragment.FragmentID,
		"selected_agent", outcome.SelectedAgent,
		"candidates", len(outcome.Log))
}
