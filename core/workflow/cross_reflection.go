package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/schema"
)

// LabeledOutput pairs an agent's output with its name and schema for
// cross-agent comparison.
type LabeledOutput struct {
	Agent  string        `json:"agent"`
	Output string        `json:"output"`
	Schema schema.Schema `json:"-"`
}

// CrossReflection is the verdict of a pairwise output comparison.
type CrossReflection struct {
	Contradictions []string `json:"contradictions"`
	Gaps           []string `json:"gaps"`
	Misalignments  []string `json:"misalignments"`
	Suggestions    []string `json:"suggestions"`
}

// CrossAgentReflectionEngine compares outputs from multiple agents,
// surfacing contradictions, gaps, and misalignment.
type CrossAgentReflectionEngine struct {
	provider llm.Provider
	board    *blackboard.Blackboard
	logger   *slog.Logger
}

// NewCrossAgentReflectionEngine creates the engine. board may be nil to
// disable trace logging.
func NewCrossAgentReflectionEngine(provider llm.Provider, board *blackboard.Blackboard, logger *slog.Logger) *CrossAgentReflectionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossAgentReflectionEngine{provider: provider, board: board, logger: logger}
}

// ReflectOnOutputs compares the outputs and returns the structured
// verdict. Any provider or parse failure degrades to a minimal "review
// for consistency" suggestion. The result is logged to the blackboard
// when one is configured.
func (e *CrossAgentReflectionEngine) ReflectOnOutputs(ctx context.Context, outputs []LabeledOutput, traceID string) CrossReflection {
	var outputsText, schemasText strings.Builder
	for i, o := range outputs {
		fmt.Fprintf(&outputsText, "Agent %d (%s):\n%s\n\n", i+1, o.Agent, o.Output)
		if o.Schema != nil {
			fmt.Fprintf(&schemasText, "Agent %d Schema:\n%s\n\n", i+1, o.Schema.ContextSummary(300))
		}
	}

	prompt := fmt.Sprintf(`Compare the following outputs from multiple agents. Identify:
- Contradictions or disagreements
- Gaps or missing information
- Misalignment with profession schemas
- Suggestions for convergence or improvement

%s
Profession Schemas:
%s
Return JSON with keys: contradictions, gaps, misalignments, suggestions (each a list of strings).`,
		outputsText.String(), schemasText.String())

	result := CrossReflection{
		Suggestions: []string{"Review outputs for consistency."},
	}

	raw, err := e.provider.Generate(ctx, []llm.Message{
		llm.System("You are an expert evaluator of multi-agent outputs."),
		llm.User(prompt),
	}, 0.0)
	if err != nil {
		e.logger.Warn("cross-agent reflection failed, using fallback verdict", "error", err)
	} else if parsed, perr := llm.Decode[CrossReflection](raw); perr != nil {
		e.logger.Warn("cross-agent reflection verdict unparseable, using fallback", "error", perr)
	} else {
		result = parsed
	}

	if e.board != nil {
		keyID := traceID
		if keyID == "" {
			keyID = "noid"
		}
		agents := make([]string, len(outputs))
		for i, o := range outputs {
			agents[i] = o.Agent
		}
		e.board.Write("cross_agent_reflection:"+keyID, map[string]any{
			"outputs":           outputs,
			"reflection_result": result,
			"timestamp":         time.Now(),
		}, "cross_agent_reflection", map[string]any{
			"trace_id": traceID,
			"agents":   agents,
		})
	}
	return result
}
