// Package workflow implements the per-agent multi-step orchestrator: plan
// decomposition, step execution with delegation, and the reflect/refine
// quality gate, with optional critique, consensus, debate, and cross-agent
// reflection passes.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/schema"
)

// refinementFloor is the score below which a sub-score triggers targeted
// revision guidance.
const refinementFloor = 4

// schemaSummaryLen bounds the schema context embedded in prompts.
const schemaSummaryLen = 500

// Evaluation is the reflection verdict for one response, scored 1-5 per
// dimension.
type Evaluation struct {
	Clarity         int  `json:"clarity"`
	Accuracy        int  `json:"accuracy"`
	Completeness    int  `json:"completeness"`
	Alignment       int  `json:"alignment"`
	NeedsRefinement bool `json:"needs_refinement"`
}

// fallbackEvaluation is used when evaluation itself fails: err toward
// refining rather than silently accepting an unverifiable answer.
func fallbackEvaluation() Evaluation {
	return Evaluation{
		Clarity:         2,
		Accuracy:        2,
		Completeness:    2,
		Alignment:       2,
		NeedsRefinement: true,
	}
}

// ReflectionEngine evaluates and refines responses against a profession
// schema.
type ReflectionEngine struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewReflectionEngine creates a reflection engine.
func NewReflectionEngine(provider llm.Provider, logger *slog.Logger) *ReflectionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReflectionEngine{provider: provider, logger: logger}
}

// EvaluateResponse scores the response for clarity, accuracy,
// completeness, and schema alignment. Any provider or parse failure
// degrades to the conservative verdict that forces refinement.
func (e *ReflectionEngine) EvaluateResponse(ctx context.Context, response string, sch schema.Schema) Evaluation {
	summary := ""
	if sch != nil {
		summary = sch.ContextSummary(schemaSummaryLen)
	}

	prompt := fmt.Sprintf(`Evaluate the following response for:
- Clarity
- Accuracy (per the provided profession schema)
- Completeness
- Alignment with profession schema

Response:
%s

Profession Schema (summary):
%s

Return JSON with keys: clarity, accuracy, completeness, alignment (scores 1-5), and needs_refinement (bool, true if any score < 4).`, response, summary)

	raw, err := e.provider.Generate(ctx, []llm.Message{
		llm.System("You are an expert evaluator of professional responses."),
		llm.User(prompt),
	}, 0.0)
	if err != nil {
		e.logger.Warn("reflection evaluation failed, forcing refinement", "error", err)
		return fallbackEvaluation()
	}

	eval, err := llm.Decode[Evaluation](raw)
	if err != nil {
		e.logger.Warn("reflection verdict unparseable, forcing refinement", "error", err)
		return fallbackEvaluation()
	}
	return eval
}

// RefineResponse re-prompts with the sub-scores that fell below the
// refinement floor, asking for a targeted revision.
func (e *ReflectionEngine) RefineResponse(ctx context.Context, response string, sch schema.Schema, feedback Evaluation) (string, error) {
	summary := ""
	if sch != nil {
		summary = sch.ContextSummary(schemaSummaryLen)
	}

	var weak []string
	for _, dim := range []struct {
		name  string
		score int
	}{
		{"clarity", feedback.Clarity},
		{"accuracy", feedback.Accuracy},
		{"completeness", feedback.Completeness},
		{"alignment", feedback.Alignment},
	} {
		if dim.score < refinementFloor {
			weak = append(weak, fmt.Sprintf("%s (%d/5)", dim.name, dim.score))
		}
	}

	prompt := fmt.Sprintf(`The previous response was evaluated as follows:
Clarity: %d/5
Accuracy: %d/5
Completeness: %d/5
Alignment: %d/5

Please revise and improve the answer, focusing on: %s. Use the profession schema for reference.

Original Response:
%s

Profession Schema (summary):
%s`,
		feedback.Clarity, feedback.Accuracy, feedback.Completeness, feedback.Alignment,
		strings.Join(weak, ", "), response, summary)

	refined, err := e.provider.Generate(ctx, []llm.Message{
		llm.System("You are an expert professional assistant."),
		llm.User(prompt),
	}, 0.2)
	if err != nil {
		return "", fmt.Errorf("refining response: %w", err)
	}
	return refined, nil
}
