package agents

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/messaging"
)

// PersonaAlignmentAgent revises outputs to match the configured persona and
// profession context.
type PersonaAlignmentAgent struct {
	*base
}

// NewPersonaAlignmentAgent creates and attaches a persona alignment agent.
func NewPersonaAlignmentAgent(cfg Config) *PersonaAlignmentAgent {
	a := &PersonaAlignmentAgent{
		base: newBase(cfg, "persona_alignment_agent", "alignment",
			"Revises outputs for persona and style consistency",
			[]agent.Capability{
				{Name: "persona_alignment", Description: "Align outputs with the persona's voice", Confidence: 0.9,
					Examples: []string{"align", "persona", "style", "consistency"}},
				{Name: "style_revision", Description: "Revise text to match a target style", Confidence: 0.85,
					Examples: []string{"revise for persona", "match profile"}},
			}),
	}
	a.serve = a.serveMessage
	a.attach()
	return a
}

// CanHandleTask scores alignment fitness.
func (a *PersonaAlignmentAgent) CanHandleTask(task string, _ map[string]any) float64 {
	lowered := strings.ToLower(task)
	if containsAny(lowered, "align", "persona", "style", "consistency", "voice") {
		return 0.9
	}
	if containsAny(lowered, "revise", "rewrite", "tone") {
		return 0.65
	}
	return 0.3
}

// HandleTask aligns the given text with the persona.
func (a *PersonaAlignmentAgent) HandleTask(ctx context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	aligned, err := a.align(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("%s handling task: %w", a.id, err)
	}
	result := agent.Success(a.id, aligned)
	result.Metadata = map[string]any{"agent_role": a.role}
	return result, nil
}

func (a *PersonaAlignmentAgent) serveMessage(ctx context.Context, msg *messaging.Envelope) *messaging.Envelope {
	switch msg.Intent {
	case "alignment_request", messaging.IntentRequest, messaging.IntentRefine, messaging.IntentExecuteFragment:
	default:
		return nil
	}

	output, ok := msg.PayloadString("output", "task", "input")
	if !ok {
		return a.errorReply(msg, "missing output to align")
	}

	aligned, err := a.align(ctx, output)
	if err != nil {
		a.logger.Warn("alignment failed", "agent", a.id, "error", err)
		return a.errorReply(msg, err.Error())
	}
	if a.board != nil {
		a.board.Write(alignedKey(output), aligned, a.id, map[string]any{"source_agent": a.id})
	}
	return msg.Reply("alignment_response", map[string]any{
		"aligned_output": aligned,
		"handled_by":     a.id,
	})
}

// align rewrites the text in the persona's voice. Without a provider the
// text passes through tagged, so the pipeline still produces output.
func (a *PersonaAlignmentAgent) align(ctx context.Context, output string) (string, error) {
	if a.provider == nil {
		return "[persona-aligned] " + output, nil
	}
	prompt := "Revise the following text so it matches the persona's voice and style. Preserve the meaning.\n\n" + output
	return a.generate(ctx, prompt, 0.4)
}

func alignedKey(output string) string {
	sum := sha256.Sum256([]byte(output))
	return fmt.Sprintf("aligned:%x", sum[:8])
}
