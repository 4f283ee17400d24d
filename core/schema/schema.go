// Package schema defines the profession-schema contract consumed by the
// workflow and reflection engines. The orchestration core never inspects
// schema internals; it only asks for a bounded context summary to embed in
// prompts.
package schema

import "strings"

// Schema is any source of profession context.
type Schema interface {
	// ContextSummary returns a human-readable summary of the profession,
	// truncated to at most maxLength characters. maxLength <= 0 means
	// unbounded.
	ContextSummary(maxLength int) string
}

// Static is a fixed-text Schema, useful for tests and for callers that
// already hold a rendered summary.
type Static struct {
	Summary string
}

// NewStatic creates a Schema over a pre-rendered summary string.
func NewStatic(summary string) *Static {
	return &Static{Summary: summary}
}

// ContextSummary returns the stored summary, truncated to maxLength.
func (s *Static) ContextSummary(maxLength int) string {
	if maxLength <= 0 || len(s.Summary) <= maxLength {
		return s.Summary
	}
	return strings.TrimSpace(s.Summary[:maxLength])
}

// Profession is a structured profession description that renders its own
// summary.
type Profession struct {
	Title            string   `json:"title" yaml:"title"`
	Domain           string   `json:"domain" yaml:"domain"`
	Responsibilities []string `json:"responsibilities" yaml:"responsibilities"`
	Tools            []string `json:"tools" yaml:"tools"`
	Audience         string   `json:"audience" yaml:"audience"`
}

// ContextSummary renders the profession as a compact prompt-ready summary.
func (p *Profession) ContextSummary(maxLength int) string {
	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString("Profession: " + p.Title)
	}
	if p.Domain != "" {
		sb.WriteString("\nDomain: " + p.Domain)
	}
	if len(p.Responsibilities) > 0 {
		sb.WriteString("\nResponsibilities: " + strings.Join(p.Responsibilities, "; "))
	}
	if len(p.Tools) > 0 {
		sb.WriteString("\nTools: " + strings.Join(p.Tools, ", "))
	}
	if p.Audience != "" {
		sb.WriteString("\nAudience: " + p.Audience)
	}

	out := strings.TrimSpace(sb.String())
	if maxLength > 0 && len(out) > maxLength {
		out = strings.TrimSpace(out[:maxLength])
	}
	return out
}
