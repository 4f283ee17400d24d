package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Structured Output Parsing
// =============================================================================
//
// Models frequently wrap JSON in markdown fences or pad it with prose. Every
// call site that asks for structured output parses through these helpers and
// applies its own documented fallback on error; a parse failure must never
// abort the surrounding operation.

// ParseError describes a failure to decode structured model output.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON strips markdown code fences from a model completion, returning
// the inner text. Plain completions pass through unchanged.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if idx := strings.Index(trimmed, "```json"); idx >= 0 {
		rest := trimmed[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return trimmed
}

// Decode unmarshals a model completion into T after fence stripping.
// Returns a *ParseError carrying the raw text so callers can log it.
func Decode[T any](text string) (T, error) {
	var out T
	cleaned := ExtractJSON(text)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, &ParseError{Raw: text, Err: err}
	}
	return out, nil
}

// DecodeStringList decodes a JSON array of steps. Models sometimes emit
// objects with a "step"/"description" field instead of bare strings, so both
// shapes are accepted.
func DecodeStringList(text string) ([]string, error) {
	cleaned := ExtractJSON(text)

	var plain []string
	if err := json.Unmarshal([]byte(cleaned), &plain); err == nil {
		return plain, nil
	}

	var objects []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &objects); err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}

	steps := make([]string, 0, len(objects))
	for _, obj := range objects {
		for _, key := range []string{"step", "description", "task", "text"} {
			if v, ok := obj[key].(string); ok {
				steps = append(steps, v)
				break
			}
		}
	}
	if len(steps) == 0 {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("no step fields found")}
	}
	return steps, nil
}
