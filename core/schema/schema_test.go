package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticTruncation(t *testing.T) {
	s := NewStatic("a senior data engineer working on streaming pipelines")

	assert.Equal(t, "a senior data engineer working on streaming pipelines", s.ContextSummary(0))
	assert.Equal(t, "a senior", s.ContextSummary(9))
	assert.Equal(t, "a senior data engineer working on streaming pipelines", s.ContextSummary(1000))
}

func TestProfessionSummary(t *testing.T) {
	p := &Profession{
		Title:            "Data Engineer",
		Domain:           "Streaming",
		Responsibilities: []string{"build pipelines", "monitor lag"},
		Tools:            []string{"kafka", "flink"},
		Audience:         "platform teams",
	}

	summary := p.ContextSummary(0)
	assert.Contains(t, summary, "Profession: Data Engineer")
	assert.Contains(t, summary, "Responsibilities: build pipelines; monitor lag")
	assert.Contains(t, summary, "Tools: kafka, flink")

	truncated := p.ContextSummary(30)
	assert.LessOrEqual(t, len(truncated), 30)
	assert.True(t, strings.HasPrefix(summary, truncated))
}

func TestProfessionSummarySkipsEmptyFields(t *testing.T) {
	p := &Profession{Title: "Analyst"}
	assert.Equal(t, "Profession: Analyst", p.ContextSummary(0))
}
