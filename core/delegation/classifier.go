// Package delegation implements the task classifier, the agent-task
// confidence table, and the rules engine that maps task types to
// responsible agents. All three are total functions over their input
// domain; they never fail, they fall back.
package delegation

import (
	"regexp"
	"strings"
)

// TaskType is the coarse classification label for a task.
type TaskType string

const (
	TypeResearch  TaskType = "research"
	TypeWriting   TaskType = "writing"
	TypePlanning  TaskType = "planning"
	TypeCritique  TaskType = "critique"
	TypeAlignment TaskType = "alignment"
	TypeExecution TaskType = "execution"
	TypeUnknown   TaskType = "unknown"
)

// Classification confidence values. A pattern match is near-certain; an
// unmatched input is a coin flip leaning nowhere.
const (
	MatchConfidence   = 0.95
	UnknownConfidence = 0.5
)

type taskPattern struct {
	taskType TaskType
	pattern  *regexp.Regexp
}

// Ordered: the first matching type wins, so more specific task families
// come before the catch-all execution verbs.
var taskPatterns = []taskPattern{
	{TypeResearch, regexp.MustCompile(`search|find|gather|lookup|investigate|reference|latest|external info`)},
	{TypeWriting, regexp.MustCompile(`write|draft|compose|summarize|paraphrase|generate text|polish`)},
	{TypePlanning, regexp.MustCompile(`plan|break down|steps|roadmap|sequence|workflow|organize`)},
	{TypeCritique, regexp.MustCompile(`critique|review|evaluate|score|rate|feedback|assess|analyze output`)},
	{TypeAlignment, regexp.MustCompile(`align|persona|style|consistency|match profile|revise for persona`)},
	{TypeExecution, regexp.MustCompile(`execute|run|perform|carry out|do task`)},
}

// Classifier maps free text to a task type with a fixed confidence.
// Deterministic and side-effect free.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify lower-cases the text and tests the ordered pattern list,
// returning the first matching type with MatchConfidence. Unmatched or
// empty input classifies as unknown with UnknownConfidence.
func (c *Classifier) Classify(text string) (TaskType, float64) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return TypeUnknown, UnknownConfidence
	}
	for _, tp := range taskPatterns {
		if tp.pattern.MatchString(lowered) {
			return tp.taskType, MatchConfidence
		}
	}
	return TypeUnknown, UnknownConfidence
}
