// Package skills provides lightweight skill descriptors and a glob-based
// matcher. Skills declare trigger patterns; the matcher counts which skills
// apply to a given agent so registry descriptors report real skill counts.
package skills

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/metapersona/core/agent"
)

// Skill describes one pluggable capability extension. Triggers are glob
// patterns matched case-insensitively against agent roles, capability
// names, and capability examples.
type Skill struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Triggers    []string `yaml:"triggers" json:"triggers"`
}

// Validate checks the descriptor and compiles its trigger patterns.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if len(s.Triggers) == 0 {
		return fmt.Errorf("skill %s: at least one trigger is required", s.Name)
	}
	for _, t := range s.Triggers {
		if _, err := glob.Compile(strings.ToLower(t)); err != nil {
			return fmt.Errorf("skill %s: trigger %q: %w", s.Name, t, err)
		}
	}
	return nil
}

type compiledSkill struct {
	skill    Skill
	patterns []glob.Glob
}

// Matcher answers which skills apply to a task or agent.
type Matcher struct {
	skills []compiledSkill
}

// NewMatcher compiles the skill set. Invalid descriptors fail construction.
func NewMatcher(skillSet []Skill) (*Matcher, error) {
	compiled := make([]compiledSkill, 0, len(skillSet))
	for i := range skillSet {
		s := skillSet[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		cs := compiledSkill{skill: s, patterns: make([]glob.Glob, 0, len(s.Triggers))}
		for _, t := range s.Triggers {
			cs.patterns = append(cs.patterns, glob.MustCompile(strings.ToLower(t)))
		}
		compiled = append(compiled, cs)
	}
	return &Matcher{skills: compiled}, nil
}

// Match returns the skills whose triggers match the text.
func (m *Matcher) Match(text string) []Skill {
	lowered := strings.ToLower(text)
	var matched []Skill
	for _, cs := range m.skills {
		if cs.matches(lowered) {
			matched = append(matched, cs.skill)
		}
	}
	return matched
}

// CountFor counts the skills applicable to an agent, probing its role and
// declared capabilities. Satisfies the registry's skill counter contract.
func (m *Matcher) CountFor(a agent.Agent) int {
	count := 0
	for _, cs := range m.skills {
		if cs.matchesAgent(a) {
			count++
		}
	}
	return count
}

// Len reports the number of loaded skills.
func (m *Matcher) Len() int { return len(m.skills) }

func (cs *compiledSkill) matches(lowered string) bool {
	for _, p := range cs.patterns {
		if p.Match(lowered) {
			return true
		}
	}
	return false
}

func (cs *compiledSkill) matchesAgent(a agent.Agent) bool {
	if cs.matches(strings.ToLower(a.Role())) {
		return true
	}
	for _, cap := range a.Capabilities() {
		if cs.matches(strings.ToLower(cap.Name)) {
			return true
		}
		for _, example := range cap.Examples {
			if cs.matches(strings.ToLower(example)) {
				return true
			}
		}
	}
	return false
}

// Load reads a YAML skill manifest: a top-level `skills` list of
// descriptors.
func Load(path string) ([]Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skills manifest: %w", err)
	}

	var manifest struct {
		Skills []Skill `yaml:"skills"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing skills manifest: %w", err)
	}
	for i := range manifest.Skills {
		if err := manifest.Skills[i].Validate(); err != nil {
			return nil, err
		}
	}
	return manifest.Skills, nil
}
