// Package config holds the application configuration: agent roster, routing
// thresholds, storage layout, and the embedded LLM provider configuration.
// A file watcher supports hot reload of the YAML config.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/metapersona/core/llm"
)

// Defaults applied by Validate when fields are unset.
const (
	DefaultStorageDir    = ".metapersona"
	DefaultMinConfidence = 0.5
	DefaultMaxWorkers    = 4
)

var (
	// ErrNoAgents indicates the config declares no agents.
	ErrNoAgents = errors.New("no agents configured")

	// ErrDuplicateAgent indicates two agent entries share an id.
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// AgentConfig declares one agent in the roster.
type AgentConfig struct {
	// ID is the unique agent id; empty means the kind's default id.
	ID string `yaml:"id,omitempty"`

	// Kind selects the implementation: research, code, writer, generalist,
	// critique, planning, alignment.
	Kind string `yaml:"kind"`
}

// Validate checks a single agent entry.
func (c *AgentConfig) Validate() error {
	switch c.Kind {
	case "research", "code", "writer", "generalist", "critique", "planning", "alignment":
		return nil
	case "":
		return fmt.Errorf("agent kind is required")
	default:
		return fmt.Errorf("unknown agent kind: %s", c.Kind)
	}
}

// RoutingConfig tunes the task router.
type RoutingConfig struct {
	// MinConfidence is the routability threshold.
	MinConfidence float64 `yaml:"min_confidence,omitempty"`

	// DefaultAgent receives tasks no agent clears the threshold for.
	DefaultAgent string `yaml:"default_agent,omitempty"`

	// LLMRouting enables LLM re-ranking of candidates.
	LLMRouting bool `yaml:"llm_routing"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	// Dir is the root directory for JSON persistence.
	Dir string `yaml:"dir,omitempty"`
}

// ParallelConfig tunes distributed execution.
type ParallelConfig struct {
	// MaxWorkers bounds concurrent fragment execution.
	MaxWorkers int `yaml:"max_workers,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	Agents     []AgentConfig  `yaml:"agents"`
	Routing    RoutingConfig  `yaml:"routing"`
	Storage    StorageConfig  `yaml:"storage"`
	Parallel   ParallelConfig `yaml:"parallel"`
	LLM        llm.Config     `yaml:"llm"`
	SkillsFile string         `yaml:"skills_file,omitempty"`
}

// Validate checks the configuration and applies defaults in place.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return ErrNoAgents
	}
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		if err := c.Agents[i].Validate(); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		id := c.Agents[i].ID
		if id == "" {
			id = c.Agents[i].Kind
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
		}
		seen[id] = true
	}

	if c.Routing.MinConfidence < 0 || c.Routing.MinConfidence > 1 {
		return fmt.Errorf("routing.min_confidence must be in [0, 1]")
	}
	if c.Routing.MinConfidence == 0 {
		c.Routing.MinConfidence = DefaultMinConfidence
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultStorageDir
	}
	if c.Parallel.MaxWorkers < 0 {
		return fmt.Errorf("parallel.max_workers must be non-negative")
	}
	if c.Parallel.MaxWorkers == 0 {
		c.Parallel.MaxWorkers = DefaultMaxWorkers
	}

	if len(c.LLM.Providers) > 0 {
		if err := c.LLM.Validate(); err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}
	return nil
}

// Load reads and validates a YAML config file, resolving provider API keys
// from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for _, p := range cfg.LLM.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
