package llm

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Provider Configuration
// =============================================================================

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	// Provider is the provider identifier ("anthropic", "openai", "gemini")
	Provider string `yaml:"provider"`

	// APIKey is the authentication key - never serialized to YAML
	APIKey string `yaml:"-"`

	// APIKeyEnv names the environment variable holding the key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Model is the model identifier to request
	Model string `yaml:"model,omitempty"`

	// MaxTokens caps the completion length
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// BaseURL overrides the default API endpoint (optional)
	BaseURL string `yaml:"base_url,omitempty"`

	// Enabled indicates if this provider is active
	Enabled bool `yaml:"enabled"`
}

// Validate checks if the provider configuration is valid.
func (c *ProviderConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Config holds the complete LLM configuration.
type Config struct {
	// Providers is the ordered fallback chain; first enabled entry is primary
	Providers []*ProviderConfig `yaml:"providers"`

	// CacheSize is the LRU response cache capacity (0 disables caching)
	CacheSize int `yaml:"cache_size,omitempty"`
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	return nil
}

// LoadConfig reads a YAML config file and resolves API keys from the
// environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading llm config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing llm config: %w", err)
	}

	for _, p := range cfg.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Build constructs the configured provider stack: each enabled provider in
// order, wrapped in a fallback chain, wrapped in an LRU cache when enabled.
func (c *Config) Build(logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Provider
	for _, pc := range c.Providers {
		if !pc.Enabled {
			continue
		}
		p, err := newProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", pc.Provider, err)
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	var provider Provider
	if len(providers) == 1 {
		provider = providers[0]
	} else {
		provider = NewFallbackChain(logger, providers...)
	}

	if c.CacheSize > 0 {
		cached, err := NewCachedProvider(provider, c.CacheSize)
		if err != nil {
			return nil, err
		}
		provider = cached
	}
	return provider, nil
}

func newProvider(cfg *ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(*cfg)
	case "openai":
		return NewOpenAIProvider(*cfg)
	case "gemini":
		return NewGeminiProvider(*cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
