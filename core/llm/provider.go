package llm

import (
	"context"
	"errors"
	"log/slog"
)

// =============================================================================
// Provider Interface
// =============================================================================

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat exchange.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider generates a completion for an ordered list of messages.
// Implementations must return an error for transport/API failures; a
// malformed-but-delivered completion is returned as a plain string and left
// for the caller to parse.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, temperature float64) (string, error)
}

var (
	// ErrNoProviders indicates a fallback chain with no members
	ErrNoProviders = errors.New("no providers configured")

	// ErrEmptyResponse indicates the provider returned no content
	ErrEmptyResponse = errors.New("provider returned empty response")
)

// System is shorthand for a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User is shorthand for a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant is shorthand for an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// =============================================================================
// Fallback Chain
// =============================================================================

// FallbackChain tries each provider in order until one succeeds.
type FallbackChain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallbackChain creates a chain over the given providers.
func NewFallbackChain(logger *slog.Logger, providers ...Provider) *FallbackChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChain{providers: providers, logger: logger}
}

// Name returns the chain identifier.
func (c *FallbackChain) Name() string { return "fallback_chain" }

// Generate tries each provider in order, returning the first success.
func (c *FallbackChain) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProviders
	}

	var lastErr error
	for _, p := range c.providers {
		out, err := p.Generate(ctx, messages, temperature)
		if err == nil {
			return out, nil
		}
		lastErr = err
		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err)
	}
	return "", lastErr
}
