package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// =============================================================================
// Anthropic Provider
// =============================================================================

const defaultAnthropicModel = "claude-sonnet-4-5-20250901"

// AnthropicProvider implements Provider for Anthropic's Claude models.
type AnthropicProvider struct {
	client *anthropic.Client
	config ProviderConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(config ProviderConfig) (*AnthropicProvider, error) {
	if config.Model == "" {
		config.Model = defaultAnthropicModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate performs a non-streaming completion request. System messages are
// lifted into the dedicated system block per the Anthropic API contract.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.config.Model),
		MaxTokens:   int64(p.config.MaxTokens),
		System:      system,
		Messages:    turns,
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
