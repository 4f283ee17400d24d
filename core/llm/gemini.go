package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// =============================================================================
// Gemini Provider
// =============================================================================

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements Provider for Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	config ProviderConfig
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(config ProviderConfig) (*GeminiProvider, error) {
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// Generate performs a non-streaming generation request. System messages are
// concatenated into the system instruction; the remaining turns are sent as
// alternating content.
func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	var systemParts []string
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	if p.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.config.MaxTokens)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
