package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// =============================================================================
// OpenAI Provider
// =============================================================================

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements Provider for OpenAI's GPT models.
type OpenAIProvider struct {
	client *openai.Client
	config ProviderConfig
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config ProviderConfig) (*OpenAIProvider, error) {
	if config.Model == "" {
		config.Model = defaultOpenAIModel
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

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate performs a non-streaming chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	turns := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			turns = append(turns, openai.SystemMessage(m.Content))
		case RoleAssistant:
			turns = append(turns, openai.AssistantMessage(m.Content))
		default:
			turns = append(turns, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.config.Model),
		Messages:    turns,
		Temperature: openai.Float(temperature),
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.config.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return completion.Choices[0].Message.Content, nil
}
