package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"
)

// OpenAIProvider работает с любым OpenAI-совместимым инференс-движком
// (vLLM, Ollama, OpenRouter и т.д.) через base_url
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	client     *openai.Client
	logger     *zap.Logger
}

func NewOpenAIProvider(config Config, logger *zap.Logger) (Provider, error) {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}

	provider := &OpenAIProvider{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With(zap.String("provider", "openai")),
	}

	opts := []option.RequestOption{
		option.WithAPIKey(provider.apiKey),
		option.WithHTTPClient(provider.httpClient),
	}
	if provider.baseURL != "" {
		opts = append(opts, option.WithBaseURL(provider.baseURL))
	}

	oaClient := openai.NewClient(opts...)
	provider.client = &oaClient

	if err := provider.ValidateConfig(); err != nil {
		return nil, err
	}

	return provider, nil
}

func (p *OpenAIProvider) GetName() string {
	return "openai"
}

func (p *OpenAIProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("API key is required for OpenAI-compatible provider")
	}
	if p.model == "" {
		return fmt.Errorf("model is required for OpenAI-compatible provider")
	}
	return nil
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, messages []Message) (*ChatResponse, error) {
	p.logger.Debug("Sending chat completion request",
		zap.String("model", p.model),
		zap.Int("messages_count", len(messages)),
	)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: p.convertMessages(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}

	return p.convertResponse(resp), nil
}

func (p *OpenAIProvider) ChatCompletionStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	p.logger.Debug("Sending streaming chat completion request",
		zap.String("model", p.model),
		zap.Int("messages_count", len(messages)),
	)

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: p.convertMessages(messages),
	})

	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			resp := stream.Current()
			if len(resp.Choices) > 0 {
				choice := resp.Choices[0]
				if choice.Delta.Content != "" {
					chunks <- StreamChunk{Content: choice.Delta.Content}
				}
				if choice.FinishReason != "" {
					chunks <- StreamChunk{Done: true}
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Error: fmt.Errorf("stream error: %w", err)}
			return
		}
		chunks <- StreamChunk{Done: true}
	}()

	return chunks, nil
}

func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	oaMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case "system":
			oaMessages[i] = openai.SystemMessage(msg.Content)
		case "assistant":
			oaMessages[i] = openai.AssistantMessage(msg.Content)
		default:
			oaMessages[i] = openai.UserMessage(msg.Content)
		}
	}
	return oaMessages
}

func (p *OpenAIProvider) convertResponse(resp *openai.ChatCompletion) *ChatResponse {
	choices := make([]Choice, len(resp.Choices))
	for i, choice := range resp.Choices {
		choices[i] = Choice{
			Index: int(choice.Index),
			Message: Message{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return &ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
