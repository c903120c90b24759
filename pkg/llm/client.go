package llm

import (
	"context"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/llm/providers"

	"go.uber.org/zap"
)

// Client обертка над провайдерами инференс-движка
type Client struct {
	provider providers.Provider
	logger   *zap.Logger
}

// Message совместимый тип (переиспользуем из providers)
type Message = providers.Message

// ChatResponse совместимый тип
type ChatResponse = providers.ChatResponse

// Choice совместимый тип
type Choice = providers.Choice

// Usage совместимый тип
type Usage = providers.Usage

// StreamChunk совместимый тип
type StreamChunk = providers.StreamChunk

// NewClientWithProvider создает клиент с готовым провайдером
func NewClientWithProvider(provider providers.Provider, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		logger:   logger,
	}
}

// ChatCompletion выполняет запрос к инференс-движку (делегирует провайдеру)
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (*ChatResponse, error) {
	c.logger.Debug("Executing chat completion",
		zap.String("provider", c.provider.GetName()),
		zap.Int("messages_count", len(messages)),
	)

	return c.provider.ChatCompletion(ctx, messages)
}

// ChatCompletionStream выполняет стриминговый запрос к инференс-движку
func (c *Client) ChatCompletionStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	c.logger.Debug("Executing streaming chat completion",
		zap.String("provider", c.provider.GetName()),
		zap.Int("messages_count", len(messages)),
	)

	return c.provider.ChatCompletionStream(ctx, messages)
}

// GetProviderName возвращает имя используемого провайдера
func (c *Client) GetProviderName() string {
	return c.provider.GetName()
}
