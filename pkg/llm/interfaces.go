package llm

import (
	"context"
)

// LLMClient интерфейс для работы с инференс-движком
type LLMClient interface {
	ChatCompletion(ctx context.Context, messages []Message) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)
}

// Verify interface implementation
var _ LLMClient = (*Client)(nil)
