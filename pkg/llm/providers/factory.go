package providers

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Factory struct {
	logger *zap.Logger
}

func NewFactory(logger *zap.Logger) ProviderFactory {
	return &Factory{
		logger: logger,
	}
}

func (f *Factory) CreateProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config, f.logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (only 'openai' is supported)", config.Provider)
	}
}

func (f *Factory) GetSupportedProviders() []string {
	return []string{"openai"}
}
