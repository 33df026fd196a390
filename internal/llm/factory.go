package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// DefaultOpenAIBaseURL is the OpenAI endpoint root
const DefaultOpenAIBaseURL = "https://api.openai.com"

// Config selects and configures a completion provider.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New creates the client named by cfg.Provider. An empty provider means
// openai, or mock when no API key is configured.
func New(ctx context.Context, cfg Config) (Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenAI
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			provider = ProviderMock
		}
	}

	switch provider {
	case ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOpenAIBaseURL
		}
		return NewOpenAIClient(baseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderMock:
		log.Println("LLM provider is mock, replies echo the user message")
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
