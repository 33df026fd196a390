package embedder

import (
	"context"
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider     string // jina, openai, gemini or local; empty auto-detects
	JinaAPIKey   string
	OpenAIAPIKey string
	GeminiAPIKey string
	Model        string // Optional: override the provider default
	BaseURL      string // Optional: alternate endpoint for the HTTP providers
	CacheSize    int    // 0 uses DefaultCacheSize, negative disables caching
}

// DetectProvider returns the provider New would pick for cfg.
// Priority:
// 1. cfg.Provider
// 2. the first API key present: Jina, OpenAI, Gemini
// 3. local
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	switch {
	case cfg.JinaAPIKey != "":
		return ProviderJina
	case cfg.OpenAIAPIKey != "":
		return ProviderOpenAI
	case cfg.GeminiAPIKey != "":
		return ProviderGemini
	default:
		return ProviderLocal
	}
}

// New creates an embedder for cfg
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize >= 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch provider := DetectProvider(cfg); provider {
	case ProviderJina:
		p, err := NewJinaProvider(cfg.JinaAPIKey, cache)
		if err != nil {
			return nil, err
		}
		return p.WithBaseURL(cfg.BaseURL).WithModel(cfg.Model), nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cache)
		if err != nil {
			return nil, err
		}
		return p.WithBaseURL(cfg.BaseURL).WithModel(cfg.Model), nil
	case ProviderGemini:
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.BaseURL, cache)
		if err != nil {
			return nil, err
		}
		return p.WithModel(cfg.Model), nil
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
}
