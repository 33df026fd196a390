package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{"explicit provider wins", Config{Provider: "Gemini", JinaAPIKey: "k"}, ProviderGemini},
		{"jina key", Config{JinaAPIKey: "k", OpenAIAPIKey: "k"}, ProviderJina},
		{"openai key", Config{OpenAIAPIKey: "k", GeminiAPIKey: "k"}, ProviderOpenAI},
		{"gemini key", Config{GeminiAPIKey: "k"}, ProviderGemini},
		{"no keys", Config{}, ProviderLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectProvider(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvGeminiAPIKey, "")

	t.Run("local", func(t *testing.T) {
		emb, err := New(ctx, Config{Provider: ProviderLocal})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("openai with overrides", func(t *testing.T) {
		emb, err := New(ctx, Config{OpenAIAPIKey: "k", Model: "text-embedding-3-large", BaseURL: "http://localhost:9999/"})
		require.NoError(t, err)
		p, ok := emb.(*HTTPProvider)
		require.True(t, ok)
		assert.Equal(t, "text-embedding-3-large", p.Model())
		assert.Equal(t, "http://localhost:9999", p.baseURL)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: ProviderJina})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("key from environment", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "env-key")
		emb, err := New(ctx, Config{Provider: ProviderJina})
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, emb.Provider())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}
