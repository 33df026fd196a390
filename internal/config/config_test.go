package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillmarket/internal/embedder"
)

var configKeys = []string{
	"SKILLMARKET_HTTP_PORT",
	"SKILLMARKET_SHUTDOWN_TIMEOUT_MS",
	"SKILLMARKET_DB_DRIVER",
	"SKILLMARKET_DB_PATH",
	"DATABASE_URL",
	"SKILLMARKET_JWT_SECRET",
	"SKILLMARKET_ADMIN_IDS",
	"SKILLMARKET_LLM_PROVIDER",
	"SKILLMARKET_LLM_BASE_URL",
	"SKILLMARKET_LLM_API_KEY",
	"SKILLMARKET_LLM_MODEL",
	"SKILLMARKET_LLM_TIMEOUT_MS",
	"SKILLMARKET_EMBEDDING_PROVIDER",
	"SKILLMARKET_EMBEDDING_MODEL",
	"SKILLMARKET_EMBEDDING_BASE_URL",
	"SKILLMARKET_EMBEDDING_CACHE_SIZE",
	"SKILLMARKET_INDEX_WORKERS",
	"SKILLMARKET_INDEX_QUEUE_SIZE",
	"JINA_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
}

// clearEnv unsets every key Load reads and restores them after the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, DefaultDBPath, cfg.DSN())
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.AdminIDs)
	assert.Empty(t, cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, embedder.DefaultCacheSize, cfg.Embedding.CacheSize)
	assert.Equal(t, 4, cfg.IndexWorkers)
	assert.Equal(t, 256, cfg.IndexQueueSize)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLMARKET_HTTP_PORT", "9090")
	t.Setenv("SKILLMARKET_DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/skills")
	t.Setenv("SKILLMARKET_JWT_SECRET", "s3cret")
	t.Setenv("SKILLMARKET_ADMIN_IDS", " ops-1, ,ops-2 ")
	t.Setenv("SKILLMARKET_LLM_TIMEOUT_MS", "1500")
	t.Setenv("SKILLMARKET_EMBEDDING_PROVIDER", "jina")
	t.Setenv("JINA_API_KEY", "jina-key")
	t.Setenv("SKILLMARKET_INDEX_WORKERS", "2")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/skills", cfg.DSN())
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, []string{"ops-1", "ops-2"}, cfg.AdminIDs)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLM.Timeout)
	assert.Equal(t, "jina", cfg.Embedding.Provider)
	assert.Equal(t, "jina-key", cfg.Embedding.JinaAPIKey)
	assert.Equal(t, 2, cfg.IndexWorkers)
}

func TestLoad_LLMKeyFallback(t *testing.T) {
	t.Run("openai key by default", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-openai")
		cfg, err := Load("missing.env")
		require.NoError(t, err)
		assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
		assert.Equal(t, "sk-openai", cfg.Embedding.OpenAIAPIKey)
	})

	t.Run("gemini key for gemini provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-openai")
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("SKILLMARKET_LLM_PROVIDER", "gemini")
		cfg, err := Load("missing.env")
		require.NoError(t, err)
		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
	})

	t.Run("explicit key wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-openai")
		t.Setenv("SKILLMARKET_LLM_API_KEY", "explicit")
		cfg, err := Load("missing.env")
		require.NoError(t, err)
		assert.Equal(t, "explicit", cfg.LLM.APIKey)
	})
}

func TestLoad_InvalidNumbersUseDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLMARKET_INDEX_QUEUE_SIZE", "lots")
	t.Setenv("SKILLMARKET_LLM_TIMEOUT_MS", "-5")

	cfg, err := Load("missing.env")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.IndexQueueSize)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SKILLMARKET_HTTP_PORT=7070\nSKILLMARKET_JWT_SECRET=from-file\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"sqlite ok", Config{HTTPPort: 80, DBDriver: "sqlite"}, ""},
		{"postgres ok", Config{HTTPPort: 80, DBDriver: "postgres", DatabaseURL: "postgres://x"}, ""},
		{"postgres needs url", Config{HTTPPort: 80, DBDriver: "postgres"}, "DATABASE_URL is required"},
		{"unknown driver", Config{HTTPPort: 80, DBDriver: "mysql"}, "unknown database driver"},
		{"bad port", Config{HTTPPort: 70000, DBDriver: "sqlite"}, "invalid http port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
