// Package config provides configuration for the skillmarket server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/skillmarket/internal/embedder"
	"github.com/dshills/skillmarket/internal/llm"
	"github.com/dshills/skillmarket/internal/storage"
)

// DefaultDBPath is the default SQLite database location
const DefaultDBPath = "~/.skillmarket/skillmarket.db"

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort        int
	ShutdownTimeout time.Duration

	// Database
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Auth
	JWTSecret string
	AdminIDs  []string

	// Providers
	LLM       llm.Config
	Embedding embedder.Config

	// Background indexing
	IndexWorkers   int
	IndexQueueSize int
}

// Load reads .env files (if any) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	openAIKey := getEnv("OPENAI_API_KEY", "")
	geminiKey := getEnv("GEMINI_API_KEY", "")

	llmProvider := strings.ToLower(getEnv("SKILLMARKET_LLM_PROVIDER", ""))
	llmKey := getEnv("SKILLMARKET_LLM_API_KEY", "")
	if llmKey == "" {
		if llmProvider == llm.ProviderGemini {
			llmKey = geminiKey
		} else {
			llmKey = openAIKey
		}
	}

	cfg := &Config{
		HTTPPort:        getEnvInt("SKILLMARKET_HTTP_PORT", 8080),
		ShutdownTimeout: getEnvDuration("SKILLMARKET_SHUTDOWN_TIMEOUT_MS", 10*time.Second),
		DBDriver:        strings.ToLower(getEnv("SKILLMARKET_DB_DRIVER", storage.BackendSQLite)),
		DBPath:          getEnv("SKILLMARKET_DB_PATH", DefaultDBPath),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTSecret:       getEnv("SKILLMARKET_JWT_SECRET", ""),
		AdminIDs:        getEnvList("SKILLMARKET_ADMIN_IDS"),
		LLM: llm.Config{
			Provider: llmProvider,
			BaseURL:  getEnv("SKILLMARKET_LLM_BASE_URL", ""),
			APIKey:   llmKey,
			Model:    getEnv("SKILLMARKET_LLM_MODEL", ""),
			Timeout:  getEnvDuration("SKILLMARKET_LLM_TIMEOUT_MS", 60*time.Second),
		},
		Embedding: embedder.Config{
			Provider:     getEnv(embedder.EnvProvider, ""),
			JinaAPIKey:   getEnv(embedder.EnvJinaAPIKey, ""),
			OpenAIAPIKey: openAIKey,
			GeminiAPIKey: geminiKey,
			Model:        getEnv("SKILLMARKET_EMBEDDING_MODEL", ""),
			BaseURL:      getEnv("SKILLMARKET_EMBEDDING_BASE_URL", ""),
			CacheSize:    getEnvInt("SKILLMARKET_EMBEDDING_CACHE_SIZE", embedder.DefaultCacheSize),
		},
		IndexWorkers:   getEnvInt("SKILLMARKET_INDEX_WORKERS", 4),
		IndexQueueSize: getEnvInt("SKILLMARKET_INDEX_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	switch c.DBDriver {
	case storage.BackendSQLite:
	case storage.BackendPostgres, "postgresql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", c.DBDriver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == storage.BackendSQLite {
		return c.DBPath
	}
	return c.DatabaseURL
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated list, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
