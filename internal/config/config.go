// Package config provides YAML-based configuration for eatwhat.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so every component keeps reading its own
// keys through its *FromEnv constructor.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. EATWHAT_CONFIG environment variable
//  3. ~/.eatwhat/config.yaml
//  4. ./eatwhat.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Providers configures the completion providers.
	Providers ProvidersConfig `yaml:"providers"`

	// Embedding configures the embedding backend used for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector index connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Database configures the relational data store.
	Database DatabaseConfig `yaml:"database"`

	// Redis configures the recipe and "today" caches.
	Redis RedisConfig `yaml:"redis"`

	// History configures the local generation log.
	History HistoryConfig `yaml:"history"`

	// Images configures recipe image generation and the S3 mirror.
	Images ImagesConfig `yaml:"images"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`

	// Router configures the per-user custom provider cache.
	Router RouterConfig `yaml:"router"`
}

// ProvidersConfig holds the settings of every process-wide provider.
type ProvidersConfig struct {
	// MaxTokens caps SDK-backed model responses.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls SDK-backed model randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// HTTPTimeout bounds blocking provider exchanges, e.g. "2m".
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Coze        CozeConfig   `yaml:"coze"`
	DeepSeek    CompatConfig `yaml:"deepseek"`
	SiliconFlow CompatConfig `yaml:"siliconflow"`
	Ark         CompatConfig `yaml:"ark"`
	Dify        DifyConfig   `yaml:"dify"`
	OpenAI      OpenAIConfig `yaml:"openai"`
	Ollama      OllamaConfig `yaml:"ollama"`
	Gemini      GeminiConfig `yaml:"gemini"`
}

// CozeConfig holds the Coze bot settings.
type CozeConfig struct {
	// APIKey is the Coze token. Prefer env var COZE_API_KEY.
	APIKey   string `yaml:"api_key"`
	BotID    string `yaml:"bot_id"`
	Endpoint string `yaml:"endpoint"`
	// PollInterval is the delay between status polls.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPollAttempts bounds the number of status polls.
	MaxPollAttempts int `yaml:"max_poll_attempts"`
}

// CompatConfig holds the settings of an OpenAI-compatible endpoint.
type CompatConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// DifyConfig holds the Dify workflow settings.
type DifyConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (siliconflow, openai, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// MaxTokens caps each text sent for embedding.
	MaxTokens int `yaml:"max_tokens"`
}

// QdrantConfig holds Qdrant settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver string `yaml:"driver"`
	// URL is the DSN. Prefer env var DATABASE_URL when it carries a password.
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	RecipeTTL time.Duration `yaml:"recipe_ttl"`
	TodayTTL  time.Duration `yaml:"today_ttl"`
}

// HistoryConfig holds generation log settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// ImagesConfig holds image generation and mirroring settings.
type ImagesConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// Bucket enables the S3 mirror when set.
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var EATWHAT_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained per-IP requests per second on recommendation routes.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
	// TrustProxy keys the rate limit by X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
	// WriteTimeout bounds short responses. Generation routes clear it and
	// run until the provider timeout or the client goes away.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// RouterConfig holds the custom provider cache settings.
type RouterConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Providers.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Providers.Temperature) }},
	{"PROVIDER_HTTP_TIMEOUT", func(c *Config) string { return durationStr(c.Providers.HTTPTimeout) }},
	{"COZE_API_KEY", func(c *Config) string { return c.Providers.Coze.APIKey }},
	{"COZE_BOT_ID", func(c *Config) string { return c.Providers.Coze.BotID }},
	{"COZE_API_ENDPOINT", func(c *Config) string { return c.Providers.Coze.Endpoint }},
	{"COZE_POLL_INTERVAL", func(c *Config) string { return durationStr(c.Providers.Coze.PollInterval) }},
	{"COZE_MAX_POLL_ATTEMPTS", func(c *Config) string { return intStr(c.Providers.Coze.MaxPollAttempts) }},
	{"DEEPSEEK_API_KEY", func(c *Config) string { return c.Providers.DeepSeek.APIKey }},
	{"DEEPSEEK_API_ENDPOINT", func(c *Config) string { return c.Providers.DeepSeek.Endpoint }},
	{"DEEPSEEK_MODEL", func(c *Config) string { return c.Providers.DeepSeek.Model }},
	{"SILICONFLOW_API_KEY", func(c *Config) string { return c.Providers.SiliconFlow.APIKey }},
	{"SILICONFLOW_API_ENDPOINT", func(c *Config) string { return c.Providers.SiliconFlow.Endpoint }},
	{"SILICONFLOW_MODEL", func(c *Config) string { return c.Providers.SiliconFlow.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Providers.Ark.APIKey }},
	{"ARK_API_ENDPOINT", func(c *Config) string { return c.Providers.Ark.Endpoint }},
	{"ARK_MODEL", func(c *Config) string { return c.Providers.Ark.Model }},
	{"DIFY_API_KEY", func(c *Config) string { return c.Providers.Dify.APIKey }},
	{"DIFY_API_ENDPOINT", func(c *Config) string { return c.Providers.Dify.Endpoint }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Providers.OpenAI.APIKey }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Providers.OpenAI.BaseURL }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Providers.OpenAI.Model }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Providers.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Providers.Ollama.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Providers.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Providers.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_MAX_TOKENS", func(c *Config) string { return intStr(c.Embedding.MaxTokens) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"DATABASE_DRIVER", func(c *Config) string { return c.Database.Driver }},
	{"DATABASE_URL", func(c *Config) string { return c.Database.URL }},
	{"DATABASE_MAX_OPEN_CONNS", func(c *Config) string { return intStr(c.Database.MaxOpenConns) }},
	{"REDIS_URL", func(c *Config) string { return c.Redis.URL }},
	{"REDIS_ADDR", func(c *Config) string { return c.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *Config) string { return c.Redis.Password }},
	{"REDIS_DB", func(c *Config) string { return intStr(c.Redis.DB) }},
	{"CACHE_RECIPE_TTL", func(c *Config) string { return durationStr(c.Redis.RecipeTTL) }},
	{"CACHE_TODAY_TTL", func(c *Config) string { return durationStr(c.Redis.TodayTTL) }},
	{"EATWHAT_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"SILICONFLOW_API_ENDPOINT", func(c *Config) string { return c.Images.Endpoint }},
	{"IMAGE_API_KEY", func(c *Config) string { return c.Images.APIKey }},
	{"SILICONFLOW_PICTURE_MODEL", func(c *Config) string { return c.Images.Model }},
	{"S3_BUCKET_NAME", func(c *Config) string { return c.Images.Bucket }},
	{"AWS_REGION", func(c *Config) string { return c.Images.Region }},
	{"IMAGE_PRESIGN_EXPIRY", func(c *Config) string { return durationStr(c.Images.PresignExpiry) }},
	{"EATWHAT_HOST", func(c *Config) string { return c.Server.Host }},
	{"EATWHAT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"EATWHAT_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"EATWHAT_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"EATWHAT_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"EATWHAT_TRUST_PROXY", func(c *Config) string { return boolStr(c.Server.TrustProxy) }},
	{"EATWHAT_WRITE_TIMEOUT", func(c *Config) string { return durationStr(c.Server.WriteTimeout) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
	{"ROUTER_CACHE_SIZE", func(c *Config) string { return intStr(c.Router.CacheSize) }},
	{"ROUTER_CACHE_TTL", func(c *Config) string { return durationStr(c.Router.CacheTTL) }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("EATWHAT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".eatwhat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("eatwhat.yaml"); err == nil {
		return "eatwhat.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// durationStr renders a duration in the form time.ParseDuration accepts.
func durationStr(v time.Duration) string {
	if v <= 0 {
		return ""
	}
	return v.String()
}
