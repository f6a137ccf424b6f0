package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	path, err := Load("/nonexistent/path/config.yaml", slog.Default())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
providers:
  max_tokens: 2048
  temperature: 0.3
  coze:
    bot_id: bot-123
    poll_interval: 500ms
  dify:
    endpoint: https://dify.internal/v1
embedding:
  provider: ollama
  model: nomic-embed-text
qdrant:
  host: qdrant.internal
  port: 6334
  collection: recipes-768
database:
  driver: sqlite
  url: file:eatwhat.db
redis:
  addr: redis.internal:6379
  today_ttl: 2m
server:
  write_timeout: 90s
router:
  cache_size: 64
  cache_ttl: 15m
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"COZE_BOT_ID", "COZE_POLL_INTERVAL", "DIFY_API_ENDPOINT",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"DATABASE_DRIVER", "DATABASE_URL",
		"REDIS_ADDR", "CACHE_TODAY_TTL",
		"ROUTER_CACHE_SIZE", "ROUTER_CACHE_TTL",
		"LOG_LEVEL", "LOG_FORMAT", "EATWHAT_WRITE_TIMEOUT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	loaded, err := Load(cfgPath, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, cfgPath, loaded)

	checks := map[string]string{
		"MODEL_MAX_TOKENS":   "2048",
		"MODEL_TEMPERATURE":  "0.3",
		"COZE_BOT_ID":        "bot-123",
		"COZE_POLL_INTERVAL": "500ms",
		"DIFY_API_ENDPOINT":  "https://dify.internal/v1",
		"EMBEDDING_PROVIDER": "ollama",
		"EMBEDDING_MODEL":    "nomic-embed-text",
		"QDRANT_HOST":        "qdrant.internal",
		"QDRANT_PORT":        "6334",
		"QDRANT_COLLECTION":  "recipes-768",
		"DATABASE_DRIVER":    "sqlite",
		"DATABASE_URL":       "file:eatwhat.db",
		"REDIS_ADDR":         "redis.internal:6379",
		"CACHE_TODAY_TTL":    "2m0s",
		"ROUTER_CACHE_SIZE":  "64",
		"ROUTER_CACHE_TTL":   "15m0s",
		"LOG_LEVEL":          "debug",
		"LOG_FORMAT":         "text",

		"EATWHAT_WRITE_TIMEOUT": "1m30s",
	}
	for k, want := range checks {
		assert.Equal(t, want, os.Getenv(k), k)
	}

	d, err := time.ParseDuration(os.Getenv("CACHE_TODAY_TTL"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	// Set env var BEFORE loading; it must not be overwritten.
	t.Setenv("EMBEDDING_PROVIDER", "siliconflow")

	_, err := Load(cfgPath, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "siliconflow", os.Getenv("EMBEDDING_PROVIDER"))
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644))

	_, err := Load(cfgPath, slog.Default())
	require.Error(t, err)
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "eatwhat.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644))

	t.Setenv("EATWHAT_CONFIG", cfgPath)
	assert.Equal(t, cfgPath, resolveConfigPath(""))
	assert.Empty(t, resolveConfigPath(filepath.Join(dir, "missing.yaml")))
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, float32Str(tt.in), "float32Str(%v)", tt.in)
	}
}

func TestDurationStr(t *testing.T) {
	t.Parallel()
	assert.Empty(t, durationStr(0))
	assert.Equal(t, "1m30s", durationStr(90*time.Second))
}
