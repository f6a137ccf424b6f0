package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/budget"
)

// Default embedding models and endpoints per backend.
const (
	defaultSiliconFlowEndpoint = "https://api.siliconflow.cn/v1"
	defaultOpenAIEndpoint      = "https://api.openai.com/v1"
	defaultOpenAIModel         = "text-embedding-3-small"
	defaultOllamaModel         = "nomic-embed-text"

	// DefaultIndexDimensions is the vector size of the recipe index.
	DefaultIndexDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
)

// Backend returns the configured embedding backend name:
// EMBEDDING_PROVIDER, defaulting to "siliconflow".
func Backend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "siliconflow")
}

// DefaultDimensions returns the embedding vector size for backend. Callers
// that pre-configure the vector index should use this rather than
// hardcoding a value. EMBEDDING_DIMENSIONS always takes precedence.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return DefaultIndexDimensions
}

// NewFromEnv constructs an Embedder from environment variables.
//
//	EMBEDDING_PROVIDER   siliconflow (default) | openai | ollama
//	EMBEDDING_MODEL      overrides the backend's model
//	EMBEDDING_API_KEY    overrides the inherited API key
//	EMBEDDING_ENDPOINT   overrides the inherited endpoint
//	EMBEDDING_DIMENSIONS overrides the expected vector size
//	EMBEDDING_MAX_TOKENS caps each input text (default 8000, 0 disables)
//
// SiliconFlow inherits SILICONFLOW_API_KEY, SILICONFLOW_API_ENDPOINT and
// SILICONFLOW_EMBEDDING_MODEL (then SILICONFLOW_MODEL). OpenAI inherits
// OPENAI_API_KEY and OPENAI_BASE_URL. Ollama inherits OLLAMA_HOST.
func NewFromEnv() (Embedder, error) {
	e, err := newBackend(Backend())
	if err != nil {
		return nil, err
	}
	return Limit(e, getEnvInt("EMBEDDING_MAX_TOKENS", budget.DefaultMaxInputTokens)), nil
}

func newBackend(backend string) (Embedder, error) {
	dims := DefaultDimensions(backend)

	switch backend {
	case "siliconflow":
		apiKey := firstEnv("EMBEDDING_API_KEY", "SILICONFLOW_API_KEY")
		if apiKey == "" {
			return nil, &apperr.ConfigurationError{Component: "embedder", Reason: "siliconflow requires SILICONFLOW_API_KEY or EMBEDDING_API_KEY"}
		}
		model := firstEnv("EMBEDDING_MODEL", "SILICONFLOW_EMBEDDING_MODEL", "SILICONFLOW_MODEL")
		if model == "" {
			return nil, &apperr.ConfigurationError{Component: "embedder", Reason: "siliconflow requires SILICONFLOW_EMBEDDING_MODEL or EMBEDDING_MODEL"}
		}
		baseURL := firstEnv("EMBEDDING_ENDPOINT", "SILICONFLOW_API_ENDPOINT")
		if baseURL == "" {
			baseURL = defaultSiliconFlowEndpoint
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			Service:    "siliconflow",
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: dims,
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, &apperr.ConfigurationError{Component: "embedder", Reason: "openai requires OPENAI_API_KEY or EMBEDDING_API_KEY"}
		}
		baseURL := firstEnv("EMBEDDING_ENDPOINT", "OPENAI_BASE_URL")
		if baseURL == "" {
			baseURL = defaultOpenAIEndpoint
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			Service:        "openai",
			BaseURL:        baseURL,
			APIKey:         apiKey,
			Model:          getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions:     dims,
			SendDimensions: true,
		}), nil

	case "ollama":
		host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       host,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: dims,
		}), nil

	default:
		return nil, &apperr.ConfigurationError{
			Component: "embedder",
			Reason:    fmt.Sprintf("unknown backend %q, valid values: siliconflow, openai, ollama", backend),
		}
	}
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
