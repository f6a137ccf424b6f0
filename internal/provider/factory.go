package provider

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ProviderCoze holds the Coze bot credentials.
type ProviderCoze struct {
	APIKey   string
	BotID    string
	Endpoint string
}

// ProviderCompat holds the settings of an OpenAI-compatible chat endpoint.
type ProviderCompat struct {
	APIKey   string
	Endpoint string
	Model    string
}

// ProviderDify holds the Dify workflow credentials.
type ProviderDify struct {
	APIKey   string
	Endpoint string
}

// ProviderArk holds the Volcano Engine Ark settings.
type ProviderArk struct {
	APIKey   string
	Endpoint string
	Model    string
}

// ProviderOpenAI holds the OpenAI settings.
type ProviderOpenAI struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ProviderOllama holds the local Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderGemini holds the Google AI Studio settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning applies to every Eino-backed model.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// Config holds the settings for every process-wide provider. A provider is
// built only when its required credentials are present.
type Config struct {
	Coze        ProviderCoze
	DeepSeek    ProviderCompat
	SiliconFlow ProviderCompat
	Dify        ProviderDify
	Ark         ProviderArk
	OpenAI      ProviderOpenAI
	Ollama      ProviderOllama
	Gemini      ProviderGemini
	Tuning      SharedTuning
	Breaker     BreakerSettings

	// HTTPTimeout bounds each HTTP exchange of the plain-HTTP providers.
	// Streaming requests are bounded by the caller's context instead.
	HTTPTimeout time.Duration
	// PollInterval and MaxPollAttempts tune the Coze polling loop.
	PollInterval    time.Duration
	MaxPollAttempts int
}

// ConfigFromEnv reads provider settings from environment variables.
//
//	Coze:        COZE_API_KEY, COZE_BOT_ID, COZE_API_ENDPOINT (default https://api.coze.cn/v1)
//	DeepSeek:    DEEPSEEK_API_KEY, DEEPSEEK_API_ENDPOINT, DEEPSEEK_MODEL
//	SiliconFlow: SILICONFLOW_API_KEY, SILICONFLOW_API_ENDPOINT, SILICONFLOW_MODEL
//	Dify:        DIFY_API_KEY, DIFY_API_ENDPOINT
//	Ark:         ARK_API_KEY, ARK_API_ENDPOINT, ARK_MODEL
//	OpenAI:      OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL (default gpt-4o)
//	Ollama:      OLLAMA_HOST (default http://localhost:11434), OLLAMA_MODEL
//	Gemini:      GOOGLE_API_KEY, GEMINI_MODEL (default gemini-1.5-pro)
//
//	Shared:      MODEL_MAX_TOKENS (default 4096), MODEL_TEMPERATURE (default 0.7),
//	             PROVIDER_HTTP_TIMEOUT (default 2m), COZE_POLL_INTERVAL (default 1s),
//	             COZE_MAX_POLL_ATTEMPTS (default 300)
func ConfigFromEnv() *Config {
	return &Config{
		Coze: ProviderCoze{
			APIKey:   os.Getenv("COZE_API_KEY"),
			BotID:    os.Getenv("COZE_BOT_ID"),
			Endpoint: getEnvOrDefault("COZE_API_ENDPOINT", defaultCozeEndpoint),
		},
		DeepSeek: ProviderCompat{
			APIKey:   os.Getenv("DEEPSEEK_API_KEY"),
			Endpoint: os.Getenv("DEEPSEEK_API_ENDPOINT"),
			Model:    os.Getenv("DEEPSEEK_MODEL"),
		},
		SiliconFlow: ProviderCompat{
			APIKey:   os.Getenv("SILICONFLOW_API_KEY"),
			Endpoint: os.Getenv("SILICONFLOW_API_ENDPOINT"),
			Model:    os.Getenv("SILICONFLOW_MODEL"),
		},
		Dify: ProviderDify{
			APIKey:   os.Getenv("DIFY_API_KEY"),
			Endpoint: os.Getenv("DIFY_API_ENDPOINT"),
		},
		Ark: ProviderArk{
			APIKey:   os.Getenv("ARK_API_KEY"),
			Endpoint: os.Getenv("ARK_API_ENDPOINT"),
			Model:    os.Getenv("ARK_MODEL"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 4096),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.7),
		},
		HTTPTimeout:     getEnvDuration("PROVIDER_HTTP_TIMEOUT", 2*time.Minute),
		PollInterval:    getEnvDuration("COZE_POLL_INTERVAL", defaultCozePollInterval),
		MaxPollAttempts: getEnvInt("COZE_MAX_POLL_ATTEMPTS", defaultCozeMaxAttempts),
	}
}

// Build constructs every provider whose credentials are present in cfg.
// Providers without credentials are skipped and logged at debug level; the
// Router reports them as unconfigured if they are requested.
func Build(ctx context.Context, cfg *Config, log *slog.Logger) (map[Kind]Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	client := &http.Client{}

	out := make(map[Kind]Provider)
	skip := func(k Kind, reason string) {
		log.Debug("provider: not configured", slog.String("provider", string(k)), slog.String("reason", reason))
	}

	if cfg.Coze.APIKey != "" && cfg.Coze.BotID != "" {
		p, err := NewCozeProvider(&CozeConfig{
			APIKey:          cfg.Coze.APIKey,
			BotID:           cfg.Coze.BotID,
			Endpoint:        cfg.Coze.Endpoint,
			PollInterval:    cfg.PollInterval,
			MaxPollAttempts: cfg.MaxPollAttempts,
			HTTPClient:      client,
			Timeout:         cfg.HTTPTimeout,
			Breaker:         cfg.Breaker,
		}, log)
		if err != nil {
			return nil, err
		}
		out[KindCoze] = p
	} else {
		skip(KindCoze, "COZE_API_KEY or COZE_BOT_ID unset")
	}

	for _, c := range []struct {
		kind Kind
		cfg  ProviderCompat
	}{
		{KindDeepSeek, cfg.DeepSeek},
		{KindSiliconFlow, cfg.SiliconFlow},
	} {
		if c.cfg.APIKey == "" || c.cfg.Endpoint == "" {
			skip(c.kind, "API key or endpoint unset")
			continue
		}
		p, err := NewCompatProvider(&CompatConfig{
			Kind:       c.kind,
			APIKey:     c.cfg.APIKey,
			Endpoint:   c.cfg.Endpoint,
			Model:      c.cfg.Model,
			HTTPClient: client,
			Timeout:    cfg.HTTPTimeout,
			Breaker:    cfg.Breaker,
		}, log)
		if err != nil {
			return nil, err
		}
		out[c.kind] = p
	}

	if cfg.Dify.APIKey != "" && cfg.Dify.Endpoint != "" {
		p, err := NewDifyProvider(&DifyConfig{
			APIKey:     cfg.Dify.APIKey,
			Endpoint:   cfg.Dify.Endpoint,
			HTTPClient: client,
			Timeout:    cfg.HTTPTimeout,
			Breaker:    cfg.Breaker,
		}, log)
		if err != nil {
			return nil, err
		}
		out[KindDify] = p
	} else {
		skip(KindDify, "DIFY_API_KEY or DIFY_API_ENDPOINT unset")
	}

	if cfg.Ark.APIKey != "" && cfg.Ark.Model != "" {
		p, err := newArk(ctx, &cfg.Ark, cfg.Tuning)
		if err != nil {
			return nil, err
		}
		out[KindArk] = p
	} else {
		skip(KindArk, "ARK_API_KEY or ARK_MODEL unset")
	}

	if cfg.OpenAI.APIKey != "" {
		p, err := newOpenAI(ctx, &cfg.OpenAI, cfg.Tuning)
		if err != nil {
			return nil, err
		}
		out[KindOpenAI] = p
	} else {
		skip(KindOpenAI, "OPENAI_API_KEY unset")
	}

	if cfg.Ollama.Model != "" {
		p, err := newOllama(ctx, &cfg.Ollama)
		if err != nil {
			return nil, err
		}
		out[KindOllama] = p
	} else {
		skip(KindOllama, "OLLAMA_MODEL unset")
	}

	if cfg.Gemini.APIKey != "" {
		p, err := newGemini(ctx, &cfg.Gemini)
		if err != nil {
			return nil, err
		}
		out[KindGemini] = p
	} else {
		skip(KindGemini, "GOOGLE_API_KEY unset")
	}

	return out, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
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

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
