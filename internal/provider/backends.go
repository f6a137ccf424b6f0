package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"google.golang.org/genai"
)

// newArk constructs the Ark provider on the Eino ark chat model.
func newArk(ctx context.Context, cfg *ProviderArk, tuning SharedTuning) (Provider, error) {
	maxTokens, temp := tuning.MaxTokens, tuning.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.Endpoint,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ark chat model: %w", err)
	}
	return NewEinoProvider(KindArk, m), nil
}

// newOpenAI constructs the OpenAI provider on the Eino openai chat model.
func newOpenAI(ctx context.Context, cfg *ProviderOpenAI, tuning SharedTuning) (Provider, error) {
	maxTokens, temp := tuning.MaxTokens, tuning.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: openai chat model: %w", err)
	}
	return NewEinoProvider(KindOpenAI, m), nil
}

// newOllama constructs the Ollama provider on the Eino ollama chat model.
func newOllama(ctx context.Context, cfg *ProviderOllama) (Provider, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Host,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ollama chat model: %w", err)
	}
	return NewEinoProvider(KindOllama, m), nil
}

// newGemini constructs the Gemini provider on the Eino gemini chat model
// using the AI Studio backend.
func newGemini(ctx context.Context, cfg *ProviderGemini) (Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini chat model: %w", err)
	}
	return NewEinoProvider(KindGemini, m), nil
}
