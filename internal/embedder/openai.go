package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// OpenAIEmbedder implements Embedder using an OpenAI-compatible embeddings
// REST API (SiliconFlow, OpenAI). It is safe for concurrent use.
type OpenAIEmbedder struct {
	// service names the backend in errors and logs.
	service string
	// baseURL is the API base (e.g. "https://api.siliconflow.cn/v1").
	baseURL string
	// apiKey is the Bearer token.
	apiKey string
	// model is the embedding model name.
	model string
	// dimensions is the expected vector length (0 = unchecked).
	dimensions int
	// sendDimensions forwards dimensions in the request body. Only models
	// with configurable output size accept it.
	sendDimensions bool
	client         *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// Service names the backend ("siliconflow" or "openai").
	Service string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected vector length (0 = model default, unchecked).
	Dimensions int
	// SendDimensions asks the API for Dimensions-sized vectors.
	SendDimensions bool
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	service := cfg.Service
	if service == "" {
		service = "openai"
	}
	return &OpenAIEmbedder{
		service:        service,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		dimensions:     cfg.Dimensions,
		sendDimensions: cfg.SendDimensions,
		client:         client,
	}
}

type openaiEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// openaiError reads either {"error": {"message": ...}} or SiliconFlow's
// flat {"message": ...}.
func openaiError(raw []byte) string {
	var e struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := openaiEmbedRequest{Input: texts, Model: e.model, EncodingFormat: "float"}
	if e.sendDimensions {
		body.Dimensions = e.dimensions
	}

	var result openaiEmbedResponse
	header := http.Header{"Authorization": {"Bearer " + e.apiKey}}
	if err := postJSON(ctx, e.client, e.service, e.baseURL+"/embeddings", header, body, &result, openaiError); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%s embedder: expected %d embeddings, got %d", e.service, len(texts), len(result.Data))
	}

	// The API may return data out of order; sort by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%s embedder: index %d out of range [0, %d)", e.service, d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}

	if err := checkDimensions(e.service, embeddings, e.dimensions); err != nil {
		return nil, err
	}
	return embeddings, nil
}
