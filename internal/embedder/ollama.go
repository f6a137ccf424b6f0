package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// OllamaEmbedder calls a local Ollama server's /api/embed. It needs no
// credentials and is safe for concurrent use.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	client     *http.Client
}

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model defaults to nomic-embed-text in the factory.
	Model string
	// Dimensions is the expected vector length (0 = unchecked).
	Dimensions int
	// HTTPClient overrides the default client (60s timeout).
	HTTPClient *http.Client
}

// NewOllamaEmbedder builds an OllamaEmbedder. Local models are slow on
// first load, so the default client waits a full minute.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	e := &OllamaEmbedder{
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     cfg.HTTPClient,
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: time.Minute}
	}
	return e
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ollamaError reads Ollama's {"error": "..."} body.
func ollamaError(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	return e.Error
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: e.model, Input: texts}
	if err := postJSON(ctx, e.client, "ollama", e.host+"/api/embed", nil, req, &out, ollamaError); err != nil {
		return nil, err
	}
	if n := len(out.Embeddings); n != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), n)
	}
	if err := checkDimensions("ollama", out.Embeddings, e.dimensions); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}
