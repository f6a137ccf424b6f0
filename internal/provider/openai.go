package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/sse"
)

// CompatConfig configures a CompatProvider.
type CompatConfig struct {
	// Kind is reported by the provider (deepseek, siliconflow or custom).
	Kind       Kind
	APIKey     string
	Endpoint   string
	Model      string
	HTTPClient *http.Client
	// Timeout bounds each blocking HTTP exchange (0 means no bound).
	Timeout time.Duration
	Breaker BreakerSettings
}

// CompatProvider implements Provider against any OpenAI-compatible
// /chat/completions endpoint. Every request carries SystemPrompt followed
// by the user prompt.
type CompatProvider struct {
	kind  Kind
	model string
	http  *upstream
	log   *slog.Logger
}

var _ Provider = (*CompatProvider)(nil)

// NewCompatProvider constructs a CompatProvider.
func NewCompatProvider(cfg *CompatConfig, log *slog.Logger) (*CompatProvider, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, &apperr.ConfigurationError{Component: string(cfg.Kind), Reason: "API key and endpoint are required"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CompatProvider{
		kind:  cfg.Kind,
		model: cfg.Model,
		http:  newUpstream(string(cfg.Kind), cfg.Endpoint, cfg.APIKey, cfg.HTTPClient, cfg.Timeout, cfg.Breaker, log),
		log:   log,
	}, nil
}

// Kind implements Provider.
func (p *CompatProvider) Kind() Kind { return p.kind }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *CompatProvider) request(req *Request, stream bool) *chatCompletionRequest {
	return &chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Stream: stream,
	}
}

// Complete implements Provider. The answer must contain a ```json fenced
// block holding a valid recipe; only the block body is returned.
func (p *CompatProvider) Complete(ctx context.Context, req *Request) (*Result, error) {
	var out chatCompletionResponse
	if err := p.http.sendJSON(ctx, http.MethodPost, "/chat/completions", p.request(req, false), &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, &apperr.EmptyResultError{Service: string(p.kind), Reason: "no content in response"}
	}
	text, err := fencedRecipe(out.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

// fencedRecipe extracts and validates the fenced JSON recipe in content.
func fencedRecipe(content string) (string, error) {
	body, ok := recipe.ExtractJSONBlock(content)
	if !ok {
		return "", &recipe.ParseError{Reason: "no ```json block in response"}
	}
	if _, err := recipe.Parse(body); err != nil {
		return "", err
	}
	return body, nil
}

// Stream implements Provider. Chunks that fail to decode are logged and
// skipped.
func (p *CompatProvider) Stream(ctx context.Context, req *Request, onChunk func(string)) error {
	resp, err := p.http.send(ctx, http.MethodPost, "/chat/completions", p.request(req, true))
	if err != nil {
		return err
	}
	return sse.Read(ctx, resp.Body, sse.Lines, func(payload string) error {
		if payload == sse.Done {
			return nil
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.log.Warn("provider: skipping undecodable stream chunk",
				slog.String("provider", string(p.kind)),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
		return nil
	})
}
