package embedder

import (
	"context"
	"log/slog"

	"github.com/54b3r/eatwhat-go/internal/budget"
	"github.com/54b3r/eatwhat-go/internal/logging"
)

// Limited truncates every input text to a token budget before delegating
// to the wrapped Embedder.
type Limited struct {
	Embedder
	maxTokens int
}

// Limit wraps e so that no text sent to the backend exceeds maxTokens
// estimated tokens. A non-positive maxTokens returns e unchanged.
func Limit(e Embedder, maxTokens int) Embedder {
	if maxTokens <= 0 {
		return e
	}
	return &Limited{Embedder: e, maxTokens: maxTokens}
}

// Embed implements Embedder.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	trimmed, cut := budget.TruncateAll(texts, l.maxTokens)
	if cut > 0 {
		logging.FromContext(ctx).Debug("embedder: truncated input texts",
			slog.Int("count", cut),
			slog.Int("max_tokens", l.maxTokens),
		)
	}
	return l.Embedder.Embed(ctx, trimmed)
}
