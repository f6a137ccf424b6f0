// Package embedder converts text into dense vector embeddings. Each
// implementation talks to a different backend over plain HTTP: the
// OpenAI-compatible /embeddings API (SiliconFlow by default, or OpenAI) and
// the local Ollama /api/embed API.
package embedder

import (
	"context"
	"fmt"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, &apperr.EmptyResultError{Service: "embedding", Reason: "no embedding returned"}
	}
	return vecs[0], nil
}

// checkDimensions rejects vectors whose length differs from want. A zero
// want disables the check.
func checkDimensions(service string, vecs [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("%s embedder: embedding %d has %d dimensions, want %d", service, i, len(v), want)
		}
	}
	return nil
}
