// Package indexer implements the recipe indexing pipeline. It pages
// through the catalog, embeds each recipe's descriptive text and upserts
// the vectors into the vector index keyed by recipe id. This pipeline is
// invoked by the `eatwhat index` CLI command.
package indexer

import (
	"context"
	"fmt"

	"github.com/54b3r/eatwhat-go/internal/embedder"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/vectorindex"
)

// RecipeLister pages through the catalog in a stable order.
type RecipeLister interface {
	ListRecipes(ctx context.Context, offset, limit int) ([]recipe.Record, error)
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// BatchSize is the number of recipes embedded per request.
	// Defaults to 32 if zero.
	BatchSize int
}

// Pipeline orchestrates the list → embed → upsert flow over the catalog.
type Pipeline struct {
	// embedder converts recipe text into dense vector embeddings.
	embedder embedder.Embedder

	// index persists the embedded recipes.
	index vectorindex.Index

	// recipes is the catalog being indexed.
	recipes RecipeLister

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb embedder.Embedder, index vectorindex.Index, recipes RecipeLister, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("indexer: index must not be nil")
	}
	if recipes == nil {
		return nil, fmt.Errorf("indexer: recipe source must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Pipeline{embedder: emb, index: index, recipes: recipes, cfg: cfg}, nil
}

// Run embeds and stores every recipe in the catalog and returns how many
// were indexed. It processes batches sequentially and returns the first
// error encountered. Progress is reported via the optional progress
// callback.
func (p *Pipeline) Run(ctx context.Context, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	total := 0
	for offset := 0; ; offset += p.cfg.BatchSize {
		batch, err := p.recipes.ListRecipes(ctx, offset, p.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("indexer: list recipes at %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		if err := p.Index(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
		progress(fmt.Sprintf("indexed %d recipes", total))

		if len(batch) < p.cfg.BatchSize {
			break
		}
	}
	return total, nil
}

// Index embeds and upserts recs.
func (p *Pipeline) Index(ctx context.Context, recs []recipe.Record) error {
	if len(recs) == 0 {
		return nil
	}
	texts := make([]string, len(recs))
	for i := range recs {
		texts[i] = recs[i].EmbeddingText()
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("indexer: embedding failed for %d recipes: %w", len(recs), err)
	}
	if len(vecs) != len(recs) {
		return fmt.Errorf("indexer: embedder returned %d vectors for %d recipes", len(vecs), len(recs))
	}

	points := make([]vectorindex.Point, len(recs))
	for i := range recs {
		points[i] = vectorindex.Point{ID: recs[i].ID, Vector: vecs[i], Payload: Payload(&recs[i])}
	}
	if err := p.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("indexer: upsert failed: %w", err)
	}
	return nil
}

// Remove deletes the vector of recipe id.
func (p *Pipeline) Remove(ctx context.Context, id string) error {
	if err := p.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("indexer: delete %s: %w", id, err)
	}
	return nil
}

// Status reports the index connection state and size.
type Status struct {
	Status      string `json:"status"`
	RecipeCount int    `json:"recipeCount"`
	// CatalogCount is the number of recipes in the store, reported when the
	// recipe source can count them.
	CatalogCount int64 `json:"catalogCount,omitempty"`
}

// catalogCounter is implemented by recipe sources that know their size.
type catalogCounter interface {
	CountRecipes(ctx context.Context) (int64, error)
}

// Status counts the indexed recipes and, when possible, the catalog.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	n, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexer: count: %w", err)
	}
	st := &Status{Status: "connected", RecipeCount: n}
	if c, ok := p.recipes.(catalogCounter); ok {
		total, err := c.CountRecipes(ctx)
		if err != nil {
			return nil, fmt.Errorf("indexer: count catalog: %w", err)
		}
		st.CatalogCount = total
	}
	return st, nil
}

// Payload is the metadata stored next to a recipe's vector.
func Payload(r *recipe.Record) map[string]any {
	diet := r.DietType
	if diet == nil {
		diet = []string{}
	}
	return map[string]any{
		"name":        r.Name,
		"cuisineType": r.CuisineType,
		"dietType":    diet,
		"calories":    r.Calories,
		"cookingTime": r.CookingTime,
	}
}
