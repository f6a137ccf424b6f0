// Package retrieval answers "today's picks" and "similar recipes" from the
// vector index. Search hits are mapped back to catalog records in one
// batch, filtered by dietary preferences and returned in similarity order.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/eatwhat-go/internal/cache"
	"github.com/54b3r/eatwhat-go/internal/compose"
	"github.com/54b3r/eatwhat-go/internal/embedder"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/vectorindex"
)

const (
	// TitleDaily and TitleSimilar are the user-facing result titles.
	TitleDaily   = "今日推荐"
	TitleSimilar = "相似食谱"

	// DefaultDailyLimit and DefaultSimilarLimit apply when a caller passes
	// no positive limit; MaxLimit caps every limit.
	DefaultDailyLimit   = 10
	DefaultSimilarLimit = 5
	MaxLimit            = 100
)

// RecipeSource reads catalog records.
type RecipeSource interface {
	// RecipesByIDs returns the known records among ids in any order.
	RecipesByIDs(ctx context.Context, ids []string) ([]recipe.Record, error)
	// RecipeByID returns *apperr.NotFoundError for an unknown id.
	RecipeByID(ctx context.Context, id string) (*recipe.Record, error)
}

// Cache is the optional read-through layer in front of RecipeSource.
type Cache interface {
	Recipes(ctx context.Context, ids []string) (map[string]recipe.Record, []string, error)
	PutRecipes(ctx context.Context, recs []recipe.Record) error
	Today(ctx context.Context, key string) ([]recipe.Record, bool, error)
	PutToday(ctx context.Context, key string, recs []recipe.Record) error
}

// Result is a titled list of recipes in rank order.
type Result struct {
	Recipes []recipe.Record `json:"recipes"`
	Title   string          `json:"title"`
}

// DailyOptions selects today's picks.
type DailyOptions struct {
	UserID string
	Query  string
	// Limit defaults to 10; Page is 1-based and defaults to 1.
	Limit int
	Page  int
	// Preferences, when set, filter the hits after search.
	Preferences *recipe.Preferences
}

// Engine is the retrieval and ranking engine. It is safe for concurrent
// use.
type Engine struct {
	composer *compose.Composer
	emb      embedder.Embedder
	index    vectorindex.Index
	recipes  RecipeSource
	cache    Cache
}

// New returns an Engine. c may be nil to disable caching.
func New(composer *compose.Composer, emb embedder.Embedder, index vectorindex.Index, recipes RecipeSource, c Cache) *Engine {
	return &Engine{composer: composer, emb: emb, index: index, recipes: recipes, cache: c}
}

// Daily returns a page of today's picks for opts.
func (e *Engine) Daily(ctx context.Context, opts DailyOptions) (*Result, error) {
	limit := clampLimit(opts.Limit, DefaultDailyLimit)
	page := opts.Page
	if page < 1 {
		page = 1
	}
	log := logging.FromContext(ctx)

	vec, err := e.composer.Compose(ctx, compose.Intent{Query: opts.Query, UserID: opts.UserID})
	if err != nil {
		return nil, fmt.Errorf("retrieval: compose: %w", err)
	}

	// Filtered pages are never cached; the key does not carry preferences.
	var key string
	if e.cache != nil && opts.Preferences.IsZero() {
		key = cache.TodayKey(vec.Scope, page, limit)
		if recs, ok, err := e.cache.Today(ctx, key); err != nil {
			log.Warn("retrieval: today cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return &Result{Recipes: recs, Title: TitleDaily}, nil
		}
	}

	recs, err := e.Retrieve(ctx, vec.Values, limit, (page-1)*limit, opts.Preferences)
	if err != nil {
		return nil, err
	}
	log.Debug("retrieval: daily",
		slog.String("strategy", string(vec.Strategy)),
		slog.Int("page", page),
		slog.Int("results", len(recs)),
	)

	if key != "" {
		if err := e.cache.PutToday(ctx, key, recs); err != nil {
			log.Warn("retrieval: today cache write failed", slog.String("error", err.Error()))
		}
	}
	return &Result{Recipes: recs, Title: TitleDaily}, nil
}

// Similar returns up to limit recipes nearest to recipeID, never including
// recipeID itself.
func (e *Engine) Similar(ctx context.Context, recipeID string, limit int) (*Result, error) {
	limit = clampLimit(limit, DefaultSimilarLimit)

	src, err := e.recipes.RecipeByID(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: source recipe: %w", err)
	}
	vec, err := embedder.EmbedOne(ctx, e.emb, src.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed source recipe: %w", err)
	}

	hits, err := e.index.Search(ctx, vec, limit+1, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ID != recipeID {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	recs, err := e.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &Result{Recipes: Rank(ids, recs, nil), Title: TitleSimilar}, nil
}

// Retrieve searches for limit hits at offset, loads their records and
// returns those prefs admits in search order.
func (e *Engine) Retrieve(ctx context.Context, vector []float32, limit, offset int, prefs *recipe.Preferences) ([]recipe.Record, error) {
	hits, err := e.index.Search(ctx, vector, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	ids := vectorindex.IDs(hits)
	recs, err := e.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	return Rank(ids, recs, prefs), nil
}

// fetch loads ids through the cache, reading misses from the store in one
// batch and writing them back. Cache failures fall through to the store.
func (e *Engine) fetch(ctx context.Context, ids []string) ([]recipe.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if e.cache == nil {
		recs, err := e.recipes.RecipesByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("retrieval: load recipes: %w", err)
		}
		return recs, nil
	}

	log := logging.FromContext(ctx)
	hits, missing, err := e.cache.Recipes(ctx, ids)
	if err != nil {
		log.Warn("retrieval: recipe cache read failed", slog.String("error", err.Error()))
		hits, missing = nil, ids
	}

	out := make([]recipe.Record, 0, len(ids))
	for _, r := range hits {
		out = append(out, r)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := e.recipes.RecipesByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load recipes: %w", err)
	}
	if err := e.cache.PutRecipes(ctx, loaded); err != nil {
		log.Warn("retrieval: recipe cache write failed", slog.String("error", err.Error()))
	}
	return append(out, loaded...), nil
}

// Rank returns the records of recs that prefs admits, ordered as ids.
// Ids without a record are dropped and filtering never reorders.
func Rank(ids []string, recs []recipe.Record, prefs *recipe.Preferences) []recipe.Record {
	byID := make(map[string]*recipe.Record, len(recs))
	for i := range recs {
		byID[recs[i].ID] = &recs[i]
	}
	out := make([]recipe.Record, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || !prefs.Admits(r) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func clampLimit(n, def int) int {
	switch {
	case n <= 0:
		return def
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
