package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/cache"
	"github.com/54b3r/eatwhat-go/internal/compose"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/vectorindex"
)

// tableEmbedder maps texts to vectors, defaulting to (1, 0).
type tableEmbedder map[string][]float32

func (e tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

type fakeRecipes struct {
	byID    map[string]recipe.Record
	batches [][]string
}

func (f *fakeRecipes) RecipesByIDs(_ context.Context, ids []string) ([]recipe.Record, error) {
	f.batches = append(f.batches, ids)
	var out []recipe.Record
	// Reverse order so callers cannot rely on store ordering.
	for i := len(ids) - 1; i >= 0; i-- {
		if r, ok := f.byID[ids[i]]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecipes) RecipeByID(_ context.Context, id string) (*recipe.Record, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "recipe", ID: id}
	}
	return &r, nil
}

// brokenCache fails every call.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Recipes(_ context.Context, ids []string) (map[string]recipe.Record, []string, error) {
	return nil, ids, errCacheDown
}

func (brokenCache) PutRecipes(context.Context, []recipe.Record) error { return errCacheDown }

func (brokenCache) Today(context.Context, string) ([]recipe.Record, bool, error) {
	return nil, false, errCacheDown
}

func (brokenCache) PutToday(context.Context, string, []recipe.Record) error { return errCacheDown }

type fixture struct {
	engine  *Engine
	index   *vectorindex.Memory
	recipes *fakeRecipes
}

func newFixture(t *testing.T, c Cache) *fixture {
	t.Helper()
	ctx := context.Background()

	recs := []recipe.Record{
		{ID: "a", Name: "清炒时蔬", DietType: []string{"素食"}},
		{ID: "b", Name: "红烧肉", DietType: []string{"高蛋白"}},
		{ID: "c", Name: "麻婆豆腐", DietType: []string{"素食"}},
		{ID: "d", Name: "可乐鸡翅", DietType: []string{"高蛋白"}},
		{ID: "e", Name: "白粥"},
	}
	vecs := map[string][]float32{
		"a": {1, 0},
		"b": {0.9, 0.1},
		"c": {0.7, 0.3},
		"d": {0.5, 0.5},
		"e": {0, 1},
	}

	fr := &fakeRecipes{byID: map[string]recipe.Record{}}
	idx := vectorindex.NewMemory()
	emb := tableEmbedder{}
	for _, r := range recs {
		fr.byID[r.ID] = r
		emb[r.EmbeddingText()] = vecs[r.ID]
		require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{{ID: r.ID, Vector: vecs[r.ID]}}))
	}
	emb["粥"] = []float32{0, 1}

	clock := func() time.Time { return time.Date(2026, time.October, 18, 8, 0, 0, 0, time.UTC) }
	comp := compose.New(emb, nil, compose.WithClock(clock))
	return &fixture{engine: New(comp, emb, idx, fr, c), index: idx, recipes: fr}
}

func names(recs []recipe.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRank_PreservesSearchOrder(t *testing.T) {
	t.Parallel()

	recs := []recipe.Record{
		{ID: "c", DietType: []string{"素食"}},
		{ID: "b", DietType: []string{"高蛋白"}},
		{ID: "a", DietType: []string{"素食"}},
	}
	prefs := &recipe.Preferences{DietType: []string{"素食"}}
	assert.Equal(t, []string{"a", "c"}, names(Rank([]string{"a", "b", "c"}, recs, prefs)))
	assert.Equal(t, []string{"a", "b", "c"}, names(Rank([]string{"a", "b", "c", "gone"}, recs, nil)))
}

func TestDaily_QueryAndPaging(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.engine.Daily(ctx, DailyOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, TitleDaily, res.Title)
	assert.Equal(t, []string{"a", "b"}, names(res.Recipes))

	res, err = f.engine.Daily(ctx, DailyOptions{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, names(res.Recipes))

	res, err = f.engine.Daily(ctx, DailyOptions{Query: "粥", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, names(res.Recipes))
}

func TestDaily_FiltersWithoutReordering(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	res, err := f.engine.Daily(context.Background(), DailyOptions{
		Limit:       4,
		Preferences: &recipe.Preferences{DietType: []string{"素食"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(res.Recipes))
	require.Len(t, f.recipes.batches, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.recipes.batches[0])
}

func TestDaily_UsesTodayAndRecipeCache(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rc := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour, time.Minute)
	f := newFixture(t, rc)
	ctx := context.Background()

	first, err := f.engine.Daily(ctx, DailyOptions{Limit: 3})
	require.NoError(t, err)
	assert.True(t, mr.Exists("recommend:today:context:秋季:早餐:1:3"))
	assert.True(t, mr.Exists("recipe:a"))

	require.NoError(t, f.index.Delete(ctx, "a", "b", "c"))
	again, err := f.engine.Daily(ctx, DailyOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, names(first.Recipes), names(again.Recipes))
	assert.Len(t, f.recipes.batches, 1)

	// Recipes cached by the first call are not read from the store again.
	res, err := f.engine.Retrieve(ctx, []float32{0.5, 0.5}, 2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, names(res))
	require.Len(t, f.recipes.batches, 2)
	assert.Equal(t, []string{"d", "e"}, f.recipes.batches[1])
}

func TestDaily_CacheFailuresFallThrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t, brokenCache{})

	res, err := f.engine.Daily(context.Background(), DailyOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(res.Recipes))
}

func TestSimilar_ExcludesSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for _, k := range []int{1, 2, 4} {
		res, err := f.engine.Similar(context.Background(), "a", k)
		require.NoError(t, err)
		assert.Equal(t, TitleSimilar, res.Title)
		assert.Len(t, res.Recipes, k)
		assert.NotContains(t, names(res.Recipes), "a")
	}

	res, err := f.engine.Similar(context.Background(), "a", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "e"}, names(res.Recipes))
}

func TestSimilar_UnknownRecipe(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.engine.Similar(context.Background(), "missing", 3)
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestClampLimit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10, clampLimit(0, 10))
	assert.Equal(t, 7, clampLimit(7, 10))
	assert.Equal(t, MaxLimit, clampLimit(1000, 10))
}
