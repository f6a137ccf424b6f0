package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/cache"
	"github.com/54b3r/eatwhat-go/internal/compose"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
	"github.com/54b3r/eatwhat-go/internal/vectorindex"
)

// flatEmbedder maps every text to the same vector, so search order is
// decided by the indexed vectors alone.
type flatEmbedder struct{}

func (flatEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type catalog map[string]recipe.Record

func (c catalog) RecipesByIDs(_ context.Context, ids []string) ([]recipe.Record, error) {
	var out []recipe.Record
	for _, id := range ids {
		if r, ok := c[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c catalog) RecipeByID(_ context.Context, id string) (*recipe.Record, error) {
	r, ok := c[id]
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "recipe", ID: id}
	}
	return &r, nil
}

// newCatalogServer serves today's picks from a real retrieval engine over
// three indexed recipes, cached in miniredis.
func newCatalogServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	ctx := context.Background()

	recs := catalog{
		"r1": {ID: "r1", Name: "水煮鱼", CuisineType: "川菜"},
		"r2": {ID: "r2", Name: "白切鸡", CuisineType: "粤菜"},
		"r3": {ID: "r3", Name: "回锅肉", CuisineType: "川菜"},
	}
	idx := vectorindex.NewMemory()
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{
		{ID: "r1", Vector: []float32{1, 0}},
		{ID: "r2", Vector: []float32{0.9, 0.1}},
		{ID: "r3", Vector: []float32{0.8, 0.2}},
	}))

	mr := miniredis.RunT(t)
	rc := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour, time.Hour)
	comp := compose.New(flatEmbedder{}, nil)
	engine := retrieval.New(comp, flatEmbedder{}, idx, recs, rc)

	s, _ := newAPIServer(t, Deps{Retriever: engine}, nil)
	return s, mr
}

func todayKeys(mr *miniredis.Miniredis) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "recommend:today:") {
			out = append(out, k)
		}
	}
	return out
}

func todayIDs(t *testing.T, s *Server, q url.Values) []string {
	t.Helper()
	w := do(t, s, http.MethodGet, "/api/recommendations/today?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res retrieval.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	ids := make([]string, len(res.Recipes))
	for i, r := range res.Recipes {
		ids[i] = r.ID
	}
	return ids
}

func TestHandleToday_CuisineFilter(t *testing.T) {
	t.Parallel()
	s, mr := newCatalogServer(t)

	got := todayIDs(t, s, url.Values{"limit": {"3"}, "cuisineType": {"川菜"}})
	assert.Equal(t, []string{"r1", "r3"}, got)
	assert.Empty(t, todayKeys(mr), "a filtered page must not be cached")

	got = todayIDs(t, s, url.Values{"limit": {"3"}})
	assert.Equal(t, []string{"r1", "r2", "r3"}, got)
	assert.Len(t, todayKeys(mr), 1)

	// The cached unfiltered page does not leak into a filtered request.
	got = todayIDs(t, s, url.Values{"limit": {"3"}, "cuisineType": {"粤菜"}})
	assert.Equal(t, []string{"r2"}, got)
}

func TestHandleToday_PreferenceParams(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{}
	s, _ := newAPIServer(t, Deps{Retriever: ret}, nil)

	q := url.Values{
		"cuisineType":    {"川菜, 粤菜", "湘菜"},
		"dietType":       {"素食"},
		"allergies":      {"花生"},
		"maxCookingTime": {"30"},
		"caloriesMax":    {"600"},
	}
	w := do(t, s, http.MethodGet, "/api/recommendations/today?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NotNil(t, ret.opts.Preferences)
	assert.Equal(t, recipe.Preferences{
		CuisineType:    []string{"川菜", "粤菜", "湘菜"},
		DietType:       []string{"素食"},
		Allergies:      []string{"花生"},
		CaloriesMax:    600,
		MaxCookingTime: 30,
	}, *ret.opts.Preferences)

	w = do(t, s, http.MethodGet, "/api/recommendations/today?maxCookingTime=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/api/recommendations/today?caloriesMin=-5", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
