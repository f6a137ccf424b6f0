package server

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/history"
	"github.com/54b3r/eatwhat-go/internal/indexer"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
)

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleSingle_OK(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommender{}
	s, _ := newAPIServer(t, Deps{Recommender: rec}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/single",
		`{"preferences":{"dietType":["素食"],"maxCookingTime":30},"mealType":"lunch","provider":"deepseek","userId":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got recipe.Recipe
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "番茄炒蛋", got.Name)

	req := rec.seen()
	require.NotNil(t, req)
	assert.Equal(t, recipe.Lunch, req.MealType)
	assert.Equal(t, "deepseek", req.Provider)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, []string{"素食"}, req.Preferences.DietType)
	assert.Equal(t, 30, req.Preferences.MaxCookingTime)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestHandleSingle_EmptyBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommender{}
	s, _ := newAPIServer(t, Deps{Recommender: rec}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/single", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, rec.seen().Preferences.IsZero())
}

func TestHandleSingle_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}}, nil)

	cases := map[string]string{
		"bad json":       `{"preferences":`,
		"bad meal type":  `{"mealType":"brunch"}`,
		"negative bound": `{"preferences":{"caloriesMin":-1}}`,
	}
	for name, body := range cases {
		w := do(t, s, http.MethodPost, "/api/recommendations/single", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)

		var e errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), name)
		assert.NotEmpty(t, e.Error, name)
	}

	w := do(t, s, http.MethodPost, "/api/recommendations/single", `{"mealType":"brunch"}`)
	assert.Contains(t, w.Body.String(), "mealType must be one of")
}

func TestHandleSingle_ErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{&apperr.ConfigurationError{Component: "router", Reason: "custom provider not configured"}, http.StatusBadRequest},
		{&apperr.TimeoutError{Service: "coze", Attempts: 300}, http.StatusGatewayTimeout},
		{&apperr.TransportError{Service: "dify", Status: 500}, http.StatusBadGateway},
		{&recipe.ParseError{Field: "name", Reason: "missing"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{err: tc.err}}, nil)
		w := do(t, s, http.MethodPost, "/api/recommendations/single", `{}`)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestHandleDailyAndWeekly(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/daily", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	var day []recipe.Recipe
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &day))
	assert.Len(t, day, 3)

	w = do(t, s, http.MethodPost, "/api/recommendations/weekly", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	var week [][]recipe.Recipe
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &week))
	assert.Len(t, week, 7)
}

// sseFrames splits an event-stream body into frames.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	var cur strings.Builder
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if cur.Len() > 0 {
				frames = append(frames, cur.String())
				cur.Reset()
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	return frames
}

func TestHandleSingleStream(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommender{chunks: []string{"```json\n{\"name\":", "\"番茄炒蛋\"}"}}
	s, _ := newAPIServer(t, Deps{Recommender: rec}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/single/stream", `{"provider":"siliconflow"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := sseFrames(t, w.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, `data: {"content":"`+"```json\\n{\\\"name\\\":"+`"}`, frames[0])
	assert.True(t, strings.HasPrefix(frames[2], "event: recipe\ndata: {"))
	assert.Contains(t, frames[2], "番茄炒蛋")
	assert.Equal(t, "data: [DONE]", frames[3])
}

func TestHandleDailyStream_RecipesEventIsArray(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{chunks: []string{"x"}}}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/daily/stream", `{}`)
	frames := sseFrames(t, w.Body.String())
	require.Len(t, frames, 3)
	assert.True(t, strings.HasPrefix(frames[1], "event: recipe\ndata: ["))
}

func TestHandleStream_ErrorEvent(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommender{
		chunks: []string{"partial"},
		err:    &apperr.EmptyResultError{Service: "dify", Reason: "no outputs in stream"},
	}
	s, _ := newAPIServer(t, Deps{Recommender: rec}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/single/stream", `{"provider":"dify"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "no outputs in stream")
	assert.NotContains(t, body, "[DONE]")
}

func TestHandleStream_InvalidBodyIsPlain400(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/single/stream", `{"mealType":"tea"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestHandleToday(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{}
	s, _ := newAPIServer(t, Deps{Retriever: ret}, nil)

	w := do(t, s, http.MethodGet, "/api/recommendations/today?limit=5&page=2&userId=u9", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res retrieval.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, retrieval.TitleDaily, res.Title)
	require.Len(t, res.Recipes, 1)
	assert.Equal(t, retrieval.DailyOptions{UserID: "u9", Limit: 5, Page: 2}, ret.opts)

	w = do(t, s, http.MethodGet, "/api/recommendations/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, retrieval.DefaultDailyLimit, ret.opts.Limit)
	assert.Equal(t, 1, ret.opts.Page)

	w = do(t, s, http.MethodGet, "/api/recommendations/today?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/api/recommendations/today?page=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSimilar(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{}
	s, _ := newAPIServer(t, Deps{Retriever: ret}, nil)

	w := do(t, s, http.MethodGet, "/api/recommendations/similar/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", ret.similar)
	assert.Equal(t, retrieval.DefaultSimilarLimit, ret.limit)
	assert.Contains(t, w.Body.String(), retrieval.TitleSimilar)

	missing, _ := newAPIServer(t, Deps{Retriever: &fakeRetriever{err: &apperr.NotFoundError{Kind: "recipe", ID: "nope"}}}, nil)
	w = do(t, missing, http.MethodGet, "/api/recommendations/similar/nope?limit=3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGenerateImage(t *testing.T) {
	t.Parallel()

	img := &fakeImages{}
	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}, Images: img}, nil)

	w := do(t, s, http.MethodPost, "/api/recommendations/generate-image",
		`{"recipeName":"番茄炒蛋","description":"家常菜","image_size":"1024x1024"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"imageUrl":"https://img.example.com/1.png"}`, w.Body.String())
	assert.Equal(t, "1024x1024", img.size)

	w = do(t, s, http.MethodPost, "/api/recommendations/generate-image", `{"recipeName":"番茄炒蛋"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/api/recommendations/generate-image",
		`{"recipeName":"a","description":"b","imageSize":"huge"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGenerateImage_NotConfigured(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}}, nil)
	w := do(t, s, http.MethodPost, "/api/recommendations/generate-image", `{"recipeName":"a","description":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleMealPlan(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}, MealPlans: &fakePlanner{}}, nil)

	w := do(t, s, http.MethodPost, "/api/meal-plans/generate",
		`{"userId":"u1","startDate":"2025-03-01T00:00:00Z","endDate":"2025-03-03T00:00:00Z","preferences":{"cuisineType":["川菜"]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp mealPlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.MealPlans, 1)
	assert.Equal(t, "u1", resp.MealPlans[0].UserID)

	w = do(t, s, http.MethodPost, "/api/meal-plans/generate",
		`{"userId":"u1","startDate":"2025-03-03T00:00:00Z","endDate":"2025-03-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/api/meal-plans/generate", `{"startDate":"2025-03-01T00:00:00Z","endDate":"2025-03-02T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryAndVectorStatus(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{entries: []history.Entry{
		{ID: "1", Provider: "coze", Operation: history.OpSingle, Recipe: `{"name":"a"}`},
		{ID: "2", Provider: "dify", Operation: history.OpDaily, Recipe: `{"name":"b"}`},
	}}
	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}, History: hist, Vectors: fakeVectors{}}, nil)

	w := do(t, s, http.MethodGet, "/api/recommendations/history?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hr historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hr))
	require.Len(t, hr.Entries, 1)
	assert.Equal(t, "2", hr.Entries[0].ID)

	w = do(t, s, http.MethodGet, "/api/admin/vector-status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st indexer.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "connected", st.Status)
	assert.Equal(t, 42, st.RecipeCount)
}

func TestRoutes_AuthAppliesToAPIButNotHealthChecks(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}, Retriever: &fakeRetriever{}}, &Config{APIKey: "k"})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/ready", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/recommendations/today", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations/today", nil)
	req.Header.Set("Authorization", "Bearer k")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_RateLimitOnRecommendations(t *testing.T) {
	t.Parallel()

	s, _ := newAPIServer(t, Deps{Recommender: &fakeRecommender{}}, &Config{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/recommendations/single", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/api/recommendations/single", `{}`).Code)
	// Probes are never limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "").Code)
}
