package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/history"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/recommend"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
)

// defaultHistoryLimit bounds GET /api/recommendations/history without ?limit.
const defaultHistoryLimit = 20

// decodeRecommendation reads and validates a recommendation body.
func decodeRecommendation(w http.ResponseWriter, r *http.Request) (*recommend.Request, bool) {
	var req recommendationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return req.toRecommend(), true
}

// withRequestAttrs tags the request logger with the provider and user.
func withRequestAttrs(r *http.Request, req *recommend.Request) context.Context {
	return logging.With(r.Context(),
		slog.String("provider", req.Provider),
		slog.String("user_id", req.UserID),
	)
}

// handleSingle handles POST /api/recommendations/single and answers the
// generated recipe.
func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		unavailable(w, r, "recommendation")
		return
	}
	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}
	rec, err := s.deps.Recommender.Single(withRequestAttrs(r, req), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleDaily handles POST /api/recommendations/daily and answers one
// recipe per meal type.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		unavailable(w, r, "recommendation")
		return
	}
	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}
	recs, err := s.deps.Recommender.Daily(withRequestAttrs(r, req), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recs)
}

// handleWeekly handles POST /api/recommendations/weekly and answers seven
// daily plans.
func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		unavailable(w, r, "recommendation")
		return
	}
	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}
	week, err := s.deps.Recommender.Weekly(withRequestAttrs(r, req), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, week)
}

// handleSingleStream handles POST /api/recommendations/single/stream. Raw
// chunks are forwarded as they arrive; the parsed recipe follows as a
// "recipe" event.
func (s *Server) handleSingleStream(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, func(ctx context.Context, req *recommend.Request, onChunk func(string)) (any, error) {
		return s.deps.Recommender.StreamSingle(ctx, req, onChunk)
	})
}

// handleDailyStream handles POST /api/recommendations/daily/stream. The
// three meal passes share one stream.
func (s *Server) handleDailyStream(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, func(ctx context.Context, req *recommend.Request, onChunk func(string)) (any, error) {
		return s.deps.Recommender.StreamDaily(ctx, req, onChunk)
	})
}

type streamFunc func(ctx context.Context, req *recommend.Request, onChunk func(string)) (any, error)

// serveStream validates the request before any byte of the event stream is
// written, so bad input still gets a plain 4xx. Once streaming has begun,
// failures are delivered in-band as an "error" event.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, run streamFunc) {
	if s.deps.Recommender == nil {
		unavailable(w, r, "recommendation")
		return
	}
	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}

	stream, ok := startSSE(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	ctx := withRequestAttrs(r, req)
	log := logging.FromContext(ctx)

	result, err := run(ctx, req, stream.chunk)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("stream cancelled by client")
			return
		}
		log.Error("stream failed", slog.Int("status", apperr.HTTPStatus(err)), slog.Any("error", err))
		stream.fail(err.Error())
		return
	}
	stream.event("recipe", result)
	stream.done()
	if stream.err != nil {
		log.Warn("stream write failed", slog.Any("error", stream.err))
	}
}

// handleToday handles GET /api/recommendations/today.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retriever == nil {
		unavailable(w, r, "vector retrieval")
		return
	}
	q := r.URL.Query()
	prefs, err := preferenceParams(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tq := todayQuery{
		Limit:       intParam(q.Get("limit"), retrieval.DefaultDailyLimit),
		Page:        intParam(q.Get("page"), 1),
		UserID:      strings.TrimSpace(q.Get("userId")),
		Query:       strings.TrimSpace(q.Get("query")),
		Preferences: prefs,
	}
	if err := validateRequest(&tq); err != nil {
		writeError(w, r, err)
		return
	}

	opts := retrieval.DailyOptions{
		UserID: tq.UserID,
		Query:  tq.Query,
		Limit:  tq.Limit,
		Page:   tq.Page,
	}
	if !tq.Preferences.IsZero() {
		opts.Preferences = &tq.Preferences
	}
	res, err := s.deps.Retriever.Daily(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleSimilar handles GET /api/recommendations/similar/{recipeId}.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retriever == nil {
		unavailable(w, r, "vector retrieval")
		return
	}
	id := strings.TrimSpace(r.PathValue("recipeId"))
	if id == "" {
		writeError(w, r, &badRequestError{msg: "recipeId is required"})
		return
	}
	limit := intParam(r.URL.Query().Get("limit"), retrieval.DefaultSimilarLimit)
	if limit < 1 || limit > retrieval.MaxLimit {
		writeError(w, r, &badRequestError{msg: "limit must be between 1 and " + strconv.Itoa(retrieval.MaxLimit)})
		return
	}

	res, err := s.deps.Retriever.Similar(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGenerateImage handles POST /api/recommendations/generate-image.
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		unavailable(w, r, "image generation")
		return
	}
	var req imageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	url, err := s.deps.Images.Generate(r.Context(), req.RecipeName, req.Description, req.size())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, imageResponse{ImageURL: url})
}

// handleMealPlan handles POST /api/meal-plans/generate.
func (s *Server) handleMealPlan(w http.ResponseWriter, r *http.Request) {
	if s.deps.MealPlans == nil {
		unavailable(w, r, "meal planning")
		return
	}
	var req mealPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := logging.With(r.Context(), slog.String("user_id", req.UserID))
	plans, err := s.deps.MealPlans.Generate(ctx, req.UserID, req.StartDate, req.EndDate, req.Preferences)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mealPlanResponse{MealPlans: plans})
}

// handleHistory handles GET /api/recommendations/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		unavailable(w, r, "generation history")
		return
	}
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), defaultHistoryLimit)
	if limit < 1 || limit > retrieval.MaxLimit {
		writeError(w, r, &badRequestError{msg: "limit must be between 1 and " + strconv.Itoa(retrieval.MaxLimit)})
		return
	}
	entries, err := s.deps.History.Recent(r.Context(), strings.TrimSpace(q.Get("userId")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Entries: entries})
}

// handleVectorStatus handles GET /api/admin/vector-status.
func (s *Server) handleVectorStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Vectors == nil {
		unavailable(w, r, "vector index")
		return
	}
	st, err := s.deps.Vectors.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// preferenceParams reads the dietary filter of GET /api/recommendations/today.
// List parameters may repeat or be comma separated:
//
//	?cuisineType=川菜,粤菜&dietType=素食&maxCookingTime=30
func preferenceParams(q url.Values) (recipe.Preferences, error) {
	p := recipe.Preferences{
		DietType:     listParam(q, "dietType"),
		CuisineType:  listParam(q, "cuisineType"),
		Allergies:    listParam(q, "allergies"),
		Restrictions: listParam(q, "restrictions"),
	}
	for name, dst := range map[string]*int{
		"caloriesMin":    &p.CaloriesMin,
		"caloriesMax":    &p.CaloriesMax,
		"maxCookingTime": &p.MaxCookingTime,
	} {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return recipe.Preferences{}, &badRequestError{msg: name + " must be an integer"}
		}
		*dst = n
	}
	return p, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// intParam parses a query parameter, falling back to def when it is absent
// or not a number.
func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
