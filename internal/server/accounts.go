package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/store"
)

// Accounts holds the per-user state behind the /api/users routes;
// *store.Store satisfies it.
type Accounts interface {
	Preferences(ctx context.Context, userID string) (*recipe.Preferences, error)
	UpsertPreferences(ctx context.Context, userID string, prefs *recipe.Preferences) error
	RecipeByID(ctx context.Context, id string) (*recipe.Record, error)
	AddFavorite(ctx context.Context, userID, recipeID string) error
	SettingsByUser(ctx context.Context, userID string) (*store.Setting, error)
	UpsertSettings(ctx context.Context, st *store.Setting) error
	MealPlans(ctx context.Context, userID string, from, to time.Time) ([]recipe.PlannedMeal, error)
}

// ProviderCache forgets memoized per-user providers; *provider.Router
// satisfies it.
type ProviderCache interface {
	Invalidate(userID string)
}

type favoriteRequest struct {
	RecipeID string `json:"recipeId" validate:"required,max=64"`
}

type favoriteResponse struct {
	UserID   string `json:"userId"`
	RecipeID string `json:"recipeId"`
}

// settingsRequest replaces a user's provider settings. The API key is
// write-only and never echoed back.
type settingsRequest struct {
	LLMService  string `json:"llmService" validate:"required,max=32"`
	ModelName   string `json:"modelName,omitempty" validate:"max=128"`
	APIEndpoint string `json:"apiEndpoint,omitempty" validate:"omitempty,url,max=512"`
	APIKey      string `json:"apiKey,omitempty" validate:"max=512"`
	IsPaid      bool   `json:"isPaid"`
}

type mealPlanQuery struct {
	UserID string `validate:"required,max=128"`
	From   time.Time
	To     time.Time
}

// userID reads the {userId} path segment, answering 400 when it is blank.
func pathUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("userId"))
	if id == "" || len(id) > 128 {
		writeError(w, r, &badRequestError{msg: "userId must be 1 to 128 characters"})
		return "", false
	}
	return id, true
}

// handleGetPreferences handles GET /api/users/{userId}/preferences.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	prefs, err := s.deps.Accounts.Preferences(r.Context(), id)
	if err == nil && prefs == nil {
		err = &apperr.NotFoundError{Kind: "preferences", ID: id}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, prefs)
}

// handlePutPreferences handles PUT /api/users/{userId}/preferences.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var prefs recipe.Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Accounts.UpsertPreferences(r.Context(), id, &prefs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, prefs)
}

// handleAddFavorite handles POST /api/users/{userId}/favorites. The recipe
// must exist in the catalog.
func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var req favoriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Accounts.RecipeByID(r.Context(), req.RecipeID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Accounts.AddFavorite(r.Context(), id, req.RecipeID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, favoriteResponse{UserID: id, RecipeID: req.RecipeID})
}

// handleGetSettings handles GET /api/users/{userId}/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	st, err := s.deps.Accounts.SettingsByUser(r.Context(), id)
	if err == nil && st == nil {
		err = &apperr.NotFoundError{Kind: "settings", ID: id}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handlePutSettings handles PUT /api/users/{userId}/settings. A memoized
// custom provider built from the old settings is dropped before answering.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.deps.Accounts.UpsertSettings(r.Context(), &store.Setting{
		UserID:      id,
		LLMService:  req.LLMService,
		ModelName:   req.ModelName,
		IsPaid:      req.IsPaid,
		APIKey:      req.APIKey,
		APIEndpoint: req.APIEndpoint,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Providers != nil {
		s.deps.Providers.Invalidate(id)
	}
	logging.FromContext(r.Context()).Info("provider settings updated",
		slog.String("user_id", id),
		slog.String("llm_service", req.LLMService),
		slog.Bool("api_key_set", req.APIKey != ""),
	)

	st, err := s.deps.Accounts.SettingsByUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleListMealPlans handles GET /api/meal-plans?userId=&from=&to=. Dates
// are YYYY-MM-DD and either bound may be omitted.
func (s *Server) handleListMealPlans(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		unavailable(w, r, "account store")
		return
	}
	q := r.URL.Query()
	mq := mealPlanQuery{UserID: strings.TrimSpace(q.Get("userId"))}
	for name, dst := range map[string]*time.Time{"from": &mq.From, "to": &mq.To} {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, r, &badRequestError{msg: name + " must be a date like 2006-01-02"})
			return
		}
		*dst = t
	}
	if err := validateRequest(&mq); err != nil {
		writeError(w, r, err)
		return
	}
	if !mq.From.IsZero() && !mq.To.IsZero() && mq.To.Before(mq.From) {
		writeError(w, r, &badRequestError{msg: "to must not be before from"})
		return
	}

	plans, err := s.deps.Accounts.MealPlans(r.Context(), mq.UserID, mq.From, mq.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if plans == nil {
		plans = []recipe.PlannedMeal{}
	}
	writeJSON(w, r, http.StatusOK, mealPlanResponse{MealPlans: plans})
}
