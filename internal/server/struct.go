package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/eatwhat-go/internal/history"
	"github.com/54b3r/eatwhat-go/internal/indexer"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/recommend"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response
	// (default 6m). Generation routes clear it per request; they are bounded
	// by the provider timeout and the client connection instead.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the
	// recommendation routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// TrustProxy keys the rate limit by X-Forwarded-For instead of the
	// remote address. Enable only behind a proxy that sets the header.
	TrustProxy bool
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the services behind the API. A nil dependency leaves its routes
// answering 503.
type Deps struct {
	Recommender Recommender
	Retriever   Retriever
	Images      ImageGenerator
	MealPlans   MealPlanner
	Vectors     VectorStatus
	History     HistoryReader
	Accounts    Accounts
	// Providers is told when a user's provider settings change.
	Providers ProviderCache
}

// Recommender generates recipes; *recommend.Orchestrator satisfies it.
type Recommender interface {
	Single(ctx context.Context, req *recommend.Request) (*recipe.Recipe, error)
	Daily(ctx context.Context, req *recommend.Request) ([]*recipe.Recipe, error)
	Weekly(ctx context.Context, req *recommend.Request) ([][]*recipe.Recipe, error)
	StreamSingle(ctx context.Context, req *recommend.Request, onChunk func(string)) (*recipe.Recipe, error)
	StreamDaily(ctx context.Context, req *recommend.Request, onChunk func(string)) ([]*recipe.Recipe, error)
}

// Retriever serves catalog recommendations; *retrieval.Engine satisfies it.
type Retriever interface {
	Daily(ctx context.Context, opts retrieval.DailyOptions) (*retrieval.Result, error)
	Similar(ctx context.Context, recipeID string, limit int) (*retrieval.Result, error)
}

// ImageGenerator renders a recipe picture; *imagegen.Generator satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, name, description, size string) (string, error)
}

// MealPlanner fills a date range with catalog recipes; *mealplan.Planner
// satisfies it.
type MealPlanner interface {
	Generate(ctx context.Context, userID string, start, end time.Time, prefs *recipe.Preferences) ([]recipe.PlannedMeal, error)
}

// VectorStatus reports the state of the vector index; *indexer.Pipeline
// satisfies it.
type VectorStatus interface {
	Status(ctx context.Context) (*indexer.Status, error)
}

// HistoryReader lists generated recipes; history.Log satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, userID string, n int) ([]history.Entry, error)
}

// Server is the HTTP surface of the recommendation pipeline.
type Server struct {
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, exposed for tests via Handler.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// recommendationRequest is the JSON body of the generative recommendation
// routes.
type recommendationRequest struct {
	Preferences recipe.Preferences `json:"preferences"`
	MealType    recipe.MealType    `json:"mealType,omitempty" validate:"omitempty,oneof=breakfast lunch dinner"`
	Provider    string             `json:"provider,omitempty" validate:"max=32"`
	UserID      string             `json:"userId,omitempty" validate:"max=128"`
}

func (r *recommendationRequest) toRecommend() *recommend.Request {
	return &recommend.Request{
		Preferences: r.Preferences,
		MealType:    r.MealType,
		Provider:    r.Provider,
		UserID:      r.UserID,
	}
}

// todayQuery holds the query parameters of GET /api/recommendations/today.
type todayQuery struct {
	Limit       int    `validate:"gte=1,lte=100"`
	Page        int    `validate:"gte=1"`
	UserID      string `validate:"max=128"`
	Query       string `validate:"max=500"`
	Preferences recipe.Preferences
}

// imageRequest is the JSON body of POST /api/recommendations/generate-image.
type imageRequest struct {
	RecipeName  string `json:"recipeName" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=2000"`
	ImageSize   string `json:"imageSize,omitempty" validate:"omitempty,imagesize"`
	// LegacySize is the snake_case spelling older clients send.
	LegacySize string `json:"image_size,omitempty" validate:"omitempty,imagesize"`
}

func (r *imageRequest) size() string {
	if r.ImageSize != "" {
		return r.ImageSize
	}
	return r.LegacySize
}

// imageResponse is the JSON response of POST /api/recommendations/generate-image.
type imageResponse struct {
	ImageURL string `json:"imageUrl"`
}

// mealPlanRequest is the JSON body of POST /api/meal-plans/generate.
type mealPlanRequest struct {
	UserID      string              `json:"userId" validate:"required,max=128"`
	StartDate   time.Time           `json:"startDate" validate:"required"`
	EndDate     time.Time           `json:"endDate" validate:"required,gtfield=StartDate"`
	Preferences *recipe.Preferences `json:"preferences,omitempty"`
}

// mealPlanResponse is the JSON response of POST /api/meal-plans/generate.
type mealPlanResponse struct {
	MealPlans []recipe.PlannedMeal `json:"mealPlans"`
}

// historyResponse is the JSON response of GET /api/recommendations/history.
type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}
