package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/cache"
	"github.com/54b3r/eatwhat-go/internal/compose"
	"github.com/54b3r/eatwhat-go/internal/embedder"
	"github.com/54b3r/eatwhat-go/internal/history"
	"github.com/54b3r/eatwhat-go/internal/imagegen"
	"github.com/54b3r/eatwhat-go/internal/provider"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
	"github.com/54b3r/eatwhat-go/internal/server"
	"github.com/54b3r/eatwhat-go/internal/store"
	"github.com/54b3r/eatwhat-go/internal/vectorindex"
)

// services holds the backing dependencies opened by a command. Optional
// dependencies stay nil when they are not configured or unreachable.
type services struct {
	log     *slog.Logger
	store   *store.Store
	cache   *cache.RecipeCache
	emb     embedder.Embedder
	qdrant  *vectorindex.QdrantIndex
	history history.Log
	closers []func() error
}

func newServices(log *slog.Logger) *services {
	return &services{log: log, history: history.Nop{}}
}

// Close releases everything opened so far, newest first.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// openStore connects the relational store. It is required by every command
// that touches the catalog.
func (s *services) openStore() error {
	cfg := store.ConfigFromEnv()
	st, err := store.Open(cfg, s.log)
	if err != nil {
		return err
	}
	s.store = st
	s.closers = append(s.closers, st.Close)
	s.log.Info("store opened", slog.String("driver", cfg.Driver))
	return nil
}

// openHistory opens the generation log. Failures disable it.
func (s *services) openHistory() {
	l, err := history.OpenFromEnv()
	if err != nil {
		s.log.Warn("history: failed to open log, disabling", slog.Any("error", err))
		return
	}
	s.history = l
	s.closers = append(s.closers, l.Close)
}

// openCache connects Redis when REDIS_URL or REDIS_ADDR is set. An
// unreachable server disables caching rather than failing the command.
func (s *services) openCache(ctx context.Context) {
	cfg := cache.ConfigFromEnv()
	if !cfg.Enabled() {
		s.log.Info("cache disabled", slog.String("reason", "REDIS_URL and REDIS_ADDR unset"))
		return
	}
	c, err := cache.Open(ctx, cfg)
	if err != nil {
		s.log.Warn("cache: redis unreachable, disabling", slog.Any("error", err))
		return
	}
	s.cache = c
	s.closers = append(s.closers, c.Close)
}

// openIndex builds the embedder and connects the Qdrant collection sized
// for it.
func (s *services) openIndex(ctx context.Context) error {
	embedder.WarnMisconfiguration(s.log)

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to initialise embedder: %w", err)
	}

	cfg := qdrantConfigFromEnv()
	idx, err := vectorindex.NewQdrantIndex(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	s.emb = emb
	s.qdrant = idx
	s.closers = append(s.closers, idx.Close)
	s.log.Info("qdrant index ready",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("collection", cfg.Collection),
		slog.String("embedding_provider", embedder.Backend()),
	)
	return nil
}

// retrieval assembles the catalog engine. openStore and openIndex must
// have succeeded.
func (s *services) retrieval() *retrieval.Engine {
	// A nil *RecipeCache must not reach the interface.
	var c retrieval.Cache
	if s.cache != nil {
		c = s.cache
	}
	composer := compose.New(s.emb, s.store)
	return retrieval.New(composer, s.emb, s.qdrant, s.store, c)
}

// pingers returns readiness probes for the dependencies that were opened.
func (s *services) pingers() []server.Pinger {
	var out []server.Pinger
	if s.store != nil {
		out = append(out, server.NewPinger("store", s.store.Ping))
	}
	if s.qdrant != nil {
		out = append(out, server.NewPinger("qdrant", s.qdrant.Ping))
	}
	if s.cache != nil {
		out = append(out, server.NewOptionalPinger("redis", s.cache.Ping))
	}
	if l, ok := s.history.(*history.SQLiteLog); ok {
		out = append(out, server.NewOptionalPinger("history", l.Ping))
	}
	return out
}

// buildRouter builds every process-wide provider with credentials and the
// router over them. st may be nil, in which case the custom provider is
// unavailable.
func buildRouter(ctx context.Context, st *store.Store, reg prometheus.Registerer, log *slog.Logger) (*provider.Router, error) {
	cfg := provider.ConfigFromEnv()
	providers, err := provider.Build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise providers: %w", err)
	}

	var metrics *provider.Metrics
	if reg != nil {
		metrics = provider.NewMetrics(reg)
		providers = provider.InstrumentAll(providers, metrics)
	}

	router := provider.NewRouter(providers, settingsLookup(st), provider.RouterConfig{
		CacheSize: getEnvInt("ROUTER_CACHE_SIZE", 0),
		CacheTTL:  getEnvDuration("ROUTER_CACHE_TTL", 0),
		Timeout:   cfg.HTTPTimeout,
		Breaker:   cfg.Breaker,
		Metrics:   metrics,
	}, log)

	configured := make([]string, 0, len(providers))
	for _, k := range router.Configured() {
		configured = append(configured, string(k))
	}
	log.Info("providers initialised", slog.Any("providers", configured))
	return router, nil
}

// settingsLookup adapts the store's settings read to the router.
func settingsLookup(st *store.Store) provider.SettingsLookup {
	if st == nil {
		return nil
	}
	return func(ctx context.Context, userID string) (*provider.CustomSettings, error) {
		row, err := st.ProviderSettings(ctx, userID)
		if err != nil || row == nil {
			return nil, err
		}
		return &provider.CustomSettings{
			Service:  row.LLMService,
			APIKey:   row.APIKey,
			Endpoint: row.APIEndpoint,
			Model:    row.ModelName,
		}, nil
	}
}

// buildImages returns the image generator, or nil when no image API key is
// configured. The S3 mirror is attached when S3_BUCKET_NAME is set.
func buildImages(ctx context.Context, log *slog.Logger) (*imagegen.Generator, error) {
	cfg := imagegen.ConfigFromEnv()
	if cfg.APIKey == "" {
		log.Info("image generation disabled", slog.String("reason", "IMAGE_API_KEY and SILICONFLOW_API_KEY unset"))
		return nil, nil
	}

	var opts []imagegen.Option
	if cfg.Bucket != "" {
		mirror, err := imagegen.NewS3Mirror(ctx, cfg.Bucket, cfg.Region, cfg.PresignExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise S3 mirror: %w", err)
		}
		opts = append(opts, imagegen.WithMirror(mirror))
		log.Info("image mirror enabled", slog.String("bucket", cfg.Bucket))
	}

	return imagegen.New(cfg, opts...)
}

// addPreferenceFlags registers the dietary preference flags shared by the
// recommendation commands.
func addPreferenceFlags(cmd *cobra.Command, p *recipe.Preferences) {
	cmd.Flags().StringSliceVar(&p.DietType, "diet", nil, "Diet types, e.g. vegetarian,low-carb")
	cmd.Flags().StringSliceVar(&p.CuisineType, "cuisine", nil, "Preferred cuisines, e.g. 川菜,粤菜")
	cmd.Flags().StringSliceVar(&p.Allergies, "allergy", nil, "Ingredients to avoid because of allergies")
	cmd.Flags().StringSliceVar(&p.Restrictions, "restriction", nil, "Other dietary restrictions")
	cmd.Flags().IntVar(&p.CaloriesMin, "calories-min", 0, "Minimum calories per meal")
	cmd.Flags().IntVar(&p.CaloriesMax, "calories-max", 0, "Maximum calories per meal")
	cmd.Flags().IntVar(&p.MaxCookingTime, "max-time", 0, "Maximum cooking time in minutes")
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// qdrantConfigFromEnv reads QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION,
// QDRANT_API_KEY and QDRANT_TLS. The vector size follows the configured
// embedding backend.
func qdrantConfigFromEnv() *vectorindex.QdrantConfig {
	return &vectorindex.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", vectorindex.DefaultCollection),
		VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named variable parsed as an int, or fallback.
func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
