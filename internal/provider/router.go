package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// CustomSettings are a user's stored provider settings.
type CustomSettings struct {
	// Service is the provider the user selected; only "custom" resolves to
	// a user-defined endpoint.
	Service  string
	APIKey   string
	Endpoint string
	Model    string
}

// SettingsLookup returns the stored settings of userID, or (nil, nil) when
// the user has none.
type SettingsLookup func(ctx context.Context, userID string) (*CustomSettings, error)

// RouterConfig tunes the custom-provider cache and the HTTP behaviour of
// custom providers.
type RouterConfig struct {
	// CacheSize caps the number of memoized custom providers (default 256).
	CacheSize int
	// CacheTTL expires memoized custom providers (default 10m).
	CacheTTL time.Duration
	// Timeout bounds each blocking HTTP exchange of a custom provider.
	Timeout    time.Duration
	Breaker    BreakerSettings
	HTTPClient *http.Client
	// Metrics instruments resolved custom providers when set.
	Metrics *Metrics
}

// Router resolves a provider name, and for custom providers a user id, to
// a Provider. It is safe for concurrent use.
type Router struct {
	providers map[Kind]Provider
	lookup    SettingsLookup
	custom    *expirable.LRU[string, Provider]
	cfg       RouterConfig
	log       *slog.Logger
}

// NewRouter constructs a Router over the process-wide providers. lookup may
// be nil, in which case custom providers never resolve.
func NewRouter(providers map[Kind]Provider, lookup SettingsLookup, cfg RouterConfig, log *slog.Logger) *Router {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	if providers == nil {
		providers = map[Kind]Provider{}
	}
	return &Router{
		providers: providers,
		lookup:    lookup,
		custom:    expirable.NewLRU[string, Provider](cfg.CacheSize, nil, cfg.CacheTTL),
		cfg:       cfg,
		log:       log,
	}
}

// Resolve returns the provider for kind. For KindCustom the user's stored
// settings are consulted once and the resulting provider is memoized per
// user id.
func (r *Router) Resolve(ctx context.Context, kind Kind, userID string) (Provider, error) {
	if kind == "" {
		kind = KindCoze
	}
	if kind != KindCustom {
		p, ok := r.providers[kind]
		if !ok {
			return nil, &apperr.ConfigurationError{Component: "router", Reason: fmt.Sprintf("provider %q is not configured", kind)}
		}
		return p, nil
	}

	if userID == "" {
		return nil, &apperr.ConfigurationError{Component: "router", Reason: "custom provider requires a user id"}
	}
	if p, ok := r.custom.Get(userID); ok {
		return p, nil
	}
	if r.lookup == nil {
		return nil, &apperr.ConfigurationError{Component: "router", Reason: "custom provider settings are unavailable"}
	}

	settings, err := r.lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("router: load settings: %w", err)
	}
	if err := validateCustom(settings); err != nil {
		return nil, err
	}

	p, err := NewCompatProvider(&CompatConfig{
		Kind:       KindCustom,
		APIKey:     settings.APIKey,
		Endpoint:   settings.Endpoint,
		Model:      settings.Model,
		HTTPClient: r.cfg.HTTPClient,
		Timeout:    r.cfg.Timeout,
		Breaker:    r.cfg.Breaker,
	}, r.log)
	if err != nil {
		return nil, err
	}
	resolved := Instrument(p, r.cfg.Metrics)
	r.custom.Add(userID, resolved)
	r.log.Debug("router: custom provider resolved", slog.String("user_id", userID), slog.String("model", settings.Model))
	return resolved, nil
}

func validateCustom(s *CustomSettings) error {
	switch {
	case s == nil:
		return &apperr.ConfigurationError{Component: "router", Reason: "no provider settings stored for user"}
	case s.Service != string(KindCustom):
		return &apperr.ConfigurationError{Component: "router", Reason: fmt.Sprintf("stored llm_service is %q, not custom", s.Service)}
	case s.APIKey == "", s.Endpoint == "", s.Model == "":
		return &apperr.ConfigurationError{Component: "router", Reason: "custom provider requires api key, endpoint and model"}
	}
	return nil
}

// Invalidate drops the memoized custom provider of userID so the next
// Resolve reloads the user's settings.
func (r *Router) Invalidate(userID string) {
	r.custom.Remove(userID)
}

// Configured lists the process-wide providers that are available, sorted.
func (r *Router) Configured() []Kind {
	out := make([]Kind, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
