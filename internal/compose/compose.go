// Package compose builds the query vector used for "today's picks": from
// an explicit query, from a user's stored preferences blended with their
// recent favorites, or from the ambient season and meal slot.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/eatwhat-go/internal/embedder"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

const (
	// recentFavorites is how many favorites are blended into a user vector.
	recentFavorites = 5
	// preferenceWeight is the share of the preference text in a blend; the
	// rest is split evenly across the favorites.
	preferenceWeight = 0.7
)

// UserSource reads the signals a personalised vector is built from.
type UserSource interface {
	// Preferences returns (nil, nil) when the user has none.
	Preferences(ctx context.Context, userID string) (*recipe.Preferences, error)
	// RecentFavoriteRecipes returns up to n favorites, most recent first.
	RecentFavoriteRecipes(ctx context.Context, userID string, n int) ([]recipe.Record, error)
}

// Strategy identifies how a query vector was built.
type Strategy string

const (
	StrategyQuery   Strategy = "query"
	StrategyUser    Strategy = "user"
	StrategyContext Strategy = "context"
)

// Intent is what the caller knows about the request. Query wins over
// UserID; with neither the ambient context is used.
type Intent struct {
	Query  string
	UserID string
}

// Vector is a composed query vector and how it was obtained.
type Vector struct {
	Values   []float32
	Strategy Strategy
	// Scope identifies the inputs for cache keys, e.g. "user:42".
	Scope string
}

// Composer builds query vectors. It is safe for concurrent use.
type Composer struct {
	emb   embedder.Embedder
	users UserSource
	now   func() time.Time
}

// Option configures a Composer.
type Option func(*Composer)

// WithClock replaces time.Now for ambient context.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// New returns a Composer. users may be nil, in which case user intents
// fall back to the ambient context.
func New(emb embedder.Embedder, users UserSource, opts ...Option) *Composer {
	c := &Composer{emb: emb, users: users, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ambient returns the current ambient context.
func (c *Composer) Ambient() Ambient { return AmbientAt(c.now()) }

// Compose selects a strategy for in and builds the vector.
func (c *Composer) Compose(ctx context.Context, in Intent) (*Vector, error) {
	switch {
	case in.Query != "":
		v, err := c.FromQuery(ctx, in.Query)
		if err != nil {
			return nil, err
		}
		return &Vector{Values: v, Strategy: StrategyQuery, Scope: "query:" + in.Query}, nil
	case in.UserID != "" && c.users != nil:
		v, err := c.ForUser(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		return &Vector{Values: v, Strategy: StrategyUser, Scope: "user:" + in.UserID}, nil
	default:
		a := c.Ambient()
		v, err := c.FromContext(ctx, a)
		if err != nil {
			return nil, err
		}
		return &Vector{Values: v, Strategy: StrategyContext, Scope: a.Scope()}, nil
	}
}

// FromQuery embeds the literal query text.
func (c *Composer) FromQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := embedder.EmbedOne(ctx, c.emb, query)
	if err != nil {
		return nil, fmt.Errorf("compose: embed query: %w", err)
	}
	return v, nil
}

// FromContext embeds the description of a.
func (c *Composer) FromContext(ctx context.Context, a Ambient) ([]float32, error) {
	v, err := embedder.EmbedOne(ctx, c.emb, a.Text())
	if err != nil {
		return nil, fmt.Errorf("compose: embed context: %w", err)
	}
	return v, nil
}

// ForUser embeds userID's preference text and, when the user has recent
// favorites, blends in one vector per favorite. A user without stored
// preferences gets the generic context vector.
func (c *Composer) ForUser(ctx context.Context, userID string) ([]float32, error) {
	log := logging.FromContext(ctx).With(slog.String("user_id", userID))

	prefs, err := c.users.Preferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("compose: preferences: %w", err)
	}
	if prefs == nil {
		log.Debug("compose: no preferences, using generic context")
		return c.FromContext(ctx, Ambient{})
	}

	favs, err := c.users.RecentFavoriteRecipes(ctx, userID, recentFavorites)
	if err != nil {
		return nil, fmt.Errorf("compose: recent favorites: %w", err)
	}

	text := PreferenceText(prefs)
	if text == "" {
		text = genericContext
	}
	texts := make([]string, 0, len(favs)+1)
	texts = append(texts, text)
	for i := range favs {
		texts = append(texts, favs[i].EmbeddingText())
	}

	vecs, err := c.emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("compose: embed user signals: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("compose: embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	if len(vecs) == 1 {
		return vecs[0], nil
	}

	log.Debug("compose: blending favorites", slog.Int("favorites", len(favs)))
	return CombineVectors(vecs, BlendWeights(len(favs)))
}

// PreferenceText describes p as comma-joined clauses, omitting empty ones.
func PreferenceText(p *recipe.Preferences) string {
	var b strings.Builder
	clause := func(label string, vals []string) {
		if len(vals) > 0 {
			b.WriteString(label + ": " + strings.Join(vals, ", ") + ". ")
		}
	}
	clause("饮食类型", p.DietType)
	clause("偏好菜系", p.CuisineType)
	clause("饮食限制", p.Restrictions)
	clause("过敏源", p.Allergies)
	return b.String()
}

// BlendWeights returns the weights for one preference vector followed by
// n favorite vectors.
func BlendWeights(n int) []float64 {
	w := make([]float64, n+1)
	w[0] = preferenceWeight
	for i := 1; i <= n; i++ {
		w[i] = (1 - preferenceWeight) / float64(n)
	}
	return w
}

// CombineVectors returns the per-dimension weighted sum of vecs. All
// vectors must share one dimension and weights must be parallel to vecs.
func CombineVectors(vecs [][]float32, weights []float64) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("compose: no vectors to combine")
	}
	if len(vecs) != len(weights) {
		return nil, fmt.Errorf("compose: %d vectors but %d weights", len(vecs), len(weights))
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("compose: vector %d has %d dimensions, want %d", i, len(v), dim)
		}
		for d, x := range v {
			sum[d] += weights[i] * float64(x)
		}
	}
	out := make([]float32, dim)
	for d, x := range sum {
		out[d] = float32(x)
	}
	return out, nil
}
