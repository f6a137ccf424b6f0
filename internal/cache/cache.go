// Package cache is the Redis-backed cache in front of the recipe store and
// the "today's picks" retrieval results.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/54b3r/eatwhat-go/internal/recipe"
)

const (
	recipePrefix = "recipe:"
	todayPrefix  = "recommend:today:"

	defaultRecipeTTL = time.Hour
	defaultTodayTTL  = 5 * time.Minute
)

// Config holds the Redis connection and expiry settings.
type Config struct {
	// URL is a redis:// URL. It takes precedence over Addr.
	URL      string
	Addr     string
	Password string
	DB       int

	RecipeTTL time.Duration
	TodayTTL  time.Duration
}

// Enabled reports whether a Redis server is configured.
func (c *Config) Enabled() bool { return c.URL != "" || c.Addr != "" }

// ConfigFromEnv reads REDIS_URL, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
// CACHE_RECIPE_TTL and CACHE_TODAY_TTL. The cache is disabled when neither
// REDIS_URL nor REDIS_ADDR is set.
func ConfigFromEnv() *Config {
	cfg := &Config{
		URL:       os.Getenv("REDIS_URL"),
		Addr:      os.Getenv("REDIS_ADDR"),
		Password:  os.Getenv("REDIS_PASSWORD"),
		RecipeTTL: defaultRecipeTTL,
		TodayTTL:  defaultTodayTTL,
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = v
	}
	if d, err := time.ParseDuration(os.Getenv("CACHE_RECIPE_TTL")); err == nil && d > 0 {
		cfg.RecipeTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("CACHE_TODAY_TTL")); err == nil && d > 0 {
		cfg.TodayTTL = d
	}
	return cfg
}

// RecipeCache caches catalog recipes by id and today's-picks pages by key.
// It is safe for concurrent use.
type RecipeCache struct {
	client    *redis.Client
	recipeTTL time.Duration
	todayTTL  time.Duration
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg *Config) (*RecipeCache, error) {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis url: %w", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect %s: %w", opts.Addr, err)
	}
	return New(client, cfg.RecipeTTL, cfg.TodayTTL), nil
}

// New wraps an existing client. Non-positive TTLs take the defaults.
func New(client *redis.Client, recipeTTL, todayTTL time.Duration) *RecipeCache {
	if recipeTTL <= 0 {
		recipeTTL = defaultRecipeTTL
	}
	if todayTTL <= 0 {
		todayTTL = defaultTodayTTL
	}
	return &RecipeCache{client: client, recipeTTL: recipeTTL, todayTTL: todayTTL}
}

// Recipes looks up ids in one round trip. It returns the hits keyed by id
// and the ids that missed, in input order. Undecodable entries count as
// misses.
func (c *RecipeCache) Recipes(ctx context.Context, ids []string) (map[string]recipe.Record, []string, error) {
	if len(ids) == 0 {
		return map[string]recipe.Record{}, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recipePrefix + id
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, fmt.Errorf("cache: mget recipes: %w", err)
	}

	hits := make(map[string]recipe.Record, len(ids))
	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var rec recipe.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		hits[ids[i]] = rec
	}
	return hits, missing, nil
}

// PutRecipes writes recs under their ids in one pipeline.
func (c *RecipeCache) PutRecipes(ctx context.Context, recs []recipe.Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := range recs {
			data, err := json.Marshal(&recs[i])
			if err != nil {
				return fmt.Errorf("cache: encode recipe %s: %w", recs[i].ID, err)
			}
			p.Set(ctx, recipePrefix+recs[i].ID, data, c.recipeTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: put recipes: %w", err)
	}
	return nil
}

// InvalidateRecipe drops one cached recipe.
func (c *RecipeCache) InvalidateRecipe(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, recipePrefix+id).Err(); err != nil {
		return fmt.Errorf("cache: invalidate recipe %s: %w", id, err)
	}
	return nil
}

// TodayKey builds the cache key of one page of today's picks. scope is
// "user:<id>", "query:<text>" or "context:<season>:<meal>".
func TodayKey(scope string, page, limit int) string {
	return fmt.Sprintf("%s%s:%d:%d", todayPrefix, scope, page, limit)
}

// Today returns a cached page of today's picks. ok is false on a miss.
func (c *RecipeCache) Today(ctx context.Context, key string) (recs []recipe.Record, ok bool, err error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, nil
	}
	return recs, true, nil
}

// PutToday stores a page of today's picks for the short today TTL.
func (c *RecipeCache) PutToday(ctx context.Context, key string, recs []recipe.Record) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.todayTTL).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RecipeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *RecipeCache) Close() error {
	return c.client.Close()
}
