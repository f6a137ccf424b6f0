// Package mealplan fills a date range with catalog recipes, one per meal
// slot, without repeating a recipe within one run.
package mealplan

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/store"
)

// candidatesPerSlot is how many recipes each slot picks from.
const candidatesPerSlot = 3

// Store is the persistence the planner needs.
type Store interface {
	CandidateRecipes(ctx context.Context, q store.CandidateQuery) ([]recipe.Record, error)
	CreateMealPlan(ctx context.Context, userID string, date time.Time, meal recipe.MealType, recipeID string) (*recipe.PlannedMeal, error)
}

// Planner generates meal plans. It is safe for concurrent use when its
// random source is.
type Planner struct {
	store Store
	intN  func(n int) int
}

// Option configures a Planner.
type Option func(*Planner)

// WithIntN replaces the random choice among candidates. intN must return a
// value in [0, n).
func WithIntN(intN func(n int) int) Option {
	return func(p *Planner) { p.intN = intN }
}

// New returns a Planner over s.
func New(s Store, opts ...Option) *Planner {
	p := &Planner{store: s, intN: rand.IntN}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Days returns the number of calendar days planned for [start, end):
// the span rounded up to whole days.
func Days(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours() / 24))
}

// Generate plans breakfast, lunch and dinner for every day from start
// until end. A slot with no remaining candidate is skipped. Recipes picked
// earlier in the run are excluded from later slots.
func (p *Planner) Generate(ctx context.Context, userID string, start, end time.Time, prefs *recipe.Preferences) ([]recipe.PlannedMeal, error) {
	if userID == "" {
		return nil, &apperr.ConfigurationError{Component: "mealplan", Reason: "user id is required"}
	}
	if !end.After(start) {
		return nil, &apperr.ConfigurationError{Component: "mealplan", Reason: "end date must be after start date"}
	}
	if prefs == nil {
		prefs = &recipe.Preferences{}
	}
	log := logging.FromContext(ctx).With(slog.String("user_id", userID))

	days := Days(start, end)
	plans := make([]recipe.PlannedMeal, 0, days*len(recipe.DailyMeals))
	var used []string

	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		for _, meal := range recipe.DailyMeals {
			candidates, err := p.store.CandidateRecipes(ctx, store.CandidateQuery{
				DietTypes:      prefs.DietType,
				CuisineTypes:   prefs.CuisineType,
				MaxCookingTime: prefs.MaxCookingTime,
				ExcludeIDs:     used,
				Limit:          candidatesPerSlot,
			})
			if err != nil {
				return nil, fmt.Errorf("mealplan: candidates for %s %s: %w", date.Format(time.DateOnly), meal, err)
			}
			if len(candidates) == 0 {
				log.Debug("mealplan: no candidate", slog.String("date", date.Format(time.DateOnly)), slog.String("meal_type", string(meal)))
				continue
			}

			pick := candidates[p.intN(len(candidates))]
			used = append(used, pick.ID)

			pm, err := p.store.CreateMealPlan(ctx, userID, date, meal, pick.ID)
			if err != nil {
				return nil, fmt.Errorf("mealplan: save %s %s: %w", date.Format(time.DateOnly), meal, err)
			}
			pm.Recipe = &pick
			plans = append(plans, *pm)
		}
	}

	log.Info("mealplan: generated", slog.Int("days", days), slog.Int("meals", len(plans)))
	return plans, nil
}
