package recipe

import (
	"slices"
	"time"
)

// Admits reports whether r satisfies every constraint present in p. A
// constraint is present when its list is non-empty or its bound is
// positive. An attribute the record does not carry (no diet tags, no
// cuisine, zero calories or cooking time) never excludes it.
//
// Allergies and restrictions are free text and are not matched here; they
// only shape prompts and query text.
func (p *Preferences) Admits(r *Record) bool {
	if p == nil {
		return true
	}
	if len(p.DietType) > 0 && len(r.DietType) > 0 {
		if !slices.ContainsFunc(p.DietType, func(d string) bool { return slices.Contains(r.DietType, d) }) {
			return false
		}
	}
	if len(p.CuisineType) > 0 && r.CuisineType != "" && !slices.Contains(p.CuisineType, r.CuisineType) {
		return false
	}
	if r.Calories > 0 {
		if p.CaloriesMin > 0 && r.Calories < p.CaloriesMin {
			return false
		}
		if p.CaloriesMax > 0 && r.Calories > p.CaloriesMax {
			return false
		}
	}
	if p.MaxCookingTime > 0 && r.CookingTime > 0 && r.CookingTime > p.MaxCookingTime {
		return false
	}
	return true
}

// IsZero reports whether p carries no constraint and no free-text hint.
func (p *Preferences) IsZero() bool {
	return p == nil || (len(p.DietType) == 0 && len(p.CuisineType) == 0 &&
		len(p.Allergies) == 0 && len(p.Restrictions) == 0 &&
		p.CaloriesMin == 0 && p.CaloriesMax == 0 && p.MaxCookingTime == 0)
}

// PlannedMeal is one slot of a generated meal plan.
type PlannedMeal struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Date     time.Time `json:"date"`
	MealType MealType  `json:"mealType"`
	RecipeID string    `json:"recipeId"`
	// Recipe is set when the plan was produced in this process.
	Recipe    *Record   `json:"recipe,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
