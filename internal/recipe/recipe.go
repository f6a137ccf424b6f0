// Package recipe holds the recipe domain types shared across the
// recommendation pipeline, together with the parser that turns raw model
// output into validated [Recipe] values.
package recipe

import "strconv"

// Ingredient is one line of a recipe's ingredient list. Amount is always a
// plain decimal and Unit is drawn from [ValidUnits].
type Ingredient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// NutritionFacts carries per-serving macro nutrients.
type NutritionFacts struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
	Fiber    float64 `json:"fiber"`
}

// Recipe is a generated recipe as produced by a model provider and validated
// by [Parse] or [ParseOutputs].
type Recipe struct {
	Name           string         `json:"name"`
	Ingredients    []Ingredient   `json:"ingredients"`
	Calories       float64        `json:"calories"`
	CookingTime    float64        `json:"cookingTime"`
	NutritionFacts NutritionFacts `json:"nutritionFacts"`
	Steps          []string       `json:"steps"`
	CuisineType    []string       `json:"cuisineType,omitempty"`
	DietType       []string       `json:"dietType,omitempty"`
	Img            string         `json:"img,omitempty"`

	// ImageURL and GeneratedImages are populated only from workflow outputs
	// that carry generated image files.
	ImageURL        string   `json:"imageUrl,omitempty"`
	GeneratedImages []string `json:"generatedImages,omitempty"`
}

// Preferences is a user's dietary profile. Zero numeric values mean the
// constraint is unset.
type Preferences struct {
	DietType       []string `json:"dietType,omitempty"`
	CuisineType    []string `json:"cuisineType,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`
	Restrictions   []string `json:"restrictions,omitempty"`
	CaloriesMin    int      `json:"caloriesMin,omitempty" validate:"gte=0"`
	CaloriesMax    int      `json:"caloriesMax,omitempty" validate:"gte=0"`
	MaxCookingTime int      `json:"maxCookingTime,omitempty" validate:"gte=0"`
}

// MealType names a meal slot within a day.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// DailyMeals is the fixed order in which a day is planned.
var DailyMeals = []MealType{Breakfast, Lunch, Dinner}

// Valid reports whether m is one of the three planned meal slots.
func (m MealType) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// ValidUnits is the closed vocabulary an ingredient unit must come from.
var ValidUnits = []string{
	"克", "千克", "毫升", "升", "个", "勺", "杯", "片", "根", "块",
	"粒", "包", "袋", "瓶", "盒", "条", "瓣", "茶匙", "汤匙",
}

var unitSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ValidUnits))
	for _, u := range ValidUnits {
		m[u] = struct{}{}
	}
	return m
}()

// ValidUnit reports whether u is in [ValidUnits].
func ValidUnit(u string) bool {
	_, ok := unitSet[u]
	return ok
}

// ParseError reports a recipe that failed validation. Field names the first
// offending field using a JSON-path-like notation such as
// "ingredients[2].amount".
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "recipe: " + e.Reason
	}
	return "recipe: invalid " + strconv.Quote(e.Field) + ": " + e.Reason
}

// InvalidField returns the offending field name.
func (e *ParseError) InvalidField() string { return e.Field }
