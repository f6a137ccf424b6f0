package recipe

import (
	"strconv"
	"strings"
	"time"
)

// Record is a recipe stored in the catalog. Unlike a generated Recipe it
// carries an identity and a single cuisine label.
type Record struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Ingredients    []Ingredient   `json:"ingredients"`
	Steps          []string       `json:"steps"`
	Calories       int            `json:"calories,omitempty"`
	CookingTime    int            `json:"cookingTime,omitempty"`
	NutritionFacts NutritionFacts `json:"nutritionFacts"`
	CuisineType    string         `json:"cuisineType,omitempty"`
	DietType       []string       `json:"dietType,omitempty"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	Views          int            `json:"views"`
	Img            string         `json:"img,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// EmbeddingText renders r as the labelled multi-line description that is
// embedded for similarity search. Empty fields render as empty values so the
// line layout is stable.
func (r *Record) EmbeddingText() string {
	names := make([]string, 0, len(r.Ingredients))
	for _, in := range r.Ingredients {
		names = append(names, in.Name)
	}
	lines := []string{
		"菜名: " + r.Name,
		"食材: " + strings.Join(names, ", "),
		"烹饪方法: " + strings.Join(r.Steps, ","),
		"菜系: " + r.CuisineType,
		"口味特点: " + r.Description,
		"制作难度: " + optInt(r.CookingTime),
		"热量: " + optInt(r.Calories),
		"烹饪时间: " + optInt(r.CookingTime),
		"餐点类型: " + r.CuisineType,
		"特殊饮食: " + strings.Join(r.DietType, ", "),
	}
	return strings.Join(lines, "\n")
}

func optInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
