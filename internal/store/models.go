package store

import (
	"database/sql/driver"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// StringList is a string slice stored as a JSON array in a text column, so
// the same schema works on Postgres and SQLite.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: cannot scan %T into StringList", value)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// Profile is an application user.
type Profile struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Recipe is a catalog recipe row.
type Recipe struct {
	ID             string                `gorm:"type:varchar(36);primaryKey"`
	Name           string                `gorm:"not null"`
	Description    string                `gorm:"type:text"`
	Ingredients    []recipe.Ingredient   `gorm:"serializer:json;type:text"`
	Steps          StringList            `gorm:"type:text"`
	Calories       int                   `gorm:"index"`
	CookingTime    int                   `gorm:"index"`
	NutritionFacts recipe.NutritionFacts `gorm:"serializer:json;type:text"`
	CuisineType    string                `gorm:"index"`
	DietType       StringList            `gorm:"type:text"`
	CreatedBy      string                `gorm:"type:varchar(36)"`
	Views          int                   `gorm:"default:0"`
	Img            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Favorite links a user to a recipe they liked.
type Favorite struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);index:idx_favorites_user_created"`
	RecipeID  string    `gorm:"type:varchar(36);index"`
	CreatedAt time.Time `gorm:"index:idx_favorites_user_created"`
}

// MealPlan assigns a recipe to one meal slot of one day.
type MealPlan struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);index"`
	Date      time.Time `gorm:"type:date;not null"`
	MealType  string    `gorm:"not null"`
	RecipeID  string    `gorm:"type:varchar(36)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Preference is a user's dietary profile. Its ID is the user id.
type Preference struct {
	ID             string     `gorm:"type:varchar(36);primaryKey"`
	DietType       StringList `gorm:"type:text"`
	CuisineType    StringList `gorm:"type:text"`
	Restrictions   StringList `gorm:"type:text"`
	Allergies      StringList `gorm:"type:text"`
	CaloriesMin    int
	CaloriesMax    int
	MaxCookingTime int
	MealsPerDay    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Setting holds a user's provider selection and, for custom providers, the
// credentials used to reach them.
type Setting struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"userId"`
	LLMService  string    `gorm:"column:llm_service;not null" json:"llmService"`
	ModelName   string    `json:"modelName,omitempty"`
	IsPaid      bool      `json:"isPaid"`
	APIKey      string    `json:"-"`
	APIEndpoint string    `json:"apiEndpoint,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// BeforeCreate assigns a UUID when none is set.
func (p *Profile) BeforeCreate(*gorm.DB) error { assignID(&p.ID); return nil }

// BeforeCreate assigns a UUID when none is set.
func (r *Recipe) BeforeCreate(*gorm.DB) error { assignID(&r.ID); return nil }

// BeforeCreate assigns a UUID when none is set.
func (f *Favorite) BeforeCreate(*gorm.DB) error { assignID(&f.ID); return nil }

// BeforeCreate assigns a UUID when none is set.
func (m *MealPlan) BeforeCreate(*gorm.DB) error { assignID(&m.ID); return nil }

// BeforeCreate assigns a UUID when none is set.
func (s *Setting) BeforeCreate(*gorm.DB) error { assignID(&s.ID); return nil }

// models lists every table for AutoMigrate.
var models = []any{&Profile{}, &Recipe{}, &Favorite{}, &MealPlan{}, &Preference{}, &Setting{}}

func (r *Recipe) toRecord() recipe.Record {
	return recipe.Record{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Ingredients:    r.Ingredients,
		Steps:          []string(r.Steps),
		Calories:       r.Calories,
		CookingTime:    r.CookingTime,
		NutritionFacts: r.NutritionFacts,
		CuisineType:    r.CuisineType,
		DietType:       []string(r.DietType),
		CreatedBy:      r.CreatedBy,
		Views:          r.Views,
		Img:            r.Img,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func recipeFromRecord(rec *recipe.Record) *Recipe {
	return &Recipe{
		ID:             rec.ID,
		Name:           rec.Name,
		Description:    rec.Description,
		Ingredients:    rec.Ingredients,
		Steps:          StringList(rec.Steps),
		Calories:       rec.Calories,
		CookingTime:    rec.CookingTime,
		NutritionFacts: rec.NutritionFacts,
		CuisineType:    rec.CuisineType,
		DietType:       StringList(rec.DietType),
		CreatedBy:      rec.CreatedBy,
		Views:          rec.Views,
		Img:            rec.Img,
	}
}

func (p *Preference) toPreferences() *recipe.Preferences {
	return &recipe.Preferences{
		DietType:       []string(p.DietType),
		CuisineType:    []string(p.CuisineType),
		Allergies:      []string(p.Allergies),
		Restrictions:   []string(p.Restrictions),
		CaloriesMin:    p.CaloriesMin,
		CaloriesMax:    p.CaloriesMax,
		MaxCookingTime: p.MaxCookingTime,
	}
}

func (m *MealPlan) toPlannedMeal() recipe.PlannedMeal {
	return recipe.PlannedMeal{
		ID:        m.ID,
		UserID:    m.UserID,
		Date:      m.Date,
		MealType:  recipe.MealType(m.MealType),
		RecipeID:  m.RecipeID,
		CreatedAt: m.CreatedAt,
	}
}
