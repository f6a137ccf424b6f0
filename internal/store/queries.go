package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// candidateBatch is how many rows CandidateRecipes scans per round trip
// while applying the list filters in memory.
const candidateBatch = 100

// Preferences returns the dietary profile of userID, or (nil, nil) when the
// user has none stored.
func (s *Store) Preferences(ctx context.Context, userID string) (*recipe.Preferences, error) {
	var p Preference
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: preferences: %w", err)
	}
	return p.toPreferences(), nil
}

// UpsertPreferences stores prefs as the dietary profile of userID.
func (s *Store) UpsertPreferences(ctx context.Context, userID string, prefs *recipe.Preferences) error {
	row := Preference{
		ID:             userID,
		DietType:       StringList(prefs.DietType),
		CuisineType:    StringList(prefs.CuisineType),
		Restrictions:   StringList(prefs.Restrictions),
		Allergies:      StringList(prefs.Allergies),
		CaloriesMin:    prefs.CaloriesMin,
		CaloriesMax:    prefs.CaloriesMax,
		MaxCookingTime: prefs.MaxCookingTime,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"diet_type", "cuisine_type", "restrictions", "allergies", "calories_min", "calories_max", "max_cooking_time", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: upsert preferences: %w", err)
	}
	return nil
}

// RecentFavoriteRecipes returns up to n recipes userID favorited, most
// recent first. Favorites whose recipe no longer exists are skipped.
func (s *Store) RecentFavoriteRecipes(ctx context.Context, userID string, n int) ([]recipe.Record, error) {
	var favs []Favorite
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&favs).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent favorites: %w", err)
	}
	if len(favs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(favs))
	for i, f := range favs {
		ids[i] = f.RecipeID
	}
	recs, err := s.RecipesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]recipe.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]recipe.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// AddFavorite records that userID likes recipeID.
func (s *Store) AddFavorite(ctx context.Context, userID, recipeID string) error {
	if err := s.db.WithContext(ctx).Create(&Favorite{UserID: userID, RecipeID: recipeID}).Error; err != nil {
		return fmt.Errorf("store: add favorite: %w", err)
	}
	return nil
}

// RecipesByIDs returns the recipes with the given ids in unspecified order.
// Unknown ids are skipped.
func (s *Store) RecipesByIDs(ctx context.Context, ids []string) ([]recipe.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Recipe
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: recipes by ids: %w", err)
	}
	return toRecords(rows), nil
}

// RecipeByID returns one recipe or *apperr.NotFoundError.
func (s *Store) RecipeByID(ctx context.Context, id string) (*recipe.Record, error) {
	var row Recipe
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Kind: "recipe", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: recipe %s: %w", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// ListRecipes pages through the catalog in creation order.
func (s *Store) ListRecipes(ctx context.Context, offset, limit int) ([]recipe.Record, error) {
	var rows []Recipe
	err := s.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list recipes: %w", err)
	}
	return toRecords(rows), nil
}

// CountRecipes returns the catalog size.
func (s *Store) CountRecipes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Recipe{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count recipes: %w", err)
	}
	return n, nil
}

// CreateRecipe inserts rec, assigning rec.ID when empty.
func (s *Store) CreateRecipe(ctx context.Context, rec *recipe.Record) error {
	row := recipeFromRecord(rec)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store: create recipe: %w", err)
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
	return nil
}

// CandidateQuery narrows the recipes offered for a meal slot.
type CandidateQuery struct {
	DietTypes      []string
	CuisineTypes   []string
	MaxCookingTime int
	ExcludeIDs     []string
	// Limit defaults to 3.
	Limit int
}

// CandidateRecipes returns up to q.Limit recipes that honour q. Cooking time
// and exclusions are applied in SQL; diet and cuisine tags are matched with
// recipe.Preferences.Admits so both drivers behave the same.
func (s *Store) CandidateRecipes(ctx context.Context, q CandidateQuery) ([]recipe.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 3
	}
	prefs := &recipe.Preferences{DietType: q.DietTypes, CuisineType: q.CuisineTypes, MaxCookingTime: q.MaxCookingTime}

	base := s.db.WithContext(ctx).Model(&Recipe{})
	if q.MaxCookingTime > 0 {
		base = base.Where("cooking_time <= ?", q.MaxCookingTime)
	}
	if len(q.ExcludeIDs) > 0 {
		base = base.Where("id NOT IN ?", q.ExcludeIDs)
	}

	out := make([]recipe.Record, 0, limit)
	for offset := 0; len(out) < limit; offset += candidateBatch {
		var rows []Recipe
		err := base.Session(&gorm.Session{}).
			Order("created_at ASC").Order("id ASC").
			Offset(offset).Limit(candidateBatch).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("store: candidate recipes: %w", err)
		}
		for _, row := range rows {
			rec := row.toRecord()
			if prefs.Admits(&rec) {
				out = append(out, rec)
				if len(out) == limit {
					break
				}
			}
		}
		if len(rows) < candidateBatch {
			break
		}
	}
	return out, nil
}

// CreateMealPlan persists one planned meal and returns it with its id.
func (s *Store) CreateMealPlan(ctx context.Context, userID string, date time.Time, meal recipe.MealType, recipeID string) (*recipe.PlannedMeal, error) {
	row := MealPlan{
		UserID:   userID,
		Date:     day(date),
		MealType: string(meal),
		RecipeID: recipeID,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("store: create meal plan: %w", err)
	}
	pm := row.toPlannedMeal()
	return &pm, nil
}

// MealPlans lists userID's planned meals between from and to inclusive,
// newest date first. Zero bounds are open.
func (s *Store) MealPlans(ctx context.Context, userID string, from, to time.Time) ([]recipe.PlannedMeal, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("date >= ?", day(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", day(to))
	}
	var rows []MealPlan
	if err := q.Order("date DESC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: meal plans: %w", err)
	}
	out := make([]recipe.PlannedMeal, len(rows))
	for i := range rows {
		out[i] = rows[i].toPlannedMeal()
	}
	return out, nil
}

// SettingsByUser returns userID's provider settings without the API key,
// or (nil, nil) when none are stored.
func (s *Store) SettingsByUser(ctx context.Context, userID string) (*Setting, error) {
	var st Setting
	err := s.db.WithContext(ctx).Omit("api_key").Where("user_id = ?", userID).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: settings: %w", err)
	}
	return &st, nil
}

// ProviderSettings returns userID's provider settings including the API
// key, or (nil, nil) when none are stored. Only provider resolution may
// call it.
func (s *Store) ProviderSettings(ctx context.Context, userID string) (*Setting, error) {
	var st Setting
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: provider settings: %w", err)
	}
	return &st, nil
}

// UpsertSettings stores st as the settings of st.UserID.
func (s *Store) UpsertSettings(ctx context.Context, st *Setting) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"llm_service", "model_name", "is_paid", "api_key", "api_endpoint", "updated_at"}),
	}).Create(st).Error
	if err != nil {
		return fmt.Errorf("store: upsert settings: %w", err)
	}
	return nil
}

// CreateProfile inserts p, assigning p.ID when empty.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("store: create profile: %w", err)
	}
	return nil
}

func toRecords(rows []Recipe) []recipe.Record {
	out := make([]recipe.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
