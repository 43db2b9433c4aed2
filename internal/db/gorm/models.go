package gorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/reelrank/pkg/models"
)

// GORM models.
//
// JSON column types (JSONStringArray, JSONScoredMovies) come from pkg/models
// and implement sql.Scanner and driver.Valuer.

// User holds explicit user preferences consumed by the scoring strategies.
// Registration and deletion are external concerns.
type User struct {
	ID               string                 `gorm:"primaryKey;type:text"`
	FavoriteMovieIDs models.JSONStringArray `gorm:"type:text"`
	PreferredGenres  models.JSONStringArray `gorm:"type:text"`
	CreatedAtEpoch   int64                  `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// BeforeCreate hook to ensure timestamps are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAtEpoch == 0 {
		u.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Movie caches catalog feature data. Popularity and rating are refreshed
// periodically; everything else is immutable from the core's perspective.
type Movie struct {
	ID                 string                 `gorm:"primaryKey;type:text"`
	Title              string                 `gorm:"type:text;not null"`
	Genres             models.JSONStringArray `gorm:"type:text"`
	ReleaseYear        int                    `gorm:"index:idx_movies_year"`
	Runtime            int
	Language           string  `gorm:"type:text"`
	Popularity         float64 `gorm:"type:real;index:idx_movies_popularity,sort:desc"`
	Rating             float64 `gorm:"type:real"`
	RefreshedAtEpoch   int64
	CreatedAtEpoch     int64 `gorm:"not null"`
}

func (Movie) TableName() string { return "movies" }

// BeforeCreate hook to ensure timestamps are set.
func (m *Movie) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAtEpoch == 0 {
		m.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Features converts the row to the domain feature vector.
func (m *Movie) Features() *models.MovieFeatures {
	return &models.MovieFeatures{
		ID:          m.ID,
		Title:       m.Title,
		Genres:      m.Genres,
		ReleaseYear: m.ReleaseYear,
		Runtime:     m.Runtime,
		Language:    m.Language,
		Popularity:  m.Popularity,
		Rating:      m.Rating,
	}
}

// InteractionEvent is the append-only record of a user-movie interaction.
type InteractionEvent struct {
	ID             string `gorm:"primaryKey;type:text"`
	UserID         string `gorm:"type:text;index:idx_events_user_created,priority:1;not null"`
	MovieID        string `gorm:"type:text;index:idx_events_movie;not null"`
	Kind           string `gorm:"type:text;index:idx_events_kind;not null"`
	Value          float64
	CreatedAtEpoch int64 `gorm:"index:idx_events_created;index:idx_events_user_created,priority:2;not null"`
}

func (InteractionEvent) TableName() string { return "interaction_events" }

// BeforeCreate hook to ensure ID and timestamp are set.
func (e *InteractionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Domain converts the row to the domain event.
func (e *InteractionEvent) Domain() *models.InteractionEvent {
	return &models.InteractionEvent{
		ID:             e.ID,
		UserID:         e.UserID,
		MovieID:        e.MovieID,
		Kind:           models.InteractionKind(e.Kind),
		Value:          e.Value,
		CreatedAtEpoch: e.CreatedAtEpoch,
	}
}

// UserSimilarity stores one unordered user pair per row (UserA < UserB).
// Each recomputation run replaces the whole table transactionally.
type UserSimilarity struct {
	UserA           string  `gorm:"type:text;primaryKey;index:idx_user_sim_a"`
	UserB           string  `gorm:"type:text;primaryKey;index:idx_user_sim_b"`
	Score           float64 `gorm:"type:real;not null"`
	ComputedAtEpoch int64   `gorm:"not null"`
}

func (UserSimilarity) TableName() string { return "user_similarities" }

// MovieSimilarity stores one unordered movie pair per row (MovieA < MovieB),
// same replacement policy as UserSimilarity.
type MovieSimilarity struct {
	MovieA          string  `gorm:"type:text;primaryKey;index:idx_movie_sim_a"`
	MovieB          string  `gorm:"type:text;primaryKey;index:idx_movie_sim_b"`
	Score           float64 `gorm:"type:real;not null"`
	ComputedAtEpoch int64   `gorm:"not null"`
}

func (MovieSimilarity) TableName() string { return "movie_similarities" }

// RecommendationResult persists a generated ranking. Superseded rows are
// deleted on the next generation for the same key, never updated.
type RecommendationResult struct {
	ID               string                  `gorm:"primaryKey;type:text"`
	UserID           string                  `gorm:"type:text;index:idx_results_user_context,priority:1;not null"`
	Context          string                  `gorm:"type:text;index:idx_results_user_context,priority:2;not null"`
	Algorithm        string                  `gorm:"type:text;not null"`
	Entries          models.JSONScoredMovies `gorm:"type:text"`
	GeneratedAtEpoch int64                   `gorm:"not null"`
	ExpiresAtEpoch   int64                   `gorm:"index:idx_results_expires;not null"`
}

func (RecommendationResult) TableName() string { return "recommendation_results" }

// BeforeCreate hook to ensure ID and timestamp are set.
func (r *RecommendationResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.GeneratedAtEpoch == 0 {
		r.GeneratedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Domain converts the row to the domain result.
func (r *RecommendationResult) Domain() *models.RecommendationResult {
	return &models.RecommendationResult{
		ID:               r.ID,
		UserID:           r.UserID,
		Context:          r.Context,
		Algorithm:        r.Algorithm,
		Entries:          r.Entries,
		GeneratedAtEpoch: r.GeneratedAtEpoch,
		ExpiresAtEpoch:   r.ExpiresAtEpoch,
	}
}
