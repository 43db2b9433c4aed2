package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/reelrank/pkg/models"
)

// MovieStore persists catalog feature data for movies.
type MovieStore struct {
	store *Store
}

// NewMovieStore creates a MovieStore backed by the given Store.
func NewMovieStore(store *Store) *MovieStore {
	return &MovieStore{store: store}
}

// Upsert inserts or replaces a movie's feature row.
func (s *MovieStore) Upsert(ctx context.Context, features *models.MovieFeatures) error {
	if features.ID == "" {
		return &models.ValidationError{Field: "movie_id", Reason: "must not be empty"}
	}

	row := Movie{
		ID:               features.ID,
		Title:            features.Title,
		Genres:           features.Genres,
		ReleaseYear:      features.ReleaseYear,
		Runtime:          features.Runtime,
		Language:         features.Language,
		Popularity:       features.Popularity,
		Rating:           features.Rating,
		RefreshedAtEpoch: time.Now().UnixMilli(),
	}

	err := s.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "genres", "release_year", "runtime", "language",
				"popularity", "rating", "refreshed_at_epoch",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert movie %s: %w", features.ID, err)
	}
	return nil
}

// Get returns one movie's features, or models.ErrNotFound.
func (s *MovieStore) Get(ctx context.Context, movieID string) (*models.MovieFeatures, error) {
	var row Movie
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", movieID).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get movie %s: %w", movieID, err)
	}
	return row.Features(), nil
}

// All returns feature data for every known movie.
func (s *MovieStore) All(ctx context.Context) ([]*models.MovieFeatures, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "all_movies")
	defer cancel()

	var rows []Movie
	if err := s.store.DB.WithContext(timeoutCtx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}

	features := make([]*models.MovieFeatures, len(rows))
	for i := range rows {
		features[i] = rows[i].Features()
	}
	return features, nil
}

// UpdatePopularity refreshes the mutable popularity and rating fields.
func (s *MovieStore) UpdatePopularity(ctx context.Context, movieID string, popularity, rating float64) error {
	res := s.store.DB.WithContext(ctx).
		Model(&Movie{}).
		Where("id = ?", movieID).
		Updates(map[string]interface{}{
			"popularity":         popularity,
			"rating":             rating,
			"refreshed_at_epoch": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("update popularity %s: %w", movieID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
