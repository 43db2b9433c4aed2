package gorm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/reelrank/pkg/models"
)

// UserStore persists explicit user preferences (favorites, preferred genres).
type UserStore struct {
	store *Store
}

// NewUserStore creates a UserStore backed by the given Store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{store: store}
}

// Upsert inserts or replaces a user's preference row.
func (s *UserStore) Upsert(ctx context.Context, userID string, favorites, genres []string) error {
	if userID == "" {
		return &models.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	row := User{
		ID:               userID,
		FavoriteMovieIDs: favorites,
		PreferredGenres:  genres,
	}
	err := s.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"favorite_movie_ids", "preferred_genres"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

// Get returns a user row, or models.ErrNotFound.
func (s *UserStore) Get(ctx context.Context, userID string) (*User, error) {
	var row User
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &row, nil
}

// Favorites returns the user's favorite movie IDs. An unknown user has no
// favorites rather than an error.
func (s *UserStore) Favorites(ctx context.Context, userID string) ([]string, error) {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.FavoriteMovieIDs, nil
}

// PreferredGenres returns the user's explicit genre preferences. An unknown
// user has none rather than an error.
func (s *UserStore) PreferredGenres(ctx context.Context, userID string) ([]string, error) {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.PreferredGenres, nil
}

// AddFavorite records a movie in the user's favorite set, creating the user
// row on first contact.
func (s *UserStore) AddFavorite(ctx context.Context, userID, movieID string) error {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return s.Upsert(ctx, userID, []string{movieID}, nil)
	}
	if err != nil {
		return err
	}
	if slices.Contains(user.FavoriteMovieIDs, movieID) {
		return nil
	}
	favorites := append([]string(user.FavoriteMovieIDs), movieID)
	return s.Upsert(ctx, userID, favorites, user.PreferredGenres)
}

// RemoveFavorite drops a movie from the user's favorite set.
func (s *UserStore) RemoveFavorite(ctx context.Context, userID, movieID string) error {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	favorites := slices.DeleteFunc([]string(user.FavoriteMovieIDs), func(id string) bool {
		return id == movieID
	})
	return s.Upsert(ctx, userID, favorites, user.PreferredGenres)
}
