package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlib "gorm.io/gorm"

	"github.com/thebtf/reelrank/pkg/models"
)

// RecommendationStore persists generated recommendation results.
type RecommendationStore struct {
	store *Store
}

// NewRecommendationStore creates a RecommendationStore backed by the given
// Store.
func NewRecommendationStore(store *Store) *RecommendationStore {
	return &RecommendationStore{store: store}
}

// Save stores a freshly generated result, superseding any prior result for
// the same (user, context) key. The old row is deleted, not mutated.
func (s *RecommendationStore) Save(ctx context.Context, result *models.RecommendationResult) error {
	row := RecommendationResult{
		ID:               result.ID,
		UserID:           result.UserID,
		Context:          result.Context,
		Algorithm:        result.Algorithm,
		Entries:          result.Entries,
		GeneratedAtEpoch: result.GeneratedAtEpoch,
		ExpiresAtEpoch:   result.ExpiresAtEpoch,
	}

	err := s.store.TransactionWithTimeout(ctx, DefaultQueryTimeout, func(tx *gormlib.DB) error {
		if err := tx.Where("user_id = ? AND context = ?", result.UserID, result.Context).
			Delete(&RecommendationResult{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("save recommendation result: %w", err)
	}
	return nil
}

// Latest returns the most recent result for a (user, context) key regardless
// of expiry, or models.ErrNotFound.
func (s *RecommendationStore) Latest(ctx context.Context, userID, reqContext string) (*models.RecommendationResult, error) {
	var row RecommendationResult
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ? AND context = ?", userID, reqContext).
		Order("generated_at_epoch DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("latest recommendation: %w", err)
	}
	return row.Domain(), nil
}

// DeleteForUser removes all persisted results for a user. Used on explicit
// invalidation.
func (s *RecommendationStore) DeleteForUser(ctx context.Context, userID string) error {
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&RecommendationResult{}).Error
	if err != nil {
		return fmt.Errorf("delete recommendations for %s: %w", userID, err)
	}
	return nil
}

// CountsByAlgorithm returns how many persisted results each algorithm label
// has produced for a user.
func (s *RecommendationStore) CountsByAlgorithm(ctx context.Context, userID string) (map[string]int64, error) {
	type algCount struct {
		Algorithm string
		Count     int64
	}
	var rows []algCount
	err := s.store.DB.WithContext(ctx).
		Model(&RecommendationResult{}).
		Select("algorithm, COUNT(*) as count").
		Where("user_id = ?", userID).
		Group("algorithm").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counts by algorithm: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Algorithm] = r.Count
	}
	return counts, nil
}

// DeleteExpiredBefore removes results whose expiry precedes cutoff. Expired
// rows are kept briefly as the degraded-mode stale fallback; this trims older
// generations.
func (s *RecommendationStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.store.DB.WithContext(ctx).
		Where("expires_at_epoch < ?", cutoff.UnixMilli()).
		Delete(&RecommendationResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired results: %w", res.Error)
	}
	return res.RowsAffected, nil
}
