package gorm

import (
	"context"
	"fmt"

	gormlib "gorm.io/gorm"
)

// SimilarityStore persists the precomputed user-user and movie-movie
// similarity matrices. Each recomputation run replaces a matrix wholesale in
// one transaction so readers never observe a mix of old and new entries.
type SimilarityStore struct {
	store *Store
}

// NewSimilarityStore creates a SimilarityStore backed by the given Store.
func NewSimilarityStore(store *Store) *SimilarityStore {
	return &SimilarityStore{store: store}
}

// similarityBatchSize bounds insert statement size during replacement.
const similarityBatchSize = 500

// ReplaceUserSimilarities atomically swaps the stored user-user matrix.
func (s *SimilarityStore) ReplaceUserSimilarities(ctx context.Context, entries []UserSimilarity) error {
	err := s.store.TransactionWithTimeout(ctx, SlowQueryTimeout, func(tx *gormlib.DB) error {
		if err := tx.Where("1 = 1").Delete(&UserSimilarity{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, similarityBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace user similarities: %w", err)
	}
	return nil
}

// ReplaceMovieSimilarities atomically swaps the stored movie-movie matrix.
func (s *SimilarityStore) ReplaceMovieSimilarities(ctx context.Context, entries []MovieSimilarity) error {
	err := s.store.TransactionWithTimeout(ctx, SlowQueryTimeout, func(tx *gormlib.DB) error {
		if err := tx.Where("1 = 1").Delete(&MovieSimilarity{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, similarityBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace movie similarities: %w", err)
	}
	return nil
}

// LoadUserSimilarities returns the full stored user-user matrix.
func (s *SimilarityStore) LoadUserSimilarities(ctx context.Context) ([]UserSimilarity, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "load_user_similarities")
	defer cancel()

	var rows []UserSimilarity
	if err := s.store.DB.WithContext(timeoutCtx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load user similarities: %w", err)
	}
	return rows, nil
}

// LoadMovieSimilarities returns the full stored movie-movie matrix.
func (s *SimilarityStore) LoadMovieSimilarities(ctx context.Context) ([]MovieSimilarity, error) {
	timeoutCtx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "load_movie_similarities")
	defer cancel()

	var rows []MovieSimilarity
	if err := s.store.DB.WithContext(timeoutCtx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load movie similarities: %w", err)
	}
	return rows, nil
}
