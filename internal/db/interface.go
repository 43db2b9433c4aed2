// Package db defines database interfaces for the reelrank stores.
package db

import (
	"context"
	"time"

	"github.com/thebtf/reelrank/pkg/models"
)

// InteractionReader defines read operations for the interaction event log.
type InteractionReader interface {
	EventsFor(ctx context.Context, userID string, since time.Time) ([]*models.InteractionEvent, error)
	ForEachEventSince(ctx context.Context, since time.Time, batchSize int, fn func(*models.InteractionEvent) error) error
	CountForUser(ctx context.Context, userID string) (int64, error)
	MovieIDsByKinds(ctx context.Context, userID string, kinds ...models.InteractionKind) ([]string, error)
	FeedbackCounts(ctx context.Context, userID string) (accepted, dismissed int64, err error)
}

// InteractionWriter defines the append and prune operations for the event
// log. Pruning is the only deletion path.
type InteractionWriter interface {
	Record(ctx context.Context, event *models.InteractionEvent) (string, error)
	PruneOlderThan(ctx context.Context, horizon time.Duration) (int64, error)
}

// InteractionStore combines read and write operations for interaction events.
type InteractionStore interface {
	InteractionReader
	InteractionWriter
}

// MovieReader defines read operations for cached movie features.
type MovieReader interface {
	Get(ctx context.Context, movieID string) (*models.MovieFeatures, error)
	All(ctx context.Context) ([]*models.MovieFeatures, error)
}

// MovieWriter defines write operations for cached movie features.
type MovieWriter interface {
	Upsert(ctx context.Context, features *models.MovieFeatures) error
	UpdatePopularity(ctx context.Context, movieID string, popularity, rating float64) error
}

// MovieStore combines read and write operations for movies.
type MovieStore interface {
	MovieReader
	MovieWriter
}

// RecommendationStore defines persistence for generated results.
type RecommendationStore interface {
	Save(ctx context.Context, result *models.RecommendationResult) error
	Latest(ctx context.Context, userID, reqContext string) (*models.RecommendationResult, error)
	DeleteForUser(ctx context.Context, userID string) error
	CountsByAlgorithm(ctx context.Context, userID string) (map[string]int64, error)
}
