// Package scoring implements the per-strategy candidate scorers and the
// hybrid blender that combines them into one ranked list.
package scoring

import (
	"context"
	"sort"

	"github.com/thebtf/reelrank/internal/db"
	"github.com/thebtf/reelrank/internal/similarity"
	"github.com/thebtf/reelrank/pkg/models"
)

// Strategy scores candidate movies for one user. An empty result means the
// strategy has insufficient data for this user; that is not an error.
type Strategy interface {
	Name() string
	Score(ctx context.Context, userID string, exclude map[string]bool, limit int) ([]models.ScoredMovie, error)
}

// SimilarityReader is the snapshot view the strategies need.
type SimilarityReader interface {
	SimilarUsers(userID string, limit int) []similarity.Neighbor
	SimilarMovies(movieID string, limit int) []similarity.Neighbor
}

// PreferenceReader exposes the explicit user preferences strategies consume.
type PreferenceReader interface {
	Favorites(ctx context.Context, userID string) ([]string, error)
	PreferredGenres(ctx context.Context, userID string) ([]string, error)
}

// PopularityIndex maps movie IDs to raw popularity, used for deterministic
// tie-breaks.
type PopularityIndex map[string]float64

// BuildPopularityIndex loads the catalog's popularity values.
func BuildPopularityIndex(ctx context.Context, movies db.MovieReader) (PopularityIndex, error) {
	all, err := movies.All(ctx)
	if err != nil {
		return nil, err
	}
	index := make(PopularityIndex, len(all))
	for _, m := range all {
		index[m.ID] = m.Popularity
	}
	return index, nil
}

// rank turns a candidate score map into a sorted, truncated result. Ordering
// is score descending, then popularity descending, then movie ID ascending,
// so equal inputs always produce identical output.
func rank(candidates map[string]float64, pops PopularityIndex, limit int) []models.ScoredMovie {
	scored := make([]models.ScoredMovie, 0, len(candidates))
	for movieID, score := range candidates {
		scored = append(scored, models.ScoredMovie{MovieID: movieID, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if pops[scored[i].MovieID] != pops[scored[j].MovieID] {
			return pops[scored[i].MovieID] > pops[scored[j].MovieID]
		}
		return scored[i].MovieID < scored[j].MovieID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// normalizeByMax scales positive candidate scores into (0, 1] and drops
// non-positive ones.
func normalizeByMax(candidates map[string]float64) map[string]float64 {
	var max float64
	for _, score := range candidates {
		if score > max {
			max = score
		}
	}
	if max == 0 {
		return nil
	}
	normalized := make(map[string]float64, len(candidates))
	for movieID, score := range candidates {
		if score > 0 {
			normalized[movieID] = score / max
		}
	}
	return normalized
}
