package scoring

import (
	"context"

	"github.com/thebtf/reelrank/internal/db"
	"github.com/thebtf/reelrank/pkg/models"
)

// Popularity scores candidates identically for every user, blending
// normalized popularity with the average rating. It is the fallback ranking
// for cold-start users.
type Popularity struct {
	movies db.MovieReader

	// popularityBlend is the popularity share of the blended score; the
	// remainder comes from the rating.
	popularityBlend float64
}

// NewPopularity creates the popularity strategy.
func NewPopularity(movies db.MovieReader, popularityBlend float64) *Popularity {
	return &Popularity{movies: movies, popularityBlend: popularityBlend}
}

// Name returns the strategy's algorithm label.
func (p *Popularity) Name() string { return models.AlgorithmPopularity }

// Score blends catalog-normalized popularity with rating on the [0,1] scale.
// The userID parameter is ignored; the ranking is global.
func (p *Popularity) Score(ctx context.Context, _ string, exclude map[string]bool, limit int) ([]models.ScoredMovie, error) {
	all, err := p.movies.All(ctx)
	if err != nil {
		return nil, err
	}

	var maxPopularity float64
	for _, m := range all {
		if m.Popularity > maxPopularity {
			maxPopularity = m.Popularity
		}
	}

	candidates := make(map[string]float64, len(all))
	pops := make(PopularityIndex, len(all))
	for _, m := range all {
		pops[m.ID] = m.Popularity
		if exclude[m.ID] {
			continue
		}
		var normPop float64
		if maxPopularity > 0 {
			normPop = m.Popularity / maxPopularity
		}
		candidates[m.ID] = p.popularityBlend*normPop + (1-p.popularityBlend)*m.Rating/models.RatingScaleMax
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return rank(candidates, pops, limit), nil
}
