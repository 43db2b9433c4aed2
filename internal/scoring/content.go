package scoring

import (
	"context"

	"github.com/thebtf/reelrank/internal/db"
	"github.com/thebtf/reelrank/pkg/models"
)

// ContentBased scores candidates by content similarity to the user's
// favorite movies.
type ContentBased struct {
	similarities SimilarityReader
	prefs        PreferenceReader
	movies       db.MovieReader

	// similarPerFavorite bounds how many neighbors each favorite pulls in.
	similarPerFavorite int
}

// NewContentBased creates the content based strategy.
func NewContentBased(similarities SimilarityReader, prefs PreferenceReader, movies db.MovieReader, similarPerFavorite int) *ContentBased {
	return &ContentBased{
		similarities:       similarities,
		prefs:              prefs,
		movies:             movies,
		similarPerFavorite: similarPerFavorite,
	}
}

// Name returns the strategy's algorithm label.
func (c *ContentBased) Name() string { return models.AlgorithmContentBased }

// Score accumulates, per candidate, the sum of its similarities to the
// user's favorites, then normalizes against the best candidate. A movie
// similar to several favorites outranks one similar to a single favorite.
func (c *ContentBased) Score(ctx context.Context, userID string, exclude map[string]bool, limit int) ([]models.ScoredMovie, error) {
	favorites, err := c.prefs.Favorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(favorites) == 0 {
		return nil, nil
	}

	candidates := make(map[string]float64)
	for _, favoriteID := range favorites {
		for _, neighbor := range c.similarities.SimilarMovies(favoriteID, c.similarPerFavorite) {
			if exclude[neighbor.ID] || neighbor.Score <= 0 {
				continue
			}
			candidates[neighbor.ID] += neighbor.Score
		}
	}

	normalized := normalizeByMax(candidates)
	if len(normalized) == 0 {
		return nil, nil
	}

	pops, err := BuildPopularityIndex(ctx, c.movies)
	if err != nil {
		return nil, err
	}
	return rank(normalized, pops, limit), nil
}
