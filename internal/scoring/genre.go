package scoring

import (
	"context"

	"github.com/thebtf/reelrank/internal/db"
	"github.com/thebtf/reelrank/pkg/models"
)

// GenreBased scores candidates by genre overlap with the user's taste
// profile.
type GenreBased struct {
	prefs  PreferenceReader
	movies db.MovieReader
}

// NewGenreBased creates the genre overlap strategy.
func NewGenreBased(prefs PreferenceReader, movies db.MovieReader) *GenreBased {
	return &GenreBased{prefs: prefs, movies: movies}
}

// Name returns the strategy's algorithm label.
func (g *GenreBased) Name() string { return models.AlgorithmGenreBased }

// Score ranks candidates by Jaccard overlap between the user's genre profile
// and each movie's genres. The profile is the union of explicitly preferred
// genres and the genres of favorited movies.
func (g *GenreBased) Score(ctx context.Context, userID string, exclude map[string]bool, limit int) ([]models.ScoredMovie, error) {
	all, err := g.movies.All(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.MovieFeatures, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	profile, err := g.genreProfile(ctx, userID, byID)
	if err != nil {
		return nil, err
	}
	if len(profile) == 0 {
		return nil, nil
	}

	candidates := make(map[string]float64)
	pops := make(PopularityIndex, len(all))
	for _, m := range all {
		pops[m.ID] = m.Popularity
		if exclude[m.ID] || !m.HasGenres() {
			continue
		}
		if score := jaccard(profile, m.Genres); score > 0 {
			candidates[m.ID] = score
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return rank(candidates, pops, limit), nil
}

func (g *GenreBased) genreProfile(ctx context.Context, userID string, movies map[string]*models.MovieFeatures) (map[string]bool, error) {
	profile := make(map[string]bool)

	preferred, err := g.prefs.PreferredGenres(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, genre := range preferred {
		profile[genre] = true
	}

	favorites, err := g.prefs.Favorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, favoriteID := range favorites {
		if m, ok := movies[favoriteID]; ok {
			for _, genre := range m.Genres {
				profile[genre] = true
			}
		}
	}
	return profile, nil
}

// jaccard computes |profile ∩ genres| / |profile ∪ genres|.
func jaccard(profile map[string]bool, genres []string) float64 {
	var intersection int
	union := len(profile)
	for _, genre := range genres {
		if profile[genre] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
