package scoring

import (
	"context"
	"time"

	"github.com/thebtf/reelrank/internal/db"
	"github.com/thebtf/reelrank/internal/similarity"
	"github.com/thebtf/reelrank/pkg/models"
)

// Collaborative scores candidates from the taste of the user's nearest
// neighbors in the user-user matrix.
type Collaborative struct {
	similarities SimilarityReader
	interactions db.InteractionReader
	movies       db.MovieReader

	// neighborCount bounds how many similar users contribute.
	neighborCount int
}

// NewCollaborative creates the collaborative filtering strategy.
func NewCollaborative(similarities SimilarityReader, interactions db.InteractionReader, movies db.MovieReader, neighborCount int) *Collaborative {
	return &Collaborative{
		similarities:  similarities,
		interactions:  interactions,
		movies:        movies,
		neighborCount: neighborCount,
	}
}

// Name returns the strategy's algorithm label.
func (c *Collaborative) Name() string { return models.AlgorithmCollaborative }

// Score weighs each neighbor's taste vector by the neighbor's similarity and
// sums the contributions per candidate movie. Only positively similar
// neighbors contribute. Scores normalize against the best candidate.
func (c *Collaborative) Score(ctx context.Context, userID string, exclude map[string]bool, limit int) ([]models.ScoredMovie, error) {
	neighbors := c.similarities.SimilarUsers(userID, c.neighborCount)

	candidates := make(map[string]float64)
	for _, neighbor := range neighbors {
		if neighbor.Score <= 0 {
			continue
		}
		vector, err := c.neighborVector(ctx, neighbor.ID)
		if err != nil {
			return nil, err
		}
		for movieID, weight := range vector {
			if exclude[movieID] {
				continue
			}
			candidates[movieID] += neighbor.Score * weight
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

func (c *Collaborative) neighborVector(ctx context.Context, neighborID string) (similarity.UserVector, error) {
	events, err := c.interactions.EventsFor(ctx, neighborID, time.Time{})
	if err != nil {
		return nil, err
	}
	vector := make(similarity.UserVector, len(events))
	for _, event := range events {
		vector.AccumulateEvent(event)
	}
	return vector, nil
}
