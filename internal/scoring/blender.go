package scoring

import (
	"github.com/thebtf/reelrank/pkg/models"
)

// DefaultWeights is the standard strategy weighting for the hybrid blend.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		models.AlgorithmCollaborative: 0.4,
		models.AlgorithmContentBased:  0.3,
		models.AlgorithmGenreBased:    0.2,
		models.AlgorithmPopularity:    0.1,
	}
}

// Blend combines per-strategy rankings into one hybrid list.
//
// The final score is the weighted average over contributing strategies only:
// a strategy that returned nothing drops out and its weight redistributes
// proportionally across the rest through the shrunken denominator. A movie a
// contributing strategy did not score counts as zero for that strategy.
// Output is sorted descending with ties broken by popularity, then movie ID.
func Blend(results map[string][]models.ScoredMovie, weights map[string]float64, pops PopularityIndex, limit int) []models.ScoredMovie {
	var totalWeight float64
	for name, scored := range results {
		if len(scored) > 0 && weights[name] > 0 {
			totalWeight += weights[name]
		}
	}
	if totalWeight == 0 {
		return nil
	}

	blended := make(map[string]float64)
	for name, scored := range results {
		weight := weights[name]
		if len(scored) == 0 || weight <= 0 {
			continue
		}
		for _, entry := range scored {
			blended[entry.MovieID] += weight * entry.Score / totalWeight
		}
	}
	return rank(blended, pops, limit)
}
