package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/reelrank/pkg/models"
)

func TestBlendWeightedAverage(t *testing.T) {
	results := map[string][]models.ScoredMovie{
		models.AlgorithmCollaborative: {{MovieID: "m1", Score: 1.0}, {MovieID: "m2", Score: 0.5}},
		models.AlgorithmContentBased:  {{MovieID: "m1", Score: 0.5}},
		models.AlgorithmGenreBased:    {{MovieID: "m2", Score: 1.0}},
		models.AlgorithmPopularity:    {{MovieID: "m1", Score: 0.2}, {MovieID: "m2", Score: 0.4}},
	}

	blended := Blend(results, DefaultWeights(), nil, 10)
	require.Len(t, blended, 2)

	// m1: (0.4*1.0 + 0.3*0.5 + 0.1*0.2) / 1.0 = 0.57
	// m2: (0.4*0.5 + 0.2*1.0 + 0.1*0.4) / 1.0 = 0.44
	assert.Equal(t, "m1", blended[0].MovieID)
	assert.InDelta(t, 0.57, blended[0].Score, 1e-9)
	assert.Equal(t, "m2", blended[1].MovieID)
	assert.InDelta(t, 0.44, blended[1].Score, 1e-9)

	for _, entry := range blended {
		assert.GreaterOrEqual(t, entry.Score, 0.0)
		assert.LessOrEqual(t, entry.Score, 1.0)
	}
}

func TestBlendRedistributesEmptyStrategyWeight(t *testing.T) {
	// Collaborative and genre contribute nothing; their weight flows to the
	// remaining strategies through the shrunken denominator.
	results := map[string][]models.ScoredMovie{
		models.AlgorithmCollaborative: nil,
		models.AlgorithmContentBased:  {{MovieID: "m3", Score: 1.0}},
		models.AlgorithmGenreBased:    nil,
		models.AlgorithmPopularity:    {{MovieID: "m3", Score: 0.2}, {MovieID: "m4", Score: 1.0}},
	}

	blended := Blend(results, DefaultWeights(), nil, 10)
	require.Len(t, blended, 2)

	// Contributing weight = 0.3 + 0.1 = 0.4.
	// m3: (0.3*1.0 + 0.1*0.2) / 0.4 = 0.8
	// m4: (0.1*1.0) / 0.4 = 0.25
	assert.Equal(t, "m3", blended[0].MovieID)
	assert.InDelta(t, 0.8, blended[0].Score, 1e-9)
	assert.Equal(t, "m4", blended[1].MovieID)
	assert.InDelta(t, 0.25, blended[1].Score, 1e-9)
}

func TestBlendPopularityOnlyPreservesRanking(t *testing.T) {
	// A cold-start user gets exactly the popularity ranking, scores intact.
	results := map[string][]models.ScoredMovie{
		models.AlgorithmPopularity: {
			{MovieID: "m1", Score: 0.9},
			{MovieID: "m2", Score: 0.6},
			{MovieID: "m3", Score: 0.3},
		},
	}

	blended := Blend(results, DefaultWeights(), nil, 10)
	require.Len(t, blended, 3)
	assert.Equal(t, results[models.AlgorithmPopularity], blended)
}

func TestBlendAllEmpty(t *testing.T) {
	assert.Empty(t, Blend(map[string][]models.ScoredMovie{}, DefaultWeights(), nil, 10))
	assert.Empty(t, Blend(map[string][]models.ScoredMovie{
		models.AlgorithmCollaborative: nil,
	}, DefaultWeights(), nil, 10))
}

func TestBlendDeterministicTieBreak(t *testing.T) {
	results := map[string][]models.ScoredMovie{
		models.AlgorithmPopularity: {
			{MovieID: "m2", Score: 0.5},
			{MovieID: "m1", Score: 0.5},
			{MovieID: "m3", Score: 0.5},
		},
	}
	pops := PopularityIndex{"m1": 10, "m2": 10, "m3": 80}

	blended := Blend(results, DefaultWeights(), pops, 10)
	require.Len(t, blended, 3)

	// Equal scores: popularity descending first, then movie ID ascending.
	assert.Equal(t, "m3", blended[0].MovieID)
	assert.Equal(t, "m1", blended[1].MovieID)
	assert.Equal(t, "m2", blended[2].MovieID)
}

func TestBlendTruncatesToLimit(t *testing.T) {
	results := map[string][]models.ScoredMovie{
		models.AlgorithmPopularity: {
			{MovieID: "m1", Score: 0.9},
			{MovieID: "m2", Score: 0.6},
			{MovieID: "m3", Score: 0.3},
		},
	}

	blended := Blend(results, DefaultWeights(), nil, 2)
	require.Len(t, blended, 2)
	assert.Equal(t, "m1", blended[0].MovieID)
	assert.Equal(t, "m2", blended[1].MovieID)
}
