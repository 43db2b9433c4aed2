package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/reelrank/pkg/models"
)

func TestInteractionWeight(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.InteractionKind
		value    float64
		expected float64
	}{
		{"favorited is the strongest positive signal", models.KindFavorited, 0, 1.0},
		{"accepted recommendation", models.KindAccepted, 0, 0.9},
		{"viewed is a weak positive signal", models.KindViewed, 0, 0.3},
		{"unfavorited is strongly negative", models.KindUnfavored, 0, -0.8},
		{"dismissed recommendation is mildly negative", models.KindDismissed, 0, -0.4},
		{"top rating stays below favorited", models.KindRated, 10, 0.85},
		{"mid rating scales proportionally", models.KindRated, 5, 0.425},
		{"unknown kind carries no weight", models.InteractionKind("bogus"), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, InteractionWeight(tt.kind, tt.value), 1e-9)
		})
	}
}

func TestUserVectorAccumulateClamps(t *testing.T) {
	v := make(UserVector)

	// Two strong positives on the same movie must not exceed the cap.
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m1", Kind: models.KindFavorited})
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m1", Kind: models.KindAccepted})
	assert.Equal(t, 1.0, v["m1"])

	// Repeated negatives clamp at the floor.
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m2", Kind: models.KindUnfavored})
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m2", Kind: models.KindUnfavored})
	assert.Equal(t, -1.0, v["m2"])

	// Mixed signals sum.
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m3", Kind: models.KindViewed})
	v.AccumulateEvent(&models.InteractionEvent{MovieID: "m3", Kind: models.KindDismissed})
	assert.InDelta(t, -0.1, v["m3"], 1e-9)
}

func TestCosineSparse(t *testing.T) {
	a := UserVector{"m1": 1.0, "m2": 0.5}
	b := UserVector{"m1": 1.0, "m2": 0.5}
	assert.InDelta(t, 1.0, CosineSparse(a, b), 1e-9)

	// Opposite tastes on the same movies.
	c := UserVector{"m1": -1.0, "m2": -0.5}
	assert.InDelta(t, -1.0, CosineSparse(a, c), 1e-9)

	// Disjoint vectors share no signal.
	d := UserVector{"m9": 1.0}
	assert.Equal(t, 0.0, CosineSparse(a, d))

	// Empty vectors never divide by zero.
	assert.Equal(t, 0.0, CosineSparse(a, UserVector{}))
	assert.Equal(t, 0.0, CosineSparse(UserVector{}, UserVector{}))
}

func TestSharesMovie(t *testing.T) {
	a := UserVector{"m1": 1.0, "m2": 0.3}
	b := UserVector{"m2": -0.4}
	c := UserVector{"m9": 1.0}

	assert.True(t, SharesMovie(a, b))
	assert.False(t, SharesMovie(a, c))
	assert.False(t, SharesMovie(UserVector{}, a))
}

func TestMovieVectorLayout(t *testing.T) {
	movies := []*models.MovieFeatures{
		{ID: "m1", Genres: []string{"Action", "Drama"}, ReleaseYear: 2015, Popularity: 50, Rating: 8},
		{ID: "m2", Genres: []string{"Drama"}, ReleaseYear: 1975, Popularity: 100, Rating: 6},
	}
	genres := BuildGenreIndex(movies)
	assert.Len(t, genres, 2)

	vec := MovieVector(movies[0], genres, 100)
	assert.Len(t, vec, 2+2+models.EraBucketCount)

	// Multi-hot genre slots.
	assert.Equal(t, 1.0, vec[genres["Action"]])
	assert.Equal(t, 1.0, vec[genres["Drama"]])

	// Popularity normalized against the catalog maximum, rating against the
	// scale maximum.
	assert.InDelta(t, 0.5, vec[2], 1e-9)
	assert.InDelta(t, 0.8, vec[3], 1e-9)

	// Exactly one era slot set.
	eraSlots := vec[4:]
	var set int
	for _, s := range eraSlots {
		if s == 1.0 {
			set++
		}
	}
	assert.Equal(t, 1, set)
}

func TestCosineDenseIsNonNegativeForContentVectors(t *testing.T) {
	movies := []*models.MovieFeatures{
		{ID: "m1", Genres: []string{"Action"}, ReleaseYear: 2015, Popularity: 10, Rating: 7},
		{ID: "m2", Genres: []string{"Action"}, ReleaseYear: 2018, Popularity: 90, Rating: 5},
	}
	genres := BuildGenreIndex(movies)
	a := MovieVector(movies[0], genres, 90)
	b := MovieVector(movies[1], genres, 90)

	score := CosineDense(a, b)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	// Zero magnitude guards.
	zero := make([]float64, len(a))
	assert.Equal(t, 0.0, CosineDense(a, zero))
}

func TestSharesGenre(t *testing.T) {
	a := &models.MovieFeatures{Genres: []string{"Action", "Drama"}}
	b := &models.MovieFeatures{Genres: []string{"Drama"}}
	c := &models.MovieFeatures{Genres: []string{"Comedy"}}

	assert.True(t, SharesGenre(a, b))
	assert.False(t, SharesGenre(a, c))
	assert.False(t, SharesGenre(a, &models.MovieFeatures{}))
}
