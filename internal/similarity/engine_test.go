package similarity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormdb "github.com/thebtf/reelrank/internal/db/gorm"
	"github.com/thebtf/reelrank/pkg/models"
)

func newTestEngine(t *testing.T, minInteractions int) (*Engine, *gormdb.InteractionStore, *gormdb.MovieStore) {
	t.Helper()

	store, err := gormdb.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	interactions := gormdb.NewInteractionStore(store)
	movies := gormdb.NewMovieStore(store)
	matrices := gormdb.NewSimilarityStore(store)

	engine := NewEngine(interactions, movies, matrices, minInteractions, zerolog.Nop())
	return engine, interactions, movies
}

func recordEvent(t *testing.T, store *gormdb.InteractionStore, userID, movieID string, kind models.InteractionKind, value float64) {
	t.Helper()
	_, err := store.Record(context.Background(), &models.InteractionEvent{
		UserID:         userID,
		MovieID:        movieID,
		Kind:           kind,
		Value:          value,
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
}

func TestRecomputeBuildsUserMatrix(t *testing.T) {
	engine, interactions, _ := newTestEngine(t, 3)
	ctx := context.Background()

	// Two users with identical positive taste across three shared movies.
	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u1", movieID, models.KindFavorited, 0)
		recordEvent(t, interactions, "u2", movieID, models.KindFavorited, 0)
	}
	// A third user who rejects everything the others love.
	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u3", movieID, models.KindUnfavored, 0)
	}

	require.NoError(t, engine.Recompute(ctx))

	score, ok := engine.UserSimilarity("u1", "u2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, ok = engine.UserSimilarity("u1", "u3")
	require.True(t, ok)
	assert.InDelta(t, -1.0, score, 1e-9)

	neighbors := engine.SimilarUsers("u1", 10)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "u2", neighbors[0].ID)
}

func TestRecomputeSkipsSparseUsers(t *testing.T) {
	engine, interactions, _ := newTestEngine(t, 3)
	ctx := context.Background()

	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u1", movieID, models.KindFavorited, 0)
	}
	// u2 shares a movie with u1 but sits below the interaction floor.
	recordEvent(t, interactions, "u2", "m1", models.KindFavorited, 0)

	require.NoError(t, engine.Recompute(ctx))

	_, ok := engine.UserSimilarity("u1", "u2")
	assert.False(t, ok)
	assert.Empty(t, engine.SimilarUsers("u2", 10))
}

func TestRecomputeSkipsDisjointUsers(t *testing.T) {
	engine, interactions, _ := newTestEngine(t, 3)
	ctx := context.Background()

	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u1", movieID, models.KindFavorited, 0)
	}
	for _, movieID := range []string{"m4", "m5", "m6"} {
		recordEvent(t, interactions, "u2", movieID, models.KindFavorited, 0)
	}

	require.NoError(t, engine.Recompute(ctx))

	// No shared movie means no stored pair at all, not a zero score.
	_, ok := engine.UserSimilarity("u1", "u2")
	assert.False(t, ok)
}

func TestRecomputeBuildsMovieMatrix(t *testing.T) {
	engine, _, movies := newTestEngine(t, 3)
	ctx := context.Background()

	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m1", Title: "First", Genres: []string{"Action", "Thriller"},
		ReleaseYear: 2015, Popularity: 80, Rating: 7.5,
	}))
	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m2", Title: "Second", Genres: []string{"Action"},
		ReleaseYear: 2017, Popularity: 60, Rating: 6.8,
	}))
	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m3", Title: "Unrelated", Genres: []string{"Documentary"},
		ReleaseYear: 2015, Popularity: 10, Rating: 8.0,
	}))
	// Genre-less movies contribute no content signal.
	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m4", Title: "Bare", ReleaseYear: 2015, Popularity: 50, Rating: 5.0,
	}))

	require.NoError(t, engine.Recompute(ctx))

	score, ok := engine.MovieSimilarity("m1", "m2")
	require.True(t, ok)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	// No shared genre, no stored pair.
	_, ok = engine.MovieSimilarity("m1", "m3")
	assert.False(t, ok)

	// Genre-less movie pairs with nothing.
	assert.Empty(t, engine.SimilarMovies("m4", 10))
}

func TestRecomputePersistsAndLoadRestores(t *testing.T) {
	engine, interactions, movies := newTestEngine(t, 3)
	ctx := context.Background()

	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u1", movieID, models.KindFavorited, 0)
		recordEvent(t, interactions, "u2", movieID, models.KindViewed, 0)
	}
	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m1", Title: "First", Genres: []string{"Action"}, ReleaseYear: 2015, Popularity: 80, Rating: 7.5,
	}))
	require.NoError(t, movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m2", Title: "Second", Genres: []string{"Action"}, ReleaseYear: 2017, Popularity: 60, Rating: 6.8,
	}))

	require.NoError(t, engine.Recompute(ctx))
	old := engine.Snapshot()
	require.Positive(t, old.UserPairCount())
	require.Positive(t, old.MoviePairCount())

	// A fresh engine over the same stores restores the persisted matrices.
	restored := NewEngine(engine.interactions, engine.movies, engine.matrices, 3, zerolog.Nop())
	require.NoError(t, restored.Load(ctx))

	assert.Equal(t, old.UserPairCount(), restored.Snapshot().UserPairCount())
	assert.Equal(t, old.MoviePairCount(), restored.Snapshot().MoviePairCount())

	score, ok := restored.UserSimilarity("u1", "u2")
	require.True(t, ok)
	oldScore, _ := old.UserScore("u1", "u2")
	assert.Equal(t, oldScore, score)
}

func TestSnapshotSurvivesRecompute(t *testing.T) {
	engine, interactions, _ := newTestEngine(t, 3)
	ctx := context.Background()

	for _, movieID := range []string{"m1", "m2", "m3"} {
		recordEvent(t, interactions, "u1", movieID, models.KindFavorited, 0)
		recordEvent(t, interactions, "u2", movieID, models.KindFavorited, 0)
	}
	require.NoError(t, engine.Recompute(ctx))

	held := engine.Snapshot()
	heldScore, ok := held.UserScore("u1", "u2")
	require.True(t, ok)

	// The held snapshot is immutable across later recomputations.
	require.NoError(t, engine.Recompute(ctx))
	score, ok := held.UserScore("u1", "u2")
	require.True(t, ok)
	assert.Equal(t, heldScore, score)
}
