package similarity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/reelrank/internal/db"
	gormdb "github.com/thebtf/reelrank/internal/db/gorm"
	"github.com/thebtf/reelrank/pkg/models"
)

const (
	// eventScanBatch is the page size for the full interaction log scan.
	eventScanBatch = 1000

	// minStoredScore drops near-zero pairs so the persisted matrices stay
	// sparse. The threshold applies to the absolute score.
	minStoredScore = 0.01
)

// Engine owns the similarity matrices. It recomputes them from the
// interaction log and movie catalog, persists each run, and publishes the
// result as an immutable snapshot readers access without locks.
type Engine struct {
	interactions db.InteractionReader
	movies       db.MovieReader
	matrices     *gormdb.SimilarityStore

	// minInteractions gates users out of the user-user matrix until they
	// have enough history for a meaningful taste vector.
	minInteractions int

	snapshot atomic.Pointer[Snapshot]
	logger   zerolog.Logger
}

// NewEngine creates an engine with an empty snapshot. Call Load to restore
// persisted matrices or Recompute to build fresh ones.
func NewEngine(interactions db.InteractionReader, movies db.MovieReader, matrices *gormdb.SimilarityStore, minInteractions int, logger zerolog.Logger) *Engine {
	e := &Engine{
		interactions:    interactions,
		movies:          movies,
		matrices:        matrices,
		minInteractions: minInteractions,
		logger:          logger.With().Str("component", "similarity").Logger(),
	}
	e.snapshot.Store(EmptySnapshot())
	return e
}

// Snapshot returns the current published snapshot. The returned value is
// immutable and remains valid across later recomputations.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// SimilarUsers returns the best matching neighbors of a user.
func (e *Engine) SimilarUsers(userID string, limit int) []Neighbor {
	return e.Snapshot().SimilarUsers(userID, limit)
}

// SimilarMovies returns the best matching neighbors of a movie.
func (e *Engine) SimilarMovies(movieID string, limit int) []Neighbor {
	return e.Snapshot().SimilarMovies(movieID, limit)
}

// UserSimilarity returns the similarity between two users, if stored.
func (e *Engine) UserSimilarity(a, b string) (float64, bool) {
	return e.Snapshot().UserScore(a, b)
}

// MovieSimilarity returns the similarity between two movies, if stored.
func (e *Engine) MovieSimilarity(a, b string) (float64, bool) {
	return e.Snapshot().MovieScore(a, b)
}

// Load restores the persisted matrices into a snapshot. Used at startup so
// scoring works before the first scheduled recomputation.
func (e *Engine) Load(ctx context.Context) error {
	userRows, err := e.matrices.LoadUserSimilarities(ctx)
	if err != nil {
		return fmt.Errorf("load similarity matrices: %w", err)
	}
	movieRows, err := e.matrices.LoadMovieSimilarities(ctx)
	if err != nil {
		return fmt.Errorf("load similarity matrices: %w", err)
	}

	// A fresh database keeps the empty snapshot; its zero ComputedAt is what
	// triggers the initial maintenance run.
	if len(userRows) == 0 && len(movieRows) == 0 {
		return nil
	}

	userEntries := make([]Entry, len(userRows))
	var computedAt int64
	for i, r := range userRows {
		userEntries[i] = Entry{A: r.UserA, B: r.UserB, Score: r.Score}
		if r.ComputedAtEpoch > computedAt {
			computedAt = r.ComputedAtEpoch
		}
	}
	movieEntries := make([]Entry, len(movieRows))
	for i, r := range movieRows {
		movieEntries[i] = Entry{A: r.MovieA, B: r.MovieB, Score: r.Score}
		if r.ComputedAtEpoch > computedAt {
			computedAt = r.ComputedAtEpoch
		}
	}

	e.snapshot.Store(NewSnapshot(userEntries, movieEntries, time.UnixMilli(computedAt)))
	e.logger.Info().
		Int("user_pairs", len(userEntries)).
		Int("movie_pairs", len(movieEntries)).
		Msg("Restored similarity matrices")
	return nil
}

// Recompute rebuilds both matrices from scratch, persists them, and swaps
// the published snapshot. In-flight readers keep the previous snapshot until
// they next ask for one.
func (e *Engine) Recompute(ctx context.Context) error {
	start := time.Now()

	vectors, err := e.buildUserVectors(ctx)
	if err != nil {
		return err
	}
	userEntries := e.computeUserPairs(vectors)

	movieEntries, err := e.computeMoviePairs(ctx)
	if err != nil {
		return err
	}

	if err := e.persist(ctx, userEntries, movieEntries, start); err != nil {
		return err
	}

	e.snapshot.Store(NewSnapshot(userEntries, movieEntries, start))
	e.logger.Info().
		Int("users", len(vectors)).
		Int("user_pairs", len(userEntries)).
		Int("movie_pairs", len(movieEntries)).
		Dur("took", time.Since(start)).
		Msg("Recomputed similarity matrices")
	return nil
}

// buildUserVectors streams the full interaction log and folds each event
// into its user's sparse taste vector.
func (e *Engine) buildUserVectors(ctx context.Context) (map[string]UserVector, error) {
	vectors := make(map[string]UserVector)
	eventCounts := make(map[string]int)

	err := e.interactions.ForEachEventSince(ctx, time.Time{}, eventScanBatch, func(event *models.InteractionEvent) error {
		v, ok := vectors[event.UserID]
		if !ok {
			v = make(UserVector)
			vectors[event.UserID] = v
		}
		v.AccumulateEvent(event)
		eventCounts[event.UserID]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan interaction log: %w", err)
	}

	// Users below the interaction floor stay out of the matrix entirely.
	for userID, count := range eventCounts {
		if count < e.minInteractions {
			delete(vectors, userID)
		}
	}
	return vectors, nil
}

// computeUserPairs scores every user pair that shares at least one movie.
// Candidates come from a movie-to-users inverted index, so disjoint users
// are never compared.
func (e *Engine) computeUserPairs(vectors map[string]UserVector) []Entry {
	byMovie := make(map[string][]string)
	for userID, v := range vectors {
		for movieID := range v {
			byMovie[movieID] = append(byMovie[movieID], userID)
		}
	}

	seen := make(map[pairKey]bool)
	var entries []Entry
	for _, users := range byMovie {
		for i := 0; i < len(users); i++ {
			for j := i + 1; j < len(users); j++ {
				key := newPairKey(users[i], users[j])
				if seen[key] {
					continue
				}
				seen[key] = true

				score := CosineSparse(vectors[key.a], vectors[key.b])
				if score >= minStoredScore || score <= -minStoredScore {
					entries = append(entries, Entry{A: key.a, B: key.b, Score: score})
				}
			}
		}
	}
	return entries
}

// computeMoviePairs scores every movie pair that shares at least one genre.
// Movies without any genre carry no usable content signal and are skipped.
func (e *Engine) computeMoviePairs(ctx context.Context) ([]Entry, error) {
	all, err := e.movies.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load movie catalog: %w", err)
	}

	movies := make([]*models.MovieFeatures, 0, len(all))
	for _, m := range all {
		if !m.HasGenres() {
			e.logger.Debug().Str("movie_id", m.ID).Msg("Skipping genre-less movie")
			continue
		}
		movies = append(movies, m)
	}

	genres := BuildGenreIndex(movies)
	var maxPopularity float64
	for _, m := range movies {
		if m.Popularity > maxPopularity {
			maxPopularity = m.Popularity
		}
	}

	vectors := make([][]float64, len(movies))
	for i, m := range movies {
		vectors[i] = MovieVector(m, genres, maxPopularity)
	}

	byGenre := make(map[string][]int)
	for i, m := range movies {
		for _, g := range m.Genres {
			byGenre[g] = append(byGenre[g], i)
		}
	}

	seen := make(map[pairKey]bool)
	var entries []Entry
	for _, members := range byGenre {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := movies[members[i]], movies[members[j]]
				key := newPairKey(a.ID, b.ID)
				if seen[key] {
					continue
				}
				seen[key] = true

				score := CosineDense(vectors[members[i]], vectors[members[j]])
				if score >= minStoredScore {
					entries = append(entries, Entry{A: key.a, B: key.b, Score: score})
				}
			}
		}
	}
	return entries, nil
}

func (e *Engine) persist(ctx context.Context, userEntries, movieEntries []Entry, computedAt time.Time) error {
	epoch := computedAt.UnixMilli()

	userRows := make([]gormdb.UserSimilarity, len(userEntries))
	for i, entry := range userEntries {
		key := newPairKey(entry.A, entry.B)
		userRows[i] = gormdb.UserSimilarity{
			UserA:           key.a,
			UserB:           key.b,
			Score:           entry.Score,
			ComputedAtEpoch: epoch,
		}
	}
	if err := e.matrices.ReplaceUserSimilarities(ctx, userRows); err != nil {
		return err
	}

	movieRows := make([]gormdb.MovieSimilarity, len(movieEntries))
	for i, entry := range movieEntries {
		key := newPairKey(entry.A, entry.B)
		movieRows[i] = gormdb.MovieSimilarity{
			MovieA:          key.a,
			MovieB:          key.b,
			Score:           entry.Score,
			ComputedAtEpoch: epoch,
		}
	}
	return e.matrices.ReplaceMovieSimilarities(ctx, movieRows)
}
