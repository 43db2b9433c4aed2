package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/reelrank/internal/config"
	gormdb "github.com/thebtf/reelrank/internal/db/gorm"
	"github.com/thebtf/reelrank/internal/recommend"
	"github.com/thebtf/reelrank/internal/scheduler"
	"github.com/thebtf/reelrank/internal/similarity"
	"github.com/thebtf/reelrank/pkg/models"
)

func newTestWorker(t *testing.T) *Service {
	t.Helper()

	store, err := gormdb.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	interactions := gormdb.NewInteractionStore(store)
	users := gormdb.NewUserStore(store)
	movies := gormdb.NewMovieStore(store)
	results := gormdb.NewRecommendationStore(store)
	matrices := gormdb.NewSimilarityStore(store)
	engine := similarity.NewEngine(interactions, movies, matrices, 3, zerolog.Nop())

	recommender := recommend.NewService(interactions, users, movies, results, engine, recommend.Options{}, zerolog.Nop())
	t.Cleanup(recommender.Close)

	maintScheduler := scheduler.NewScheduler(engine, interactions, results, nil, movies, scheduler.DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &Service{
		version:   "test",
		config:    config.Default(),
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.store = store
	svc.movies = movies
	svc.engine = engine
	svc.recommender = recommender
	svc.maintScheduler = maintScheduler
	svc.setupMiddleware()
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

func seedCatalog(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m1", Title: "Blockbuster", Genres: []string{"Action"}, ReleaseYear: 2018, Popularity: 100, Rating: 7,
	}))
	require.NoError(t, svc.movies.Upsert(ctx, &models.MovieFeatures{
		ID: "m2", Title: "Sleeper", Genres: []string{"Action"}, ReleaseYear: 2016, Popularity: 40, Rating: 8,
	}))
}

func doRequest(svc *Service, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAlwaysResponds(t *testing.T) {
	svc := newTestWorker(t)

	rec := doRequest(svc, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadinessGate(t *testing.T) {
	svc := newTestWorker(t)

	rec := doRequest(svc, http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// An uninitialized service refuses API traffic but still reports health.
	svc.ready.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(svc, http.MethodGet, "/api/ready", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(svc, http.MethodGet, "/api/recommendations?user_id=u1", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(svc, http.MethodGet, "/health", nil).Code)
}

func TestGetRecommendations(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)

	rec := doRequest(svc, http.MethodGet, "/api/recommendations?user_id=u1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.RecommendationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "u1", result.UserID)
	assert.Equal(t, models.AlgorithmHybrid, result.Algorithm)
	assert.NotEmpty(t, result.Entries)
	assert.False(t, result.Stale)
}

func TestGetRecommendationsRequiresUserID(t *testing.T) {
	svc := newTestWorker(t)
	assert.Equal(t, http.StatusBadRequest, doRequest(svc, http.MethodGet, "/api/recommendations", nil).Code)
}

func TestPostInteraction(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)

	rec := doRequest(svc, http.MethodPost, "/api/interactions", map[string]any{
		"user_id": "u1", "movie_id": "m1", "kind": "rated", "value": 8.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])
}

func TestPostInteractionRejectsBadPayload(t *testing.T) {
	svc := newTestWorker(t)

	// Unknown kind.
	rec := doRequest(svc, http.MethodPost, "/api/interactions", map[string]any{
		"user_id": "u1", "movie_id": "m1", "kind": "teleported",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Rating out of range.
	rec = doRequest(svc, http.MethodPost, "/api/interactions", map[string]any{
		"user_id": "u1", "movie_id": "m1", "kind": "rated", "value": 42,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not JSON at all.
	req := httptest.NewRequest(http.MethodPost, "/api/interactions", bytes.NewReader([]byte("{nope")))
	recorder := httptest.NewRecorder()
	svc.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestFeedbackAndStatsFlow(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)

	require.Equal(t, http.StatusOK, doRequest(svc, http.MethodGet, "/api/recommendations?user_id=u1", nil).Code)

	rec := doRequest(svc, http.MethodPost, "/api/feedback", map[string]any{
		"user_id": "u1", "movie_id": "m1", "accepted": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(svc, http.MethodPost, "/api/feedback", map[string]any{
		"user_id": "u1", "movie_id": "m2", "accepted": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(svc, http.MethodGet, "/api/stats/recommendations?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.RecommendationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, int64(1), stats.Dismissed)
	assert.InDelta(t, 0.5, stats.AcceptanceRate, 1e-9)
}

func TestGetMovie(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)

	rec := doRequest(svc, http.MethodGet, "/api/movies/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var features models.MovieFeatures
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &features))
	assert.Equal(t, "Blockbuster", features.Title)

	assert.Equal(t, http.StatusNotFound, doRequest(svc, http.MethodGet, "/api/movies/unknown", nil).Code)
}

func TestGetSimilarMovies(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)
	require.NoError(t, svc.engine.Recompute(context.Background()))

	rec := doRequest(svc, http.MethodGet, "/api/movies/m1/similar", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		MovieID string               `json:"movie_id"`
		Similar []models.ScoredMovie `json:"similar"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "m1", body.MovieID)
	require.NotEmpty(t, body.Similar)
	assert.Equal(t, "m2", body.Similar[0].MovieID)
}

func TestServingStats(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)
	require.Equal(t, http.StatusOK, doRequest(svc, http.MethodGet, "/api/recommendations?user_id=u1", nil).Code)

	rec := doRequest(svc, http.MethodGet, "/api/stats/serving", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	serving, ok := body["serving"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, serving["computations"])
}

func TestRunMaintenance(t *testing.T) {
	svc := newTestWorker(t)
	seedCatalog(t, svc)

	rec := doRequest(svc, http.MethodPost, "/api/maintenance/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The manual run built the matrices.
	assert.Positive(t, svc.engine.Snapshot().MoviePairCount())
}
