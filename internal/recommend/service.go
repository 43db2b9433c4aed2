// Package recommend serves blended recommendations with caching, request
// coalescing, and the interaction feedback loop.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	gormdb "github.com/thebtf/reelrank/internal/db/gorm"
	"github.com/thebtf/reelrank/internal/scoring"
	"github.com/thebtf/reelrank/internal/similarity"
	"github.com/thebtf/reelrank/pkg/models"
)

const (
	// DefaultContext is the recommendation context used when the caller does
	// not name one.
	DefaultContext = "home"

	defaultResultTTL     = 24 * time.Hour
	defaultComputeBudget = 5 * time.Second
	defaultLimit         = 20
	maxLimit             = 100

	cacheCleanupInterval = time.Minute
)

// Metrics tracks recommendation serving statistics.
type Metrics struct {
	Requests     int64
	CacheHits    int64
	Computations int64
	StaleServed  int64
	Timeouts     int64
}

// Stats returns the current counters.
func (m *Metrics) Stats() map[string]any {
	return map[string]any{
		"requests":     atomic.LoadInt64(&m.Requests),
		"cache_hits":   atomic.LoadInt64(&m.CacheHits),
		"computations": atomic.LoadInt64(&m.Computations),
		"stale_served": atomic.LoadInt64(&m.StaleServed),
		"timeouts":     atomic.LoadInt64(&m.Timeouts),
	}
}

// Options configures the recommendation service.
type Options struct {
	ResultTTL     time.Duration
	ComputeBudget time.Duration

	NeighborCount      int
	SimilarPerFavorite int
	PopularityBlend    float64

	// Weights maps algorithm labels to blend weights. Nil uses the default
	// 0.4/0.3/0.2/0.1 split.
	Weights map[string]float64
}

func (o *Options) fillDefaults() {
	if o.ResultTTL <= 0 {
		o.ResultTTL = defaultResultTTL
	}
	if o.ComputeBudget <= 0 {
		o.ComputeBudget = defaultComputeBudget
	}
	if o.NeighborCount <= 0 {
		o.NeighborCount = 20
	}
	if o.SimilarPerFavorite <= 0 {
		o.SimilarPerFavorite = 50
	}
	if o.PopularityBlend <= 0 {
		o.PopularityBlend = 0.7
	}
	if o.Weights == nil {
		o.Weights = scoring.DefaultWeights()
	}
}

// cachedResult holds one served result with its expiry. Expired entries stay
// until eviction so they can back the degraded-mode stale fallback.
type cachedResult struct {
	result    *models.RecommendationResult
	userID    string
	expiresAt time.Time
}

// Service is the recommendation front door. Cached results are shared across
// callers; uncached computations coalesce per (user, context, limit) key so
// concurrent identical requests run the scoring pipeline once.
type Service struct {
	interactions *gormdb.InteractionStore
	users        *gormdb.UserStore
	movies       *gormdb.MovieStore
	results      *gormdb.RecommendationStore
	engine       *similarity.Engine

	strategies []scoring.Strategy
	opts       Options
	metrics    *Metrics
	logger     zerolog.Logger

	group     singleflight.Group
	cache     map[string]*cachedResult
	cacheMu   sync.RWMutex
	computeFn func(ctx context.Context, userID, reqContext string, limit int) (*models.RecommendationResult, error)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates the recommendation service and starts its cache
// cleanup loop. Call Close on shutdown.
func NewService(
	interactions *gormdb.InteractionStore,
	users *gormdb.UserStore,
	movies *gormdb.MovieStore,
	results *gormdb.RecommendationStore,
	engine *similarity.Engine,
	opts Options,
	logger zerolog.Logger,
) *Service {
	opts.fillDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		interactions: interactions,
		users:        users,
		movies:       movies,
		results:      results,
		engine:       engine,
		opts:         opts,
		metrics:      &Metrics{},
		logger:       logger.With().Str("component", "recommend").Logger(),
		cache:        make(map[string]*cachedResult),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.strategies = []scoring.Strategy{
		scoring.NewCollaborative(engine, interactions, movies, opts.NeighborCount),
		scoring.NewContentBased(engine, users, movies, opts.SimilarPerFavorite),
		scoring.NewGenreBased(users, movies),
		scoring.NewPopularity(movies, opts.PopularityBlend),
	}
	s.computeFn = s.compute

	go s.cleanupLoop()
	return s
}

// Close stops background goroutines.
func (s *Service) Close() {
	s.cancel()
}

// Metrics returns the serving counters.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

func (s *Service) cleanupLoop() {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.evictLongExpired()
		}
	}
}

// evictLongExpired drops entries expired for more than one full TTL. Freshly
// expired entries survive as stale-fallback material.
func (s *Service) evictLongExpired() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	horizon := time.Now().Add(-s.opts.ResultTTL)
	for key, cached := range s.cache {
		if cached.expiresAt.Before(horizon) {
			delete(s.cache, key)
		}
	}
}

func cacheKey(userID, reqContext string, limit int) string {
	h := fnv.New64a()
	h.Write([]byte(userID))
	h.Write([]byte{'|'})
	h.Write([]byte(reqContext))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(limit)))
	return strconv.FormatUint(h.Sum64(), 36)
}

// GetPersonalizedRecommendations serves the default-context blended list.
func (s *Service) GetPersonalizedRecommendations(ctx context.Context, userID string, limit int) (*models.RecommendationResult, error) {
	return s.GetOrCompute(ctx, userID, DefaultContext, limit)
}

// GetOrCompute returns the cached result for (user, context, limit) or
// computes, persists, and caches a fresh one. Concurrent uncached calls on
// the same key share a single computation. If the computation exceeds its
// budget and an expired result exists, that result returns marked Stale.
func (s *Service) GetOrCompute(ctx context.Context, userID, reqContext string, limit int) (*models.RecommendationResult, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if reqContext == "" {
		reqContext = DefaultContext
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	atomic.AddInt64(&s.metrics.Requests, 1)

	key := cacheKey(userID, reqContext, limit)
	if cached, ok := s.fromCache(key, false); ok {
		atomic.AddInt64(&s.metrics.CacheHits, 1)
		return cached, nil
	}

	// The computation runs detached from the caller's context so every
	// coalesced waiter gets the shared outcome even if one caller leaves.
	result, err, _ := s.group.Do(key, func() (any, error) {
		atomic.AddInt64(&s.metrics.Computations, 1)
		budgetCtx, cancel := context.WithTimeout(s.ctx, s.opts.ComputeBudget)
		defer cancel()

		computed, err := s.computeFn(budgetCtx, userID, reqContext, limit)
		if err != nil {
			return nil, err
		}
		s.putCache(key, computed)
		return computed, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrComputationTimeout) {
			atomic.AddInt64(&s.metrics.Timeouts, 1)
			if stale, ok := s.staleFallback(ctx, key, userID, reqContext); ok {
				atomic.AddInt64(&s.metrics.StaleServed, 1)
				s.logger.Warn().
					Str("user_id", userID).
					Str("context", reqContext).
					Msg("Scoring budget exceeded, serving stale result")
				return stale, nil
			}
			return nil, models.ErrComputationTimeout
		}
		return nil, err
	}
	return result.(*models.RecommendationResult), nil
}

// fromCache returns a cached result. With allowExpired set, entries past
// their TTL qualify too.
func (s *Service) fromCache(key string, allowExpired bool) (*models.RecommendationResult, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	cached, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if !allowExpired && time.Now().After(cached.expiresAt) {
		return nil, false
	}
	return cached.result, true
}

func (s *Service) putCache(key string, result *models.RecommendationResult) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[key] = &cachedResult{
		result:    result,
		userID:    result.UserID,
		expiresAt: time.UnixMilli(result.ExpiresAtEpoch),
	}
}

// staleFallback finds an expired result to serve in degraded mode, first
// from memory, then from the persisted generation.
func (s *Service) staleFallback(ctx context.Context, key, userID, reqContext string) (*models.RecommendationResult, bool) {
	if cached, ok := s.fromCache(key, true); ok {
		stale := *cached
		stale.Stale = true
		return &stale, true
	}
	persisted, err := s.results.Latest(ctx, userID, reqContext)
	if err != nil {
		return nil, false
	}
	persisted.Stale = true
	return persisted, true
}

// compute runs every strategy, blends their rankings, and persists the
// superseding result.
func (s *Service) compute(ctx context.Context, userID, reqContext string, limit int) (*models.RecommendationResult, error) {
	exclude, err := s.exclusionSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]models.ScoredMovie, len(s.strategies))
	for _, strategy := range s.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Strategies score more candidates than the final limit so the
		// blend has overlap to work with.
		scored, err := strategy.Score(ctx, userID, exclude, limit*3)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// One failed strategy degrades the blend, it does not kill
			// the request.
			s.logger.Warn().Err(err).
				Str("strategy", strategy.Name()).
				Str("user_id", userID).
				Msg("Strategy failed, blending without it")
			continue
		}
		results[strategy.Name()] = scored
	}

	pops, err := scoring.BuildPopularityIndex(ctx, s.movies)
	if err != nil {
		return nil, err
	}
	entries := scoring.Blend(results, s.opts.Weights, pops, limit)

	now := time.Now()
	result := &models.RecommendationResult{
		ID:               uuid.NewString(),
		UserID:           userID,
		Context:          reqContext,
		Algorithm:        models.AlgorithmHybrid,
		Entries:          entries,
		GeneratedAtEpoch: now.UnixMilli(),
		ExpiresAtEpoch:   now.Add(s.opts.ResultTTL).UnixMilli(),
	}
	if err := s.results.Save(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// exclusionSet collects movies never recommended back to the user: current
// favorites plus everything already accepted or dismissed.
func (s *Service) exclusionSet(ctx context.Context, userID string) (map[string]bool, error) {
	exclude := make(map[string]bool)

	favorites, err := s.users.Favorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, movieID := range favorites {
		exclude[movieID] = true
	}

	interacted, err := s.interactions.MovieIDsByKinds(ctx, userID,
		models.KindFavorited, models.KindAccepted, models.KindDismissed)
	if err != nil {
		return nil, err
	}
	for _, movieID := range interacted {
		exclude[movieID] = true
	}
	return exclude, nil
}

// GetSimilarMovies is a direct snapshot lookup, no blending involved.
func (s *Service) GetSimilarMovies(movieID string, limit int) []models.ScoredMovie {
	if limit <= 0 {
		limit = defaultLimit
	}
	neighbors := s.engine.SimilarMovies(movieID, limit)
	scored := make([]models.ScoredMovie, len(neighbors))
	for i, n := range neighbors {
		scored[i] = models.ScoredMovie{MovieID: n.ID, Score: n.Score}
	}
	return scored
}

// RecordInteraction appends an interaction event. Favorite events also sync
// the user's favorite set and invalidate their recommendations.
func (s *Service) RecordInteraction(ctx context.Context, event *models.InteractionEvent) (string, error) {
	id, err := s.interactions.Record(ctx, event)
	if err != nil {
		return "", err
	}

	switch event.Kind {
	case models.KindFavorited:
		if err := s.users.AddFavorite(ctx, event.UserID, event.MovieID); err != nil {
			return "", fmt.Errorf("sync favorite: %w", err)
		}
		if err := s.Invalidate(ctx, event.UserID); err != nil {
			return "", err
		}
	case models.KindUnfavored:
		if err := s.users.RemoveFavorite(ctx, event.UserID, event.MovieID); err != nil {
			return "", fmt.Errorf("sync favorite: %w", err)
		}
		if err := s.Invalidate(ctx, event.UserID); err != nil {
			return "", err
		}
	}
	return id, nil
}

// RecordFeedback appends an accepted or dismissed event for a served
// recommendation and eagerly invalidates the user's results, so the next
// request reflects the feedback.
func (s *Service) RecordFeedback(ctx context.Context, userID, movieID string, accepted bool) error {
	kind := models.KindDismissed
	if accepted {
		kind = models.KindAccepted
	}
	_, err := s.interactions.Record(ctx, &models.InteractionEvent{
		UserID:         userID,
		MovieID:        movieID,
		Kind:           kind,
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return s.Invalidate(ctx, userID)
}

// Invalidate drops the user's cached and persisted results. The next request
// recomputes from current data.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	s.cacheMu.Lock()
	for key, cached := range s.cache {
		if cached.userID == userID {
			delete(s.cache, key)
		}
	}
	s.cacheMu.Unlock()

	return s.results.DeleteForUser(ctx, userID)
}

// GetRecommendationStats summarizes served generations and the feedback
// funnel for one user.
func (s *Service) GetRecommendationStats(ctx context.Context, userID string) (*models.RecommendationStats, error) {
	counts, err := s.results.CountsByAlgorithm(ctx, userID)
	if err != nil {
		return nil, err
	}
	accepted, dismissed, err := s.interactions.FeedbackCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.RecommendationStats{
		UserID:       userID,
		ResultCounts: counts,
		Accepted:     accepted,
		Dismissed:    dismissed,
	}
	if total := accepted + dismissed; total > 0 {
		stats.AcceptanceRate = float64(accepted) / float64(total)
	}
	return stats, nil
}
