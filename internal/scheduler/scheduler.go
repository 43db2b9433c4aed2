// Package scheduler runs the periodic maintenance jobs: similarity
// recomputation, event retention pruning, and catalog popularity refresh.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/reelrank/pkg/models"
)

// SimilarityRecomputer rebuilds the similarity matrices.
type SimilarityRecomputer interface {
	Recompute(ctx context.Context) error
}

// EventPruner deletes interaction events past the retention horizon.
type EventPruner interface {
	PruneOlderThan(ctx context.Context, horizon time.Duration) (int64, error)
}

// ResultPruner trims long-expired recommendation generations.
type ResultPruner interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CatalogFetcher pulls fresh popularity data from the external catalog.
type CatalogFetcher interface {
	FetchPopular(ctx context.Context, page int) ([]*models.MovieFeatures, error)
	FetchTrending(ctx context.Context, page int) ([]*models.MovieFeatures, error)
}

// MovieRefresher is the subset of movie store methods the refresh job needs.
type MovieRefresher interface {
	Upsert(ctx context.Context, features *models.MovieFeatures) error
	UpdatePopularity(ctx context.Context, movieID string, popularity, rating float64) error
}

// Config contains the scheduling intervals and retention settings.
type Config struct {
	// SimilarityInterval is the period between matrix recomputations (default 24h).
	SimilarityInterval time.Duration `json:"similarity_interval"`
	// PruneInterval is the period between retention pruning runs (default 24h).
	PruneInterval time.Duration `json:"prune_interval"`
	// RefreshInterval is the period between popularity refreshes (default 1h).
	RefreshInterval time.Duration `json:"refresh_interval"`
	// Retention is how long interaction events are kept (default 180 days).
	Retention time.Duration `json:"retention"`
	// ResultTTL drives how long expired recommendation rows survive as
	// stale-fallback material before the prune job removes them.
	ResultTTL time.Duration `json:"result_ttl"`
	// RefreshPages is how many catalog pages the refresh job walks.
	RefreshPages int `json:"refresh_pages"`
}

// DefaultConfig returns the standard job cadence.
func DefaultConfig() Config {
	return Config{
		SimilarityInterval: 24 * time.Hour,
		PruneInterval:      24 * time.Hour,
		RefreshInterval:    time.Hour,
		Retention:          180 * 24 * time.Hour,
		ResultTTL:          24 * time.Hour,
		RefreshPages:       3,
	}
}

// Scheduler runs the maintenance jobs on their tickers.
type Scheduler struct {
	engine       SimilarityRecomputer
	interactions EventPruner
	results      ResultPruner
	catalog      CatalogFetcher
	movies       MovieRefresher
	config       Config
	logger       zerolog.Logger
	stopCh       chan struct{}
}

// NewScheduler creates a scheduler. A nil catalog disables the refresh job.
func NewScheduler(
	engine SimilarityRecomputer,
	interactions EventPruner,
	results ResultPruner,
	catalog CatalogFetcher,
	movies MovieRefresher,
	config Config,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		engine:       engine,
		interactions: interactions,
		results:      results,
		catalog:      catalog,
		movies:       movies,
		config:       config,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the scheduler's loop. Call from a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("similarity_interval", s.config.SimilarityInterval).
		Dur("prune_interval", s.config.PruneInterval).
		Dur("refresh_interval", s.config.RefreshInterval).
		Msg("Maintenance scheduler started")

	similarityTicker := time.NewTicker(s.config.SimilarityInterval)
	pruneTicker := time.NewTicker(s.config.PruneInterval)
	defer similarityTicker.Stop()
	defer pruneTicker.Stop()

	var refreshCh <-chan time.Time
	if s.catalog != nil {
		refreshTicker := time.NewTicker(s.config.RefreshInterval)
		defer refreshTicker.Stop()
		refreshCh = refreshTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Maintenance scheduler stopping (context done)")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Maintenance scheduler stopping (stop signal)")
			return
		case <-similarityTicker.C:
			if err := s.RunSimilarity(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Similarity recomputation failed")
			}
		case <-pruneTicker.C:
			if err := s.RunPrune(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Retention pruning failed")
			}
		case <-refreshCh:
			if err := s.RunRefresh(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Popularity refresh failed")
			}
		}
	}
}

// Stop signals the scheduler to shut down gracefully.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		// Already stopped
	default:
		close(s.stopCh)
	}
}

// RunSimilarity rebuilds both similarity matrices.
func (s *Scheduler) RunSimilarity(ctx context.Context) error {
	start := time.Now()
	if err := s.engine.Recompute(ctx); err != nil {
		return err
	}
	s.logger.Info().Dur("took", time.Since(start)).Msg("Similarity recomputation complete")
	return nil
}

// RunPrune deletes interaction events past the retention horizon and trims
// recommendation rows expired for more than one TTL.
func (s *Scheduler) RunPrune(ctx context.Context) error {
	pruned, err := s.interactions.PruneOlderThan(ctx, s.config.Retention)
	if err != nil {
		return err
	}

	var trimmed int64
	if s.results != nil {
		trimmed, err = s.results.DeleteExpiredBefore(ctx, time.Now().Add(-s.config.ResultTTL))
		if err != nil {
			return err
		}
	}

	s.logger.Info().
		Int64("events_pruned", pruned).
		Int64("results_trimmed", trimmed).
		Msg("Retention pruning complete")
	return nil
}

// RunRefresh walks the catalog's popular and trending pages and updates the
// stored popularity and rating fields. New movies enter the local catalog;
// an unreachable upstream is logged and skipped, not fatal.
func (s *Scheduler) RunRefresh(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}

	var updated, added int
	for page := 1; page <= s.config.RefreshPages; page++ {
		popular, err := s.catalog.FetchPopular(ctx, page)
		if err != nil {
			if errors.Is(err, models.ErrUpstreamUnavailable) {
				s.logger.Warn().Err(err).Msg("Catalog unavailable, skipping refresh run")
				return nil
			}
			return err
		}
		u, a, err := s.applyRefresh(ctx, popular)
		if err != nil {
			return err
		}
		updated, added = updated+u, added+a
	}

	trending, err := s.catalog.FetchTrending(ctx, 1)
	if err == nil {
		u, a, err := s.applyRefresh(ctx, trending)
		if err != nil {
			return err
		}
		updated, added = updated+u, added+a
	} else if !errors.Is(err, models.ErrUpstreamUnavailable) {
		return err
	}

	s.logger.Info().
		Int("updated", updated).
		Int("added", added).
		Msg("Popularity refresh complete")
	return nil
}

func (s *Scheduler) applyRefresh(ctx context.Context, entries []*models.MovieFeatures) (updated, added int, err error) {
	for _, entry := range entries {
		err := s.movies.UpdatePopularity(ctx, entry.ID, entry.Popularity, entry.Rating)
		if errors.Is(err, models.ErrNotFound) {
			if err := s.movies.Upsert(ctx, entry); err != nil {
				return updated, added, err
			}
			added++
			continue
		}
		if err != nil {
			return updated, added, err
		}
		updated++
	}
	return updated, added, nil
}

// RunAll triggers every job once, back to back. Used by the manual
// maintenance endpoint and at startup when the matrices are empty.
func (s *Scheduler) RunAll(ctx context.Context) error {
	if err := s.RunRefresh(ctx); err != nil {
		return err
	}
	if err := s.RunSimilarity(ctx); err != nil {
		return err
	}
	return s.RunPrune(ctx)
}
