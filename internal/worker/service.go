// Package worker provides the HTTP service for reelrank.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/reelrank/internal/catalog"
	"github.com/thebtf/reelrank/internal/config"
	gormdb "github.com/thebtf/reelrank/internal/db/gorm"
	"github.com/thebtf/reelrank/internal/recommend"
	"github.com/thebtf/reelrank/internal/scheduler"
	"github.com/thebtf/reelrank/internal/similarity"
	"github.com/thebtf/reelrank/pkg/models"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// Service is the worker service orchestrator. The HTTP server starts
// immediately with the health endpoint available; database and engine
// initialization happens in the background.
type Service struct {
	version string
	config  *config.Config

	store          *gormdb.Store
	movies         *gormdb.MovieStore
	engine         *similarity.Engine
	recommender    *recommend.Service
	catalogC       *catalog.Client
	maintScheduler *scheduler.Scheduler

	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a new worker service with deferred initialization.
func NewService(version string) (*Service, error) {
	cfg := config.Get()
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()
	return svc, nil
}

// initializeAsync performs heavy initialization in the background.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	if err := config.EnsureDataDir(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir: %w", err))
		return
	}

	store, err := gormdb.NewStore(gormdb.Config{
		DSN:      s.config.DatabaseDSN,
		MaxConns: s.config.MaxConns,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("init database: %w", err))
		return
	}

	interactions := gormdb.NewInteractionStore(store)
	users := gormdb.NewUserStore(store)
	movies := gormdb.NewMovieStore(store)
	results := gormdb.NewRecommendationStore(store)
	matrices := gormdb.NewSimilarityStore(store)

	engine := similarity.NewEngine(interactions, movies, matrices, s.config.MinInteractions, log.Logger)
	if err := engine.Load(s.ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore similarity matrices, starting empty")
	}

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:   s.config.CatalogBaseURL,
		APIKey:    s.config.CatalogAPIKey,
		Timeout:   time.Duration(s.config.CatalogTimeoutSecs) * time.Second,
		RedisAddr: s.config.CatalogRedisAddr,
		CacheTTL:  time.Duration(s.config.CatalogCacheTTLSecs) * time.Second,
	}, log.Logger)

	recommender := recommend.NewService(interactions, users, movies, results, engine, recommend.Options{
		ResultTTL:          time.Duration(s.config.RecommendationTTLHrs) * time.Hour,
		ComputeBudget:      time.Duration(s.config.ScoreBudgetSecs) * time.Second,
		NeighborCount:      s.config.NeighborCount,
		SimilarPerFavorite: s.config.SimilarPerFavorite,
		PopularityBlend:    s.config.PopularityBlend,
		Weights: map[string]float64{
			models.AlgorithmCollaborative: s.config.WeightCollaborative,
			models.AlgorithmContentBased:  s.config.WeightContentBased,
			models.AlgorithmGenreBased:    s.config.WeightGenreBased,
			models.AlgorithmPopularity:    s.config.WeightPopularity,
		},
	}, log.Logger)

	maintScheduler := scheduler.NewScheduler(engine, interactions, results, catalogClient, movies, scheduler.Config{
		SimilarityInterval: time.Duration(s.config.SimilarityIntervalHrs) * time.Hour,
		PruneInterval:      time.Duration(s.config.PruneIntervalHrs) * time.Hour,
		RefreshInterval:    time.Duration(s.config.RefreshIntervalMins) * time.Minute,
		Retention:          time.Duration(s.config.RetentionDays) * 24 * time.Hour,
		ResultTTL:          time.Duration(s.config.RecommendationTTLHrs) * time.Hour,
		RefreshPages:       3,
	}, log.Logger)

	s.initMu.Lock()
	s.store = store
	s.movies = movies
	s.engine = engine
	s.recommender = recommender
	s.catalogC = catalogClient
	s.maintScheduler = maintScheduler
	s.initMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		maintScheduler.Start(s.ctx)
	}()

	// A cold deployment has no matrices yet; build them once up front.
	if engine.Snapshot().ComputedAt().IsZero() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := maintScheduler.RunAll(s.ctx); err != nil {
				log.Warn().Err(err).Msg("Initial maintenance run failed")
			}
		}()
	}

	s.ready.Store(true)
	log.Info().Msg("Async initialization complete - service ready")
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health returns 200 immediately so probes pass during init.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)

	// Routes that require initialization to have finished.
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Get("/api/recommendations", s.handleGetRecommendations)
		r.Get("/api/movies/{id}/similar", s.handleGetSimilarMovies)
		r.Get("/api/movies/{id}", s.handleGetMovie)
		r.Post("/api/interactions", s.handlePostInteraction)
		r.Post("/api/feedback", s.handlePostFeedback)
		r.Get("/api/stats/recommendations", s.handleGetStats)
		r.Get("/api/stats/serving", s.handleGetServingStats)
		r.Post("/api/maintenance/run", s.handleRunMaintenance)
	})
}

// requireReady is middleware that returns 503 until initialization finishes.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "service initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server. Initialization continues in the background.
func (s *Service) Start() error {
	port := config.GetWorkerPort()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", port).
		Msg("Worker HTTP server started (initialization in progress)")
	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	s.initMu.RLock()
	maintScheduler := s.maintScheduler
	recommender := s.recommender
	catalogClient := s.catalogC
	store := s.store
	s.initMu.RUnlock()

	if maintScheduler != nil {
		maintScheduler.Stop()
	}
	if recommender != nil {
		recommender.Close()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	if catalogClient != nil {
		if err := catalogClient.Close(); err != nil {
			log.Error().Err(err).Msg("Catalog client close error")
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}

	s.wg.Wait()
	log.Info().Msg("Worker service shutdown complete")
	return nil
}
