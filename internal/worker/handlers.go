package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/reelrank/pkg/models"
)

const (
	// DefaultRecommendationLimit is the default list size for requests that
	// do not name one.
	DefaultRecommendationLimit = 20

	// MaxRequestBody bounds interaction and feedback payloads.
	MaxRequestBody = 1 << 16
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, models.ErrComputationTimeout):
		http.Error(w, "scoring budget exceeded and no prior result available", http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		http.Error(w, "catalog unavailable", http.StatusBadGateway)
	default:
		log.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// handleHealth returns 200 immediately, even during initialization.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}
	writeJSON(w, map[string]interface{}{
		"status":     status,
		"version":    s.version,
		"uptime_sec": int(time.Since(s.startTime).Seconds()),
	})
}

// handleVersion returns the worker version.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

// handleReady returns 200 only when fully initialized, 503 otherwise.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Error(w, "service initializing", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// handleGetRecommendations serves the blended list for a user. Results may
// carry the stale flag when the scoring budget was exceeded.
func (s *Service) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	reqContext := r.URL.Query().Get("context")
	limit := queryInt(r, "limit", DefaultRecommendationLimit)

	result, err := s.recommender.GetOrCompute(r.Context(), userID, reqContext, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// handleGetSimilarMovies serves the movie-movie neighbor list.
func (s *Service) handleGetSimilarMovies(w http.ResponseWriter, r *http.Request) {
	movieID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", DefaultRecommendationLimit)

	writeJSON(w, map[string]interface{}{
		"movie_id": movieID,
		"similar":  s.recommender.GetSimilarMovies(movieID, limit),
	})
}

// handleGetMovie serves one movie's stored features.
func (s *Service) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	s.initMu.RLock()
	movies := s.movies
	s.initMu.RUnlock()

	features, err := movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, features)
}

// interactionRequest is the POST /api/interactions payload.
type interactionRequest struct {
	UserID  string  `json:"user_id"`
	MovieID string  `json:"movie_id"`
	Kind    string  `json:"kind"`
	Value   float64 `json:"value,omitempty"`
}

func (s *Service) handlePostInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	id, err := s.recommender.RecordInteraction(r.Context(), &models.InteractionEvent{
		UserID:         req.UserID,
		MovieID:        req.MovieID,
		Kind:           models.InteractionKind(req.Kind),
		Value:          req.Value,
		CreatedAtEpoch: time.Now().UnixMilli(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"id": id})
}

// feedbackRequest is the POST /api/feedback payload.
type feedbackRequest struct {
	UserID   string `json:"user_id"`
	MovieID  string `json:"movie_id"`
	Accepted bool   `json:"accepted"`
}

func (s *Service) handlePostFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}

	if err := s.recommender.RecordFeedback(r.Context(), req.UserID, req.MovieID, req.Accepted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "recorded"})
}

// handleGetStats serves the per-user recommendation and feedback summary.
func (s *Service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	stats, err := s.recommender.GetRecommendationStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// handleGetServingStats serves the process-wide serving counters and the
// snapshot shape.
func (s *Service) handleGetServingStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Snapshot()
	writeJSON(w, map[string]interface{}{
		"serving":           s.recommender.Metrics().Stats(),
		"user_pairs":        snapshot.UserPairCount(),
		"movie_pairs":       snapshot.MoviePairCount(),
		"matrices_computed": snapshot.ComputedAt().UnixMilli(),
	})
}

// handleRunMaintenance triggers one full maintenance cycle.
func (s *Service) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.maintScheduler.RunAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "complete"})
}

// decodeBody parses a bounded JSON request body, writing the error response
// itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
