package models

import "time"

// Algorithm labels for scoring strategies and blended output.
const (
	AlgorithmCollaborative = "collaborative"
	AlgorithmContentBased  = "content_based"
	AlgorithmGenreBased    = "genre_based"
	AlgorithmPopularity    = "popularity"
	AlgorithmHybrid        = "hybrid"
)

// RecommendationResult is an immutable ranked list produced for a user. A new
// generation for the same (user, context) key supersedes the old one; results
// are never mutated in place.
type RecommendationResult struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	Context          string        `json:"context"`
	Algorithm        string        `json:"algorithm"`
	Entries          []ScoredMovie `json:"entries"`
	GeneratedAtEpoch int64         `json:"generated_at_epoch"`
	ExpiresAtEpoch   int64         `json:"expires_at_epoch"`

	// Stale marks a degraded-mode response served past its expiry because a
	// fresh computation timed out. Never persisted.
	Stale bool `json:"stale,omitempty"`
}

// Expired reports whether the result has passed its freshness window.
func (r *RecommendationResult) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAtEpoch
}

// RecommendationStats summarizes served recommendations and feedback for a
// user.
type RecommendationStats struct {
	UserID         string           `json:"user_id"`
	ResultCounts   map[string]int64 `json:"result_counts"`
	Accepted       int64            `json:"accepted"`
	Dismissed      int64            `json:"dismissed"`
	AcceptanceRate float64          `json:"acceptance_rate"`
}
