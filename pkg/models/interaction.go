// Package models contains domain models for reelrank.
package models

import (
	"time"
)

// InteractionKind classifies a user-movie interaction event.
type InteractionKind string

const (
	KindViewed    InteractionKind = "viewed"
	KindFavorited InteractionKind = "favorited"
	KindUnfavored InteractionKind = "unfavorited"
	KindRated     InteractionKind = "rated"
	// KindDismissed records a recommendation the user rejected.
	KindDismissed InteractionKind = "dismissed_recommendation"
	// KindAccepted records a recommendation the user acted on.
	KindAccepted InteractionKind = "accepted_recommendation"
)

// AllInteractionKinds lists every recognized interaction kind.
var AllInteractionKinds = []InteractionKind{
	KindViewed,
	KindFavorited,
	KindUnfavored,
	KindRated,
	KindDismissed,
	KindAccepted,
}

// Valid reports whether the kind is one of the recognized interaction kinds.
func (k InteractionKind) Valid() bool {
	for _, known := range AllInteractionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RatingScaleMax is the upper bound of the rating scale for rated events.
const RatingScaleMax = 10.0

// InteractionEvent is a single append-only user-movie interaction.
// Events are never mutated; retention pruning is the only deletion path.
type InteractionEvent struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	MovieID        string          `json:"movie_id"`
	Kind           InteractionKind `json:"kind"`
	Value          float64         `json:"value,omitempty"`
	CreatedAtEpoch int64           `json:"created_at_epoch"`
}

// Timestamp returns the event time.
func (e *InteractionEvent) Timestamp() time.Time {
	return time.UnixMilli(e.CreatedAtEpoch)
}

// Validate checks the event for structural problems. A nil return means the
// event is safe to persist.
func (e *InteractionEvent) Validate() error {
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if e.MovieID == "" {
		return &ValidationError{Field: "movie_id", Reason: "must not be empty"}
	}
	if !e.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "unrecognized interaction kind: " + string(e.Kind)}
	}
	if e.Kind == KindRated && (e.Value < 0 || e.Value > RatingScaleMax) {
		return &ValidationError{Field: "value", Reason: "rating out of range [0,10]"}
	}
	return nil
}
