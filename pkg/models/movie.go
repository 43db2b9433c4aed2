package models

// MovieFeatures is the content feature vector for a movie, sourced from the
// external catalog. Immutable from the core's perspective except for the
// periodic refresh of popularity and rating.
type MovieFeatures struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	ReleaseYear int      `json:"release_year"`
	Runtime     int      `json:"runtime"`
	Language    string   `json:"language"`
	Popularity  float64  `json:"popularity"`
	Rating      float64  `json:"rating"`
}

// HasGenres reports whether the movie carries usable genre data. Movies
// without genres are excluded from content similarity for a run but remain
// eligible for popularity-based scoring.
func (m *MovieFeatures) HasGenres() bool {
	return len(m.Genres) > 0
}

// EraBucket assigns the movie's release year to a coarse era bucket used as a
// one-hot component of the content feature vector.
func (m *MovieFeatures) EraBucket() int {
	switch {
	case m.ReleaseYear <= 0:
		return 0
	case m.ReleaseYear < 1980:
		return 1
	case m.ReleaseYear < 1990:
		return 2
	case m.ReleaseYear < 2000:
		return 3
	case m.ReleaseYear < 2010:
		return 4
	case m.ReleaseYear < 2020:
		return 5
	default:
		return 6
	}
}

// EraBucketCount is the number of distinct era buckets (including the
// unknown-year bucket 0).
const EraBucketCount = 7

// ScoredMovie is a single ranked candidate produced by a scoring strategy or
// the hybrid blender. Scores are normalized to [0,1].
type ScoredMovie struct {
	MovieID string  `json:"movie_id"`
	Score   float64 `json:"score"`
}
