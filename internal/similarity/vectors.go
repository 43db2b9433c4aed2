package similarity

import (
	"math"
	"sort"

	"github.com/thebtf/reelrank/pkg/models"
)

// Interaction weights express how strongly each event kind signals taste.
// Negative weights capture explicit rejection.
const (
	weightFavorited   = 1.0
	weightAccepted    = 0.9
	weightViewed      = 0.3
	weightUnfavorited = -0.8
	weightDismissed   = -0.4

	// A rating maps onto (0, ratedWeightMax] proportionally to its value,
	// so a 10/10 rating still ranks below an explicit favorite.
	ratedWeightMax = 0.85
)

// InteractionWeight maps one event to its taste-signal weight.
func InteractionWeight(kind models.InteractionKind, value float64) float64 {
	switch kind {
	case models.KindFavorited:
		return weightFavorited
	case models.KindAccepted:
		return weightAccepted
	case models.KindRated:
		return ratedWeightMax * value / models.RatingScaleMax
	case models.KindViewed:
		return weightViewed
	case models.KindUnfavored:
		return weightUnfavorited
	case models.KindDismissed:
		return weightDismissed
	default:
		return 0
	}
}

// UserVector is a sparse taste vector keyed by movie ID.
type UserVector map[string]float64

// AccumulateEvent folds one event into the vector. Repeated events on the
// same movie sum, clamped to [-1, 1] so no single movie dominates.
func (v UserVector) AccumulateEvent(event *models.InteractionEvent) {
	w := v[event.MovieID] + InteractionWeight(event.Kind, event.Value)
	if w > 1.0 {
		w = 1.0
	} else if w < -1.0 {
		w = -1.0
	}
	v[event.MovieID] = w
}

// CosineSparse computes cosine similarity between two sparse vectors.
// Returns 0 when either vector has zero magnitude.
func CosineSparse(a, b UserVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map for the dot product.
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for movieID, wa := range a {
		if wb, ok := b[movieID]; ok {
			dot += wa * wb
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (sparseNorm(a) * sparseNorm(b))
}

func sparseNorm(v UserVector) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// SharesMovie reports whether two users have interacted with at least one
// common movie. Pairs without overlap never get a stored similarity.
func SharesMovie(a, b UserVector) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for movieID := range a {
		if _, ok := b[movieID]; ok {
			return true
		}
	}
	return false
}

// GenreIndex assigns each known genre a stable slot in the dense feature
// vector.
type GenreIndex map[string]int

// BuildGenreIndex collects every genre across the catalog into sorted slots.
func BuildGenreIndex(movies []*models.MovieFeatures) GenreIndex {
	seen := make(map[string]bool)
	for _, m := range movies {
		for _, g := range m.Genres {
			seen[g] = true
		}
	}
	genres := make([]string, 0, len(seen))
	for g := range seen {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	index := make(GenreIndex, len(genres))
	for i, g := range genres {
		index[g] = i
	}
	return index
}

// MovieVector builds the dense content feature vector for one movie:
// multi-hot genres, popularity normalized against the catalog maximum,
// rating normalized to [0, 1], and a one-hot era bucket. All components are
// non-negative so cosine similarity lands in [0, 1].
func MovieVector(m *models.MovieFeatures, genres GenreIndex, maxPopularity float64) []float64 {
	vec := make([]float64, len(genres)+2+models.EraBucketCount)
	for _, g := range m.Genres {
		if slot, ok := genres[g]; ok {
			vec[slot] = 1.0
		}
	}
	if maxPopularity > 0 {
		vec[len(genres)] = m.Popularity / maxPopularity
	}
	vec[len(genres)+1] = m.Rating / models.RatingScaleMax
	vec[len(genres)+2+m.EraBucket()] = 1.0
	return vec
}

// CosineDense computes cosine similarity between two dense vectors of equal
// length. Returns 0 when either vector has zero magnitude.
func CosineDense(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SharesGenre reports whether two movies have at least one genre in common.
func SharesGenre(a, b *models.MovieFeatures) bool {
	for _, ga := range a.Genres {
		for _, gb := range b.Genres {
			if ga == gb {
				return true
			}
		}
	}
	return false
}
