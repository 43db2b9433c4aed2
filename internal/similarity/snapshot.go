// Package similarity precomputes the user-user and movie-movie similarity
// matrices that drive collaborative and content based scoring.
package similarity

import (
	"sort"
	"time"
)

// Neighbor is one entry in a ranked neighbor list.
type Neighbor struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Entry is a single symmetric similarity pair. Callers may pass the IDs in
// either order.
type Entry struct {
	A     string
	B     string
	Score float64
}

// pairKey is the canonical (ordered) form of an unordered ID pair.
type pairKey struct {
	a string
	b string
}

func newPairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Snapshot is an immutable view of both similarity matrices. A snapshot is
// built once and never mutated afterwards, so it can be read from any
// goroutine without locking.
type Snapshot struct {
	userPairs  map[pairKey]float64
	moviePairs map[pairKey]float64

	userNeighbors  map[string][]Neighbor
	movieNeighbors map[string][]Neighbor

	computedAt time.Time
}

// EmptySnapshot returns a snapshot with no entries. Lookups against it miss
// and neighbor lists are empty, which callers treat as the cold-start case.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil, time.Time{})
}

// NewSnapshot builds an immutable snapshot from the given pair entries.
// Self-pairs are dropped and duplicate pairs keep the last score seen.
func NewSnapshot(userEntries, movieEntries []Entry, computedAt time.Time) *Snapshot {
	s := &Snapshot{
		userPairs:      make(map[pairKey]float64, len(userEntries)),
		moviePairs:     make(map[pairKey]float64, len(movieEntries)),
		userNeighbors:  make(map[string][]Neighbor),
		movieNeighbors: make(map[string][]Neighbor),
		computedAt:     computedAt,
	}

	for _, e := range userEntries {
		if e.A == e.B {
			continue
		}
		s.userPairs[newPairKey(e.A, e.B)] = e.Score
		s.userNeighbors[e.A] = append(s.userNeighbors[e.A], Neighbor{ID: e.B, Score: e.Score})
		s.userNeighbors[e.B] = append(s.userNeighbors[e.B], Neighbor{ID: e.A, Score: e.Score})
	}
	for _, e := range movieEntries {
		if e.A == e.B {
			continue
		}
		s.moviePairs[newPairKey(e.A, e.B)] = e.Score
		s.movieNeighbors[e.A] = append(s.movieNeighbors[e.A], Neighbor{ID: e.B, Score: e.Score})
		s.movieNeighbors[e.B] = append(s.movieNeighbors[e.B], Neighbor{ID: e.A, Score: e.Score})
	}

	for _, neighbors := range s.userNeighbors {
		sortNeighbors(neighbors)
	}
	for _, neighbors := range s.movieNeighbors {
		sortNeighbors(neighbors)
	}
	return s
}

// sortNeighbors orders by score descending, then ID ascending so equal
// scores rank deterministically.
func sortNeighbors(neighbors []Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].ID < neighbors[j].ID
	})
}

// UserScore returns the similarity between two users. The lookup is
// symmetric. Self-pairs and unknown pairs report a miss.
func (s *Snapshot) UserScore(a, b string) (float64, bool) {
	if a == b {
		return 0, false
	}
	score, ok := s.userPairs[newPairKey(a, b)]
	return score, ok
}

// MovieScore returns the similarity between two movies. The lookup is
// symmetric. Self-pairs and unknown pairs report a miss.
func (s *Snapshot) MovieScore(a, b string) (float64, bool) {
	if a == b {
		return 0, false
	}
	score, ok := s.moviePairs[newPairKey(a, b)]
	return score, ok
}

// SimilarUsers returns up to limit neighbors of a user, best first.
// The returned slice is a copy and safe to retain.
func (s *Snapshot) SimilarUsers(userID string, limit int) []Neighbor {
	return topNeighbors(s.userNeighbors[userID], limit)
}

// SimilarMovies returns up to limit neighbors of a movie, best first.
// The returned slice is a copy and safe to retain.
func (s *Snapshot) SimilarMovies(movieID string, limit int) []Neighbor {
	return topNeighbors(s.movieNeighbors[movieID], limit)
}

func topNeighbors(neighbors []Neighbor, limit int) []Neighbor {
	if limit <= 0 || limit > len(neighbors) {
		limit = len(neighbors)
	}
	out := make([]Neighbor, limit)
	copy(out, neighbors[:limit])
	return out
}

// ComputedAt reports when the snapshot's matrices were built. The zero time
// marks a snapshot that has never been computed.
func (s *Snapshot) ComputedAt() time.Time {
	return s.computedAt
}

// UserPairCount reports the number of stored user-user pairs.
func (s *Snapshot) UserPairCount() int {
	return len(s.userPairs)
}

// MoviePairCount reports the number of stored movie-movie pairs.
func (s *Snapshot) MoviePairCount() int {
	return len(s.moviePairs)
}
