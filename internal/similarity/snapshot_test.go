package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotSymmetricLookup(t *testing.T) {
	s := NewSnapshot(
		[]Entry{{A: "u1", B: "u2", Score: 0.8}},
		[]Entry{{A: "m1", B: "m2", Score: 0.6}},
		time.Now(),
	)

	score, ok := s.UserScore("u1", "u2")
	assert.True(t, ok)
	assert.Equal(t, 0.8, score)

	// Reversed argument order hits the same pair.
	score, ok = s.UserScore("u2", "u1")
	assert.True(t, ok)
	assert.Equal(t, 0.8, score)

	score, ok = s.MovieScore("m2", "m1")
	assert.True(t, ok)
	assert.Equal(t, 0.6, score)

	_, ok = s.UserScore("u1", "u9")
	assert.False(t, ok)
}

func TestSnapshotDropsSelfPairs(t *testing.T) {
	s := NewSnapshot([]Entry{{A: "u1", B: "u1", Score: 1.0}}, nil, time.Now())

	assert.Equal(t, 0, s.UserPairCount())
	_, ok := s.UserScore("u1", "u1")
	assert.False(t, ok)
	assert.Empty(t, s.SimilarUsers("u1", 10))
}

func TestSnapshotNeighborOrdering(t *testing.T) {
	s := NewSnapshot([]Entry{
		{A: "u1", B: "u2", Score: 0.5},
		{A: "u1", B: "u3", Score: 0.9},
		{A: "u1", B: "u4", Score: 0.5},
	}, nil, time.Now())

	neighbors := s.SimilarUsers("u1", 10)
	assert.Len(t, neighbors, 3)
	assert.Equal(t, "u3", neighbors[0].ID)
	// Tied scores break by ID ascending.
	assert.Equal(t, "u2", neighbors[1].ID)
	assert.Equal(t, "u4", neighbors[2].ID)

	// The limit truncates, it never pads.
	assert.Len(t, s.SimilarUsers("u1", 2), 2)
	assert.Len(t, s.SimilarUsers("u1", 0), 3)
}

func TestEmptySnapshot(t *testing.T) {
	s := EmptySnapshot()

	assert.True(t, s.ComputedAt().IsZero())
	assert.Empty(t, s.SimilarUsers("u1", 5))
	assert.Empty(t, s.SimilarMovies("m1", 5))
	_, ok := s.UserScore("u1", "u2")
	assert.False(t, ok)
}
