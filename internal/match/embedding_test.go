package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)

	c := []float32{0, 1, 0}
	assert.InDelta(t, 0.0, CosineSimilarity(a, c), 1e-9)

	assert.Zero(t, CosineSimilarity(a, []float32{1, 0}), "length mismatch")
	assert.Zero(t, CosineSimilarity(a, []float32{0, 0, 0}), "zero vector")
}

func TestEmbeddingMatcherThreshold(t *testing.T) {
	m := NewEmbeddingMatcher(0) // default 0.65

	user := []float32{1, 0}
	similar := []float32{0.9, 0.4}   // cos ≈ 0.91
	dissimilar := []float32{0.3, 1}  // cos ≈ 0.29

	res, sim := m.Score(user, similar)
	assert.True(t, res.Matched)
	assert.Greater(t, sim, 0.65)
	assert.Equal(t, int(sim*100), res.Score)
	assert.Contains(t, res.Reasons[0], "semantic similarity")

	res, sim = m.Score(user, dissimilar)
	assert.False(t, res.Matched)
	assert.Less(t, sim, 0.65)
	assert.Zero(t, res.Score)
}

func TestEmbeddingMatcherBoundaryInclusive(t *testing.T) {
	m := NewEmbeddingMatcher(0.5)
	// cos(45°) ≈ 0.7071 ≥ 0.5
	res, _ := m.Score([]float32{1, 0}, []float32{1, 1})
	assert.True(t, res.Matched)
}
