package match

import (
	"fmt"
	"math"
)

// DefaultMinSimilarity is the cosine similarity floor for the
// embedding matcher.
const DefaultMinSimilarity = 0.65

// EmbeddingMatcher scores (user, job) pairs by cosine similarity of
// their vectors.
type EmbeddingMatcher struct {
	minSimilarity float64
}

// NewEmbeddingMatcher creates an embedding matcher; a non-positive
// threshold means the default.
func NewEmbeddingMatcher(minSimilarity float64) *EmbeddingMatcher {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &EmbeddingMatcher{minSimilarity: minSimilarity}
}

// Score compares a user vector against a job vector. The surfaced
// match score is 100 x cosine similarity.
func (m *EmbeddingMatcher) Score(userVec, jobVec []float32) (Result, float64) {
	sim := CosineSimilarity(userVec, jobVec)
	if sim < m.minSimilarity {
		return Result{}, sim
	}
	score := int(sim * 100)
	return Result{
		Score:   score,
		Reasons: []string{fmt.Sprintf("semantic similarity: %d%%", score)},
		Matched: true,
	}, sim
}

// MinSimilarity returns the similarity floor.
func (m *EmbeddingMatcher) MinSimilarity() float64 { return m.minSimilarity }

// CosineSimilarity computes the cosine of the angle between two
// vectors. Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
