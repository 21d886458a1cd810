// Package embedding turns user preferences and canonical jobs into
// vectors for semantic matching, with a content-hash cache in front
// of the embedding API.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/aremu/jobalert/internal/openai"
)

const (
	// Dimensions of text-embedding-3-small vectors.
	Dimensions = 1536

	defaultCacheSize = 4096
)

// API is the slice of the OpenAI client the service uses.
type API interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
	Ping(ctx context.Context) error
}

// Service provides cached embedding generation.
type Service struct {
	api     API
	model   string
	cache   *lruCache
	timeout time.Duration
}

// NewService creates an embedding service backed by the given API.
func NewService(api API, model string, timeout time.Duration) *Service {
	return &Service{
		api:     api,
		model:   model,
		cache:   newLRUCache(defaultCacheSize),
		timeout: timeout,
	}
}

// Model names the embedding model this service writes vectors with.
func (s *Service) Model() string { return s.model }

// Ping reports whether the backing embedding API is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.api.Ping(ctx) }

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors for a batch of texts, serving cached
// entries locally and fetching only cold inputs in one API call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var coldTexts []string
	var coldIdx []int
	for i, t := range texts {
		if vec, ok := s.cache.get(t); ok {
			out[i] = vec
			continue
		}
		coldTexts = append(coldTexts, t)
		coldIdx = append(coldIdx, i)
	}

	if len(coldTexts) == 0 {
		return out, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vecs, err := s.api.Embed(callCtx, s.model, coldTexts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	for i, vec := range vecs {
		if len(vec) != Dimensions {
			return nil, fmt.Errorf("embed batch: got %d dimensions, want %d", len(vec), Dimensions)
		}
		s.cache.put(coldTexts[i], vec)
		out[coldIdx[i]] = vec
	}
	return out, nil
}

var _ API = (*openai.Client)(nil)
