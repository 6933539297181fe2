package semantic

import (
	"context"
	"hash/fnv"
	"sync/atomic"
)

// MockEmbedder is a deterministic test double. Vectors are derived from an
// FNV hash of the text unless the function fields override them.
type MockEmbedder struct {
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQueryFunc func(ctx context.Context, text string) ([]float32, error)

	Dim   int
	calls atomic.Int64
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 16
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, m.Dim)
	}
	return out, nil
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedQueryFunc != nil {
		return m.EmbedQueryFunc(ctx, text)
	}
	return deterministicVector(text, m.Dim), nil
}

// Calls returns how many embedding calls were made.
func (m *MockEmbedder) Calls() int64 {
	return m.calls.Load()
}

func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000) / 1000.0
	}
	return vector
}
