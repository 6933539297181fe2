// Package semantic provides the embedding-similarity strategy that can be
// blended with lexical scores.
package semantic

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder produces vectors for passages and questions.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embedding endpoint.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewOpenAIEmbedder creates an embedder for host and model. An empty token
// is sent as "none" for local servers that do not authenticate.
func NewOpenAIEmbedder(host, model, token string) (*OpenAIEmbedder, error) {
	if host == "" || model == "" {
		return nil, errors.New("embedding host and model are required")
	}
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("embedding passages", "count", len(texts))
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to embed passages", "count", len(texts), "error", err)
		return nil, err
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to embed query", "error", err)
		return nil, err
	}
	return vector, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
