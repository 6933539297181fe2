package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine(nil, []float32{1}))
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(8)
	ctx := context.Background()

	a, err := m.EmbedQuery(ctx, "报名时间")
	require.NoError(t, err)
	vs, err := m.EmbedTexts(ctx, []string{"报名时间", "决赛"})
	require.NoError(t, err)

	assert.Len(t, a, 8)
	assert.Equal(t, a, vs[0])
	assert.NotEqual(t, vs[0], vs[1])
	assert.Equal(t, int64(2), m.Calls())
}

func TestNewOpenAIEmbedderValidates(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "model", "")
	assert.Error(t, err)

	e, err := NewOpenAIEmbedder("http://localhost:11434/v1", "nomic-embed-text", "")
	require.NoError(t, err)
	assert.NotNil(t, e)
}
