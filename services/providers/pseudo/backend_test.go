package pseudo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/rag-retrieval/services/providers"
)

func TestBackend_EmbedDeterministic(t *testing.T) {
	b := New(32)
	ctx := context.Background()

	v1, err := b.Embed(ctx, Model, "Requisiti di Sistema")
	require.NoError(t, err)
	v2, err := b.Embed(ctx, "ignored-model", "  requisiti di sistema ")
	require.NoError(t, err)
	v3, err := b.Embed(ctx, Model, "something else")
	require.NoError(t, err)

	assert.Len(t, v1, 32)
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, v1, v3)
}

func TestBackend_EmbedUnitNorm(t *testing.T) {
	for _, dim := range []int{1, 7, 8, 768} {
		vec, err := New(dim).Embed(context.Background(), Model, "norm check")
		require.NoError(t, err)
		require.Len(t, vec, dim)

		var sum float64
		for _, v := range vec {
			assert.False(t, math.IsNaN(float64(v)))
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestBackend_DefaultDimension(t *testing.T) {
	assert.Equal(t, 768, New(0).Dimension())
	assert.Equal(t, providers.BackendPseudo, New(4).Kind())
}

func TestBackend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(8).Embed(ctx, Model, "x")
	assert.Equal(t, providers.KindUnavailable, providers.ErrorKindOf(err))
}

func TestBackend_CompleteUnavailable(t *testing.T) {
	_, err := New(8).Complete(context.Background(), &providers.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, providers.KindUnavailable, providers.ErrorKindOf(err))
}
