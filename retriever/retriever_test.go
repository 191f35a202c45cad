package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragassist/model"
	"ragassist/store"
	"ragassist/types"
)

// axisEmbedder maps known words onto unit axes.
func axisEmbedder() model.EmbedderFunc {
	axes := map[string][]float32{
		"cats":   {1, 0, 0},
		"dogs":   {0, 1, 0},
		"birds":  {0, 0, 1},
		"kitten": {0.9, 0.1, 0},
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := axes[text]; ok {
			return v, nil
		}
		return []float32{1, 1, 1}, nil
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	r := New(axisEmbedder(), store.NewMemoryStore(store.Cosine, 0), 0)

	res, err := r.Retrieve(context.Background(), "cats", 3)
	require.NoError(t, err)
	assert.Equal(t, "", res.Context)
	assert.Empty(t, res.Chunks)
}

func TestRetrieve_RanksAndJoins(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(store.Cosine, 0)
	emb := axisEmbedder()
	for _, word := range []string{"dogs", "cats", "birds"} {
		vec, _ := emb(ctx, word)
		require.NoError(t, mem.Put(ctx, types.Chunk{Content: "about " + word, Source: types.SourceText, Embedding: vec}))
	}

	r := New(emb, mem, 0)

	res, err := r.Retrieve(ctx, "kitten", 2)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "about cats\n\nabout dogs", res.Context)

	res, err = r.Retrieve(ctx, "kitten", 0)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 3)
	assert.Equal(t, "about cats\n\nabout dogs\n\nabout birds", res.Context)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	failing := model.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("timeout")
	})
	r := New(failing, store.NewMemoryStore(store.Cosine, 0), 0)

	_, err := r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}
