// Package retriever finds the stored chunks closest to a query.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ragassist/model"
	"ragassist/store"
	"ragassist/types"
)

// DefaultTopK is used when a caller asks for k <= 0.
const DefaultTopK = 5

// Result is the context handed to the generation model together with the
// chunks it was built from, nearest first.
type Result struct {
	Context string
	Chunks  []types.Chunk
}

type Retriever struct {
	embedder model.Embedder
	chunks   store.ChunkStore
	topK     int
}

func New(embedder model.Embedder, chunks store.ChunkStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, chunks: chunks, topK: topK}
}

// Retrieve embeds query and returns the k nearest chunks joined by blank
// lines. An empty store gives an empty context.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	if k <= 0 {
		k = r.topK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, types.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", types.ErrEmbedding, err)
		}
		return Result{}, err
	}

	chunks, err := r.chunks.Nearest(ctx, vec, k)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return Result{Context: strings.Join(texts, "\n\n"), Chunks: chunks}, nil
}
