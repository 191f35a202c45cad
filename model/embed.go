// Package model holds the clients for the external models the service talks
// to: the embedding model, the generation model and the web search API.
package model

import (
	"context"
	"log/slog"
	"math"
)

// Embedder maps text to a vector. Every vector returned by one Embedder has
// the same length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WebSearcher returns a single text snippet for a query. "No result" is
// reported as NotFoundSnippet, not as an error.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// normalize64 scales vec to unit length in place. A zero vector is returned
// unchanged.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
