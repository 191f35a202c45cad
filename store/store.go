package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"ragassist/config"
	"ragassist/types"
)

var (
	// ErrDimensionMismatch means a vector does not match the store's fixed
	// dimension. It is a configuration error: the store has to be re-indexed
	// with a single embedding model.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyChunk is returned when a chunk without text is stored.
	ErrEmptyChunk = errors.New("chunk content is empty")
)

// ChunkStore holds chunks and answers nearest-neighbour queries.
//
// Nearest returns at most k chunks ordered by ascending distance to the
// query vector. Equal distances are ordered by insertion (Seq). An empty
// store yields an empty result.
type ChunkStore interface {
	Put(ctx context.Context, chunk types.Chunk) error
	Nearest(ctx context.Context, vector []float32, k int) ([]types.Chunk, error)
	All(ctx context.Context) ([]types.Chunk, error)
	Close() error
}

// BatchWriter is implemented by stores that can write several chunks as one
// all-or-nothing operation.
type BatchWriter interface {
	PutBatch(ctx context.Context, chunks []types.Chunk) error
}

type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

// ParseMetric accepts "cosine" and "euclidean", case-insensitive.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(s)); m {
	case Cosine, Euclidean:
		return m, nil
	case "":
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b. Cosine distance is
// 1 - cosine similarity; a zero vector has similarity 0 with anything.
func Distance(m Metric, a, b []float32) float64 {
	switch m {
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}

func checkChunk(c types.Chunk, dim int) error {
	if c.Content == "" {
		return ErrEmptyChunk
	}
	if dim > 0 && len(c.Embedding) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(c.Embedding))
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}

func dimensionError(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}

// New opens the store selected by cfg.Type.
func New(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ChunkStore, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(metric, cfg.Dimension), nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.Postgres.ConnString(), metric, cfg.Dimension, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "chromem":
		if metric != Cosine {
			return nil, fmt.Errorf("chromem store supports cosine distance only, got %s", metric)
		}
		return NewChromemStore(cfg.Chromem, cfg.Dimension, logger)
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Type)
	}
}
