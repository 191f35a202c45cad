package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"ragassist/types"
)

// MemoryStore keeps chunks in process memory and ranks them by brute force.
// The dimension is fixed by the first stored vector unless set up front.
type MemoryStore struct {
	mu     sync.RWMutex
	metric Metric
	dim    int
	seq    int64
	chunks []types.Chunk
}

func NewMemoryStore(metric Metric, dim int) *MemoryStore {
	if metric == "" {
		metric = Cosine
	}
	return &MemoryStore{metric: metric, dim: dim}
}

func (m *MemoryStore) Put(ctx context.Context, c types.Chunk) error {
	return m.PutBatch(ctx, []types.Chunk{c})
}

// PutBatch stores all chunks or none of them.
func (m *MemoryStore) PutBatch(ctx context.Context, chunks []types.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dim
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if err := checkChunk(c, dim); err != nil {
			return err
		}
	}
	m.dim = dim

	for _, c := range chunks {
		m.seq++
		c.Seq = m.seq
		c.ID, c.CreatedAt = chunkDefaults(c)
		c.Embedding = slices.Clone(c.Embedding)
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *MemoryStore) Nearest(ctx context.Context, vector []float32, k int) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.chunks) == 0 {
		return []types.Chunk{}, nil
	}
	if len(vector) != m.dim {
		return nil, dimensionError(m.dim, len(vector))
	}

	ranked := make([]types.Chunk, len(m.chunks))
	copy(ranked, m.chunks)
	for i := range ranked {
		ranked[i].Distance = Distance(m.metric, vector, ranked[i].Embedding)
	}
	// chunks are kept in Seq order, so a stable sort breaks ties by insertion
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	if k < len(ranked) {
		ranked = ranked[:k]
	}
	for i := range ranked {
		ranked[i].Embedding = slices.Clone(ranked[i].Embedding)
	}
	return ranked, nil
}

// All returns every chunk in insertion order.
func (m *MemoryStore) All(ctx context.Context) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.chunks)
	for i := range out {
		out[i].Embedding = slices.Clone(out[i].Embedding)
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryStore) Close() error { return nil }
