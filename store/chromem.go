package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"ragassist/config"
	"ragassist/types"
)

const (
	metaTitle   = "title"
	metaSource  = "source"
	metaSeq     = "seq"
	metaCreated = "created_at"
)

var errNoEmbeddingFunc = errors.New("chromem store only accepts precomputed embeddings")

// ChromemStore keeps chunks in an embedded chromem-go collection, optionally
// persisted to disk. Only cosine distance is supported; chromem normalizes
// every vector, so stored embeddings come back unit length.
type ChromemStore struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	dim        int
	seq        int64
	logger     *slog.Logger
}

func NewChromemStore(cfg config.ChromemConfig, dim int, logger *slog.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem db at %s: %w", types.ErrStorage, cfg.Path, err)
		}
	}

	name := cfg.Collection
	if name == "" {
		name = "chunks"
	}
	collection, err := db.GetOrCreateCollection(name, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %w", types.ErrStorage, name, err)
	}

	s := &ChromemStore{db: db, collection: collection, dim: dim, logger: logger}

	// continue the insertion sequence of a persisted collection
	if collection.Count() > 0 {
		if dim <= 0 {
			return nil, fmt.Errorf("%w: collection %s has data, set the embedding dimension to open it", ErrDimensionMismatch, name)
		}
		existing, err := s.All(context.Background())
		if err != nil {
			return nil, err
		}
		if n := len(existing); n > 0 {
			s.seq = existing[n-1].Seq
		}
	}

	logger.Info("chromem store opened", "collection", name, "path", cfg.Path, "count", collection.Count())
	return s, nil
}

func (s *ChromemStore) Put(ctx context.Context, c types.Chunk) error {
	return s.PutBatch(ctx, []types.Chunk{c})
}

// PutBatch validates every chunk before handing the batch to chromem, so a
// bad chunk leaves the collection unchanged.
func (s *ChromemStore) PutBatch(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	docs := make([]chromem.Document, len(chunks))
	seq := s.seq
	for i, c := range chunks {
		if err := checkChunk(c, dim); err != nil {
			return err
		}
		if isZero(c.Embedding) {
			return fmt.Errorf("%w: zero vector cannot be normalized", types.ErrStorage)
		}

		seq++
		id, created := chunkDefaults(c)
		docs[i] = chromem.Document{
			ID:      id.String(),
			Content: c.Content,
			Metadata: map[string]string{
				metaTitle:   c.Title,
				metaSource:  c.Source,
				metaSeq:     strconv.FormatInt(seq, 10),
				metaCreated: created.Format(time.RFC3339Nano),
			},
			Embedding: append([]float32(nil), c.Embedding...),
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: adding documents: %w", types.ErrStorage, err)
	}
	s.dim = dim
	s.seq = seq
	return nil
}

func (s *ChromemStore) Nearest(ctx context.Context, vector []float32, k int) ([]types.Chunk, error) {
	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()

	count := s.collection.Count()
	if k <= 0 || count == 0 {
		return []types.Chunk{}, nil
	}
	if len(vector) != dim {
		return nil, dimensionError(dim, len(vector))
	}
	if isZero(vector) {
		// chromem cannot normalize a zero query; it is equally far from everything
		all, err := s.All(ctx)
		if err != nil {
			return nil, err
		}
		for i := range all {
			all[i].Distance = 1
		}
		return all[:min(k, len(all))], nil
	}

	// chromem requires nResults <= document count
	results, err := s.collection.QueryEmbedding(ctx, vector, min(k, count), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", types.ErrStorage, err)
	}
	chunks := s.fromResults(results)
	sortByDistance(chunks)

	s.logger.Debug("searched chromem collection", "k", k, "results", len(chunks))
	return chunks, nil
}

// All returns every chunk ordered by Seq.
func (s *ChromemStore) All(ctx context.Context) ([]types.Chunk, error) {
	count := s.collection.Count()
	if count == 0 {
		return []types.Chunk{}, nil
	}

	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()
	if dim == 0 {
		return nil, fmt.Errorf("%w: unknown dimension for a non-empty collection", ErrDimensionMismatch)
	}

	// chromem has no listing call; a query over the whole collection returns it all
	probe := make([]float32, dim)
	for i := range probe {
		probe[i] = 1
	}
	results, err := s.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: listing: %w", types.ErrStorage, err)
	}
	chunks := s.fromResults(results)
	for i := range chunks {
		chunks[i].Distance = 0
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, nil
}

func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) fromResults(results []chromem.Result) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(results))
	for _, r := range results {
		c := types.Chunk{
			Content:   r.Content,
			Title:     r.Metadata[metaTitle],
			Source:    r.Metadata[metaSource],
			Embedding: r.Embedding,
			Distance:  1 - float64(r.Similarity),
		}
		if id, err := uuid.Parse(r.ID); err == nil {
			c.ID = id
		}
		c.Seq, _ = strconv.ParseInt(r.Metadata[metaSeq], 10, 64)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.Metadata[metaCreated])
		chunks = append(chunks, c)
	}
	return chunks
}

func sortByDistance(chunks []types.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Distance != chunks[j].Distance {
			return chunks[i].Distance < chunks[j].Distance
		}
		return chunks[i].Seq < chunks[j].Seq
	})
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
