// Package indexer turns documents into stored, embedded chunks.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragassist/chunker"
	"ragassist/config"
	"ragassist/loader"
	"ragassist/model"
	"ragassist/store"
	"ragassist/types"
)

const defaultConcurrency = 4

type Indexer struct {
	splitter    *chunker.Splitter
	embedder    model.Embedder
	chunks      store.ChunkStore
	registry    *loader.Registry
	concurrency int
	logger      *slog.Logger
}

type Option func(*Indexer)

// WithConcurrency bounds the number of embedding calls in flight for one
// document.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

func WithRegistry(r *loader.Registry) Option {
	return func(ix *Indexer) { ix.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

func New(splitter *chunker.Splitter, embedder model.Embedder, chunks store.ChunkStore, opts ...Option) *Indexer {
	ix := &Indexer{
		splitter:    splitter,
		embedder:    embedder,
		chunks:      chunks,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index splits, embeds and stores every document, labelling each chunk with
// sourceLabel. It returns the number of chunks written. The first embedding
// or storage failure aborts the call; chunks of earlier documents stay
// stored.
func (ix *Indexer) Index(ctx context.Context, docs []types.Document, sourceLabel string) (int, error) {
	var total int
	for i, doc := range docs {
		n, err := ix.indexDocument(ctx, doc, sourceLabel)
		total += n
		if err != nil {
			return total, fmt.Errorf("indexing document %d (%s): %w", i, doc.Title(), err)
		}
	}
	ix.logger.Info("indexed documents", "documents", len(docs), "chunks", total, "source", sourceLabel)
	return total, nil
}

// indexDocument obtains all embeddings of a document before writing any
// chunk, so an embedding failure leaves the store untouched.
func (ix *Indexer) indexDocument(ctx context.Context, doc types.Document, sourceLabel string) (int, error) {
	texts := ix.splitter.Split(doc.Text)
	if len(texts) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gctx, text)
			if err != nil {
				if !errors.Is(err, types.ErrEmbedding) {
					err = fmt.Errorf("%w: %w", types.ErrEmbedding, err)
				}
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	title := doc.Title()
	now := time.Now().UTC()
	batch := make([]types.Chunk, len(texts))
	for i, text := range texts {
		batch[i] = types.Chunk{
			ID:        uuid.New(),
			Content:   text,
			Source:    sourceLabel,
			Title:     title,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if bw, ok := ix.chunks.(store.BatchWriter); ok {
		if err := bw.PutBatch(ctx, batch); err != nil {
			return 0, err
		}
		return len(batch), nil
	}

	for i, c := range batch {
		if err := ix.chunks.Put(ctx, c); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}

// IndexLocator loads locator with the loader of kind and indexes the result.
// An empty kind is inferred from the file extension.
func (ix *Indexer) IndexLocator(ctx context.Context, locator string, kind loader.Kind) (int, error) {
	if ix.registry == nil {
		return 0, fmt.Errorf("%w: no loaders configured", types.ErrUnsupportedKind)
	}
	if kind == "" {
		k, ok := ix.registry.KindFor(locator)
		if !ok {
			return 0, fmt.Errorf("%w: no loader for %s", types.ErrUnsupportedKind, locator)
		}
		kind = k
	}

	docs, err := ix.registry.Load(ctx, locator, kind)
	if err != nil {
		return 0, err
	}
	return ix.Index(ctx, docs, kind.SourceLabel())
}

// IndexDirectory indexes every recognised file under root. When kinds are
// given only files of those kinds are indexed. Other files are skipped. The
// first failure aborts the walk.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string, kinds ...loader.Kind) (int, error) {
	if ix.registry == nil {
		return 0, fmt.Errorf("%w: no loaders configured", types.ErrUnsupportedKind)
	}
	entries, err := ix.registry.Walk(ctx, root)
	if err != nil {
		return 0, err
	}

	var total, files int
	for _, e := range entries {
		if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
			ix.logger.Debug("skipping file", "path", e.Path, "kind", e.Kind)
			continue
		}
		n, err := ix.IndexLocator(ctx, e.Path, e.Kind)
		total += n
		if err != nil {
			return total, err
		}
		files++
	}
	ix.logger.Info("indexed directory", "root", root, "files", files, "chunks", total)
	return total, nil
}

// FromConfig builds an indexer with the configured splitter, concurrency and
// the default loader registry.
func FromConfig(cfg *config.AppConfig, embedder model.Embedder, chunks store.ChunkStore, logger *slog.Logger) (*Indexer, error) {
	splitter, err := chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, nil)
	if err != nil {
		return nil, err
	}
	return New(splitter, embedder, chunks,
		WithConcurrency(cfg.Index.Concurrency),
		WithRegistry(loader.DefaultRegistry(cfg.Loader, logger)),
		WithLogger(logger),
	), nil
}
