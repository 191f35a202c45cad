package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragassist/types"
)

// PostgresStore keeps chunks in a pgvector column. Ranking happens in the
// database; ties are broken by the bigserial seq column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	metric Metric
	dim    int
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, metric Metric, dim int, logger *slog.Logger) (*PostgresStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: postgres store needs a fixed dimension", ErrDimensionMismatch)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		metric: metric,
		dim:    dim,
		logger: logger,
	}, nil
}

// operator returns the pgvector distance operator and its index opclass.
func (p *PostgresStore) operator() string {
	if p.metric == Euclidean {
		return "<->"
	}
	return "<=>"
}

// Init creates the extension and the chunks table. Nearest is an exact scan
// ordered by (distance, seq), which an approximate vector index cannot
// serve, so none is created and one left by an older schema is dropped.
func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	DROP INDEX IF EXISTS idx_chunks_embedding;
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	`, p.dim)

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: creating tables: %w", types.ErrStorage, err)
	}
	return nil
}

const insertChunk = `
	INSERT INTO chunks (id, title, source, content, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

func (p *PostgresStore) Put(ctx context.Context, c types.Chunk) error {
	if err := checkChunk(c, p.dim); err != nil {
		return err
	}
	id, created := chunkDefaults(c)
	_, err := p.pool.Exec(ctx, insertChunk,
		id, c.Title, c.Source, c.Content, pgvector.NewVector(c.Embedding), created,
	)
	if err != nil {
		return fmt.Errorf("%w: saving chunk: %w", types.ErrStorage, err)
	}
	return nil
}

// PutBatch writes the chunks in one transaction.
func (p *PostgresStore) PutBatch(ctx context.Context, chunks []types.Chunk) error {
	for _, c := range chunks {
		if err := checkChunk(c, p.dim); err != nil {
			return err
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", types.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		id, created := chunkDefaults(c)
		batch.Queue(insertChunk, id, c.Title, c.Source, c.Content, pgvector.NewVector(c.Embedding), created)
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%w: saving chunk: %w", types.ErrStorage, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", types.ErrStorage, err)
	}
	return nil
}

func (p *PostgresStore) Nearest(ctx context.Context, vector []float32, k int) ([]types.Chunk, error) {
	if k <= 0 {
		return []types.Chunk{}, nil
	}
	if len(vector) != p.dim {
		return nil, dimensionError(p.dim, len(vector))
	}

	op := p.operator()
	query := fmt.Sprintf(`
		SELECT seq, id, title, source, content, embedding, created_at,
		       embedding %s $1 AS distance
		FROM chunks
		ORDER BY distance, seq
		LIMIT $2
	`, op)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", types.ErrStorage, err)
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var (
			chunk types.Chunk
			emb   pgvector.Vector
		)
		if err := rows.Scan(
			&chunk.Seq,
			&chunk.ID,
			&chunk.Title,
			&chunk.Source,
			&chunk.Content,
			&emb,
			&chunk.CreatedAt,
			&chunk.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", types.ErrStorage, err)
		}
		chunk.Embedding = emb.Slice()
		p.logger.Debug("nearest chunk", "seq", chunk.Seq, "source", chunk.Source, "distance", chunk.Distance)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	return chunks, nil
}

func (p *PostgresStore) All(ctx context.Context) ([]types.Chunk, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT seq, id, title, source, content, embedding, created_at FROM chunks ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var (
			chunk types.Chunk
			emb   pgvector.Vector
		)
		if err := rows.Scan(&chunk.Seq, &chunk.ID, &chunk.Title, &chunk.Source,
			&chunk.Content, &emb, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", types.ErrStorage, err)
		}
		chunk.Embedding = emb.Slice()
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	return chunks, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}

func chunkDefaults(c types.Chunk) (uuid.UUID, time.Time) {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return id, created
}
