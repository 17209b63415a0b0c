// Package pgx stores chunk embeddings in Postgres and answers top-k queries
// with pgvector's cosine distance operator.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	deleteCollectionSQL = `DELETE FROM chunks WHERE collection = $1`
	countCollectionSQL  = `SELECT count(*) FROM chunks WHERE collection = $1`
	upsertChunkSQL      = `
INSERT INTO chunks (collection, idx, chunk_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (collection, idx) DO UPDATE
SET chunk_id = EXCLUDED.chunk_id,
    content = EXCLUDED.content,
    metadata = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding`
	topKSQL = `
SELECT idx, 1 - (embedding <=> $2) AS score
FROM chunks
WHERE collection = $1
ORDER BY embedding <=> $2, idx
LIMIT $3`
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Index is a vector.Index backed by a pgvector table. Each index owns one
// collection, so several corpora can share a table.
type Index struct {
	db         dbConn
	collection string
	count      atomic.Int64
}

var _ vector.Index = (*Index)(nil)

// New creates an index over collection using pool. The pool must have the
// pgvector types registered, see pgxvec.RegisterTypes.
func New(pool *pgxpool.Pool, collection string) *Index {
	return newIndex(pool, collection)
}

func newIndex(db dbConn, collection string) *Index {
	if collection == "" {
		collection = "default"
	}
	return &Index{db: db, collection: collection}
}

// Len returns the number of chunks written or counted by the last Sync,
// Add or Reset call.
func (i *Index) Len() int {
	return int(i.count.Load())
}

// Sync refreshes the cached chunk count from the database.
func (i *Index) Sync(ctx context.Context) error {
	var n int64
	if err := i.db.QueryRow(ctx, countCollectionSQL, i.collection).Scan(&n); err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	i.count.Store(n)
	return nil
}

// Reset removes every chunk of the collection.
func (i *Index) Reset(ctx context.Context) error {
	if _, err := i.db.Exec(ctx, deleteCollectionSQL, i.collection); err != nil {
		return fmt.Errorf("reset collection %s: %w", i.collection, err)
	}
	i.count.Store(0)
	return nil
}

// Add upserts chunks keyed by their Index. Chunks without an embedding are
// rejected because they could never be retrieved.
func (i *Index) Add(ctx context.Context, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of chunk %s: %w", c.ID, err)
		}
		batch.Queue(
			upsertChunkSQL,
			i.collection,
			c.Index,
			c.ID,
			util.SanitizePostgresText(c.Text),
			meta,
			pgvector.NewVector(c.Embedding),
		)
	}

	br := i.db.SendBatch(ctx, batch)
	var errs []error
	for range chunks {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := br.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	return i.Sync(ctx)
}

// TopK returns the k nearest chunks by cosine distance. Score is the cosine
// similarity, ties are broken by ascending chunk index.
func (i *Index) TopK(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	if k <= 0 || len(query) == 0 {
		return []vector.Hit{}, nil
	}

	rows, err := i.db.Query(ctx, topKSQL, i.collection, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query top-k: %w", err)
	}
	defer rows.Close()

	hits := make([]vector.Hit, 0, k)
	for rows.Next() {
		var h vector.Hit
		if err := rows.Scan(&h.Index, &h.Score); err != nil {
			return nil, fmt.Errorf("scan top-k row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read top-k rows: %w", err)
	}
	return hits, nil
}
