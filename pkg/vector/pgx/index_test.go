package pgx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/graphvec/pkg/common"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.values[i].(int)
		case *int64:
			*p = r.values[i].(int64)
		case *float64:
			*p = r.values[i].(float64)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeRows struct {
	rows []fakeRow
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return r.rows[r.pos-1].Scan(dest...)
}

type fakeBatchResults struct {
	n   int
	err error
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b *fakeBatchResults) Query() (pgx.Rows, error)         { return &fakeRows{}, b.err }
func (b *fakeBatchResults) QueryRow() pgx.Row                { return fakeRow{err: b.err} }
func (b *fakeBatchResults) Close() error                     { return nil }

type fakeDB struct {
	execSQL   []string
	queryArgs []any
	batch     *pgx.Batch
	batchErr  error
	count     int64
	hits      []fakeRow
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryArgs = args
	return &fakeRows{rows: f.hits}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{values: []any{f.count}}
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return &fakeBatchResults{n: b.Len(), err: f.batchErr}
}

func TestIndex_AddQueuesUpserts(t *testing.T) {
	db := &fakeDB{count: 2}
	idx := newIndex(db, "reports")

	err := idx.Add(context.Background(), []common.Chunk{
		{ID: "a", Index: 0, Text: "first\x00", Embedding: []float32{1, 0}},
		{ID: "b", Index: 1, Text: "second", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if db.batch == nil || db.batch.Len() != 2 {
		t.Fatalf("expected 2 queued statements, got %v", db.batch)
	}
	first := db.batch.QueuedQueries[0]
	if first.Arguments[0] != "reports" || first.Arguments[3] != "first" {
		t.Fatalf("unexpected arguments %v", first.Arguments)
	}
	if _, ok := first.Arguments[5].(pgvector.Vector); !ok {
		t.Fatalf("expected pgvector argument, got %T", first.Arguments[5])
	}
	if idx.Len() != 2 {
		t.Fatalf("expected cached length 2, got %d", idx.Len())
	}
}

func TestIndex_AddRejectsMissingEmbedding(t *testing.T) {
	idx := newIndex(&fakeDB{}, "")
	if err := idx.Add(context.Background(), []common.Chunk{{ID: "x"}}); err == nil {
		t.Fatal("expected error for chunk without embedding")
	}
}

func TestIndex_AddPropagatesBatchError(t *testing.T) {
	idx := newIndex(&fakeDB{batchErr: errors.New("boom")}, "c")
	err := idx.Add(context.Background(), []common.Chunk{{ID: "a", Embedding: []float32{1}}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected batch error, got %v", err)
	}
}

func TestIndex_TopK(t *testing.T) {
	db := &fakeDB{hits: []fakeRow{
		{values: []any{3, 0.9}},
		{values: []any{1, 0.5}},
	}}
	idx := newIndex(db, "c")

	hits, err := idx.TopK(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(hits) != 2 || hits[0].Index != 3 || hits[1].Score != 0.5 {
		t.Fatalf("unexpected hits %v", hits)
	}
	if db.queryArgs[0] != "c" || db.queryArgs[2] != 2 {
		t.Fatalf("unexpected query args %v", db.queryArgs)
	}

	none, err := idx.TopK(context.Background(), []float32{1, 0}, 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result for k=0, got %v, %v", none, err)
	}
}

func TestIndex_Reset(t *testing.T) {
	db := &fakeDB{count: 5}
	idx := newIndex(db, "c")
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if idx.Len() != 5 {
		t.Fatalf("expected 5, got %d", idx.Len())
	}
	if err := idx.Reset(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if idx.Len() != 0 || len(db.execSQL) != 1 {
		t.Fatalf("expected reset to clear count and issue delete, got %d / %v", idx.Len(), db.execSQL)
	}
}
