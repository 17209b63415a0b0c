package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// fakeDB emulates the lease table for a single key.
type fakeDB struct {
	mu       sync.Mutex
	holder   string
	busyFor  int
	renewErr error
	execs    []string
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if sql == releaseSQL && args[1] == f.holder {
		f.holder = ""
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := args[0].(string)
	token := args[1].(string)

	switch sql {
	case claimSQL:
		if f.busyFor > 0 {
			f.busyFor--
			return fakeRow{err: pgx.ErrNoRows}
		}
		if f.holder != "" && f.holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holder = token
		return fakeRow{key: key}
	case renewSQL:
		if f.renewErr != nil {
			return fakeRow{err: f.renewErr}
		}
		if f.holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func TestWithLease(t *testing.T) {
	db := &fakeDB{}
	c := newClient(db, Options{TTL: time.Minute})

	ran := false
	err := c.WithLease(context.Background(), "graph", func(ctx context.Context) error {
		ran = true
		db.mu.Lock()
		defer db.mu.Unlock()
		if db.holder == "" {
			t.Fatal("expected lease to be held inside fn")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
	if db.holder != "" {
		t.Fatalf("expected lease to be released, still held by %s", db.holder)
	}
}

func TestWithLeaseReturnsFnError(t *testing.T) {
	c := newClient(&fakeDB{}, Options{})
	want := errors.New("build failed")
	if err := c.WithLease(context.Background(), "graph", func(ctx context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestTryAcquireBusy(t *testing.T) {
	db := &fakeDB{holder: "other"}
	c := newClient(db, Options{})

	_, err := c.TryAcquire(context.Background(), "graph")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestTryAcquire(t *testing.T) {
	db := &fakeDB{}
	c := newClient(db, Options{})

	lease, err := c.TryAcquire(context.Background(), "graph")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease.Owner == "" {
		t.Fatal("expected a lease owner")
	}
	if lease.Key != "graph" {
		t.Fatalf("expected key graph, got %s", lease.Key)
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatal("expected lease context to be cancelled after release")
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("expected second release to succeed, got %v", err)
	}
	if db.holder != "" {
		t.Fatalf("expected lease to be released, still held by %s", db.holder)
	}
}

func TestWithLeaseWaitsForBusyKey(t *testing.T) {
	db := &fakeDB{busyFor: 2}
	c := newClient(db, Options{PollInterval: time.Millisecond})

	ran := false
	err := c.WithLease(context.Background(), "graph", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run once the key was free")
	}
}

func TestWithLeaseWaitCancelled(t *testing.T) {
	db := &fakeDB{holder: "other"}
	c := newClient(db, Options{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.WithLease(ctx, "graph", func(ctx context.Context) error {
		t.Fatal("fn must not run without the lease")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestEmptyKey(t *testing.T) {
	c := newClient(&fakeDB{}, Options{})
	if _, err := c.TryAcquire(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestOptionsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{"zero", Options{}, Options{TTL: DefaultTTL, RenewEvery: DefaultTTL / 2, PollInterval: DefaultPollInterval}},
		{"renew not below ttl", Options{TTL: time.Minute, RenewEvery: time.Hour}, Options{TTL: time.Minute, RenewEvery: 30 * time.Second, PollInterval: DefaultPollInterval}},
		{"kept", Options{TTL: time.Minute, RenewEvery: 10 * time.Second, PollInterval: time.Second}, Options{TTL: time.Minute, RenewEvery: 10 * time.Second, PollInterval: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults(); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestLeaseLost(t *testing.T) {
	db := &fakeDB{}
	c := newClient(db, Options{TTL: 40 * time.Millisecond, RenewEvery: 10 * time.Millisecond})

	err := c.WithLease(context.Background(), "graph", func(ctx context.Context) error {
		db.mu.Lock()
		db.holder = "someone-else"
		db.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return errors.New("lease was not cancelled")
		}
	})
	if !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	c := newClient(db, Options{})
	if err := c.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS snapshot_leases") {
		t.Fatalf("expected create table statement, got %v", db.execs)
	}
}
