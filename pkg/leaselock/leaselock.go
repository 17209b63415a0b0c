// Package leaselock serializes snapshot writers across processes with
// expiring leases stored in Postgres.
//
// A lease is renewed while it is held. If renewal fails the context handed
// to the critical section is cancelled with ErrLost, so a writer that lost
// its lease stops before it overwrites a newer snapshot.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultPollInterval = 250 * time.Millisecond

	renewAttempts = 3
	renewTimeout  = 15 * time.Second
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options configure a Client. TTL is how long a lease survives without
// renewal, RenewEvery defaults to half of it. PollInterval is the base wait
// between attempts while another process holds the key.
type Options struct {
	TTL          time.Duration
	RenewEvery   time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL < time.Millisecond {
		o.TTL = DefaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Millisecond)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Client hands out leases. It implements graph.Locker.
type Client struct {
	db   dbConn
	opts Options
}

// New returns a Client backed by pool.
func New(pool *pgxpool.Pool, opts Options) *Client {
	return newClient(pool, opts)
}

func newClient(db dbConn, opts Options) *Client {
	return &Client{db: db, opts: opts.withDefaults()}
}

// EnsureSchema creates the lease table if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create lease table: %w", err)
	}
	return nil
}

// Lease is a held lock on one key. Context is cancelled on Release and when
// the lease is lost.
type Lease struct {
	Key     string
	Owner   string
	Context context.Context

	db     dbConn
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// WithLease waits until key is free, then runs fn while holding it. Waiting
// ends with ctx. If the lease is lost while fn runs, the returned error
// matches ErrLost.
func (c *Client) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := c.acquire(ctx, key, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Lock] Failed to release lease", "key", key, "err", err)
		}
	}()

	err = fn(lease.Context)
	if err != nil && errors.Is(context.Cause(lease.Context), ErrLost) && !errors.Is(err, ErrLost) {
		err = errors.Join(err, ErrLost)
	}
	return err
}

// TryAcquire takes the lease for key or fails with ErrBusy.
func (c *Client) TryAcquire(ctx context.Context, key string) (*Lease, error) {
	return c.acquire(ctx, key, false)
}

func (c *Client) acquire(ctx context.Context, key string, wait bool) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	owner, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	ttlMs := c.opts.TTL.Milliseconds()
	for {
		ok, err := c.claim(ctx, key, owner, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !wait {
			return nil, ErrBusy
		}
		logger.Debug("[Lock] Waiting for lease", "key", key)
		if err := sleep(ctx, c.opts.PollInterval+jitter(c.opts.PollInterval)); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Owner:   owner,
		Context: leaseCtx,
		db:      c.db,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.keepAlive(c.opts.RenewEvery, ttlMs)
	return l, nil
}

func (c *Client) claim(ctx context.Context, key, owner string, ttlMs int64) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, claimSQL, key, owner, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim lease %s: %w", key, err)
	}
	return got == key, nil
}

// Release stops renewal and deletes the lease row. Releasing twice is safe.
func (l *Lease) Release(ctx context.Context) error {
	l.cancel(context.Canceled)
	<-l.done
	_, err := l.db.Exec(ctx, releaseSQL, l.Key, l.Owner)
	return err
}

func (l *Lease) keepAlive(every time.Duration, ttlMs int64) {
	defer close(l.done)
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(ttlMs); err != nil {
				if l.Context.Err() != nil {
					return
				}
				logger.Error("[Lock] Lost lease", "key", l.Key, "err", err)
				l.cancel(ErrLost)
				return
			}
		}
	}
}

// renew retries transient errors. A missing row means another owner took
// over and is final.
func (l *Lease) renew(ttlMs int64) error {
	var err error
	for attempt := range renewAttempts {
		ctx, cancel := context.WithTimeout(l.Context, renewTimeout)
		var got string
		err = l.db.QueryRow(ctx, renewSQL, l.Key, l.Owner, ttlMs).Scan(&got)
		cancel()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pgx.ErrNoRows):
			return ErrLost
		}
		if attempt == renewAttempts-1 {
			break
		}
		if err := sleep(l.Context, 200*time.Millisecond); err != nil {
			return err
		}
	}
	return err
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)/2 + 1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS snapshot_leases (
    snapshot_key TEXT PRIMARY KEY,
    owner        TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL
);
`

// claimSQL takes a free or expired lease, or refreshes one the caller owns.
const claimSQL = `
INSERT INTO snapshot_leases (snapshot_key, owner, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (snapshot_key) DO UPDATE
SET owner      = EXCLUDED.owner,
    expires_at = EXCLUDED.expires_at
WHERE snapshot_leases.expires_at < now()
   OR snapshot_leases.owner = EXCLUDED.owner
RETURNING snapshot_key;
`

const renewSQL = `
UPDATE snapshot_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE snapshot_key = $1 AND owner = $2
RETURNING snapshot_key;
`

const releaseSQL = `
DELETE FROM snapshot_leases
WHERE snapshot_key = $1 AND owner = $2;
`
