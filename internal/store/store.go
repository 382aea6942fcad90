// Package store is the datastore gateway: a bounded Postgres pool with
// retry/backoff on acquisition, plus the idempotent write operations for the
// five captured entity kinds.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"scribe/internal/domain"
)

const (
	acquireAttempts  = 3
	acquireBaseDelay = 250 * time.Millisecond
	pingTimeout      = 5 * time.Second
)

// Gateway owns the connection pool and hands out transactions. It is safe
// for concurrent use; pool-internal locking is the only mutual exclusion.
type Gateway struct {
	db      *sqlx.DB
	dsn     string
	log     *slog.Logger
	builder sq.StatementBuilderType

	// degraded is set when the pooled connection could not be established at
	// startup; every operation then opens a one-off connection instead.
	degraded     bool
	degradedOnce sync.Once

	// test seams
	ping      func(ctx context.Context) error
	connect   func(ctx context.Context) (*sqlx.DB, error)
	baseDelay time.Duration
}

// Open connects the gateway. On pool establishment failure it degrades to
// one-off connections instead of failing, so a flaky datastore at boot does
// not take the process down.
func Open(ctx context.Context, dsn string, maxConns, maxIdleConns int, log *slog.Logger) (*Gateway, error) {
	g := &Gateway{
		dsn:       dsn,
		log:       log,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		baseDelay: acquireBaseDelay,
	}
	g.connect = func(ctx context.Context) (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "postgres", dsn)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open datastore")
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	g.db = db
	g.ping = db.PingContext

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		g.markDegraded(err)
	}
	return g, nil
}

func (g *Gateway) markDegraded(cause error) {
	g.degradedOnce.Do(func() {
		g.degraded = true
		g.log.Error("datastore pool unavailable, degrading to one-off connections", "err", cause)
	})
}

// Degraded reports whether the gateway is running without its pool.
func (g *Gateway) Degraded() bool { return g.degraded }

// Close releases the pool.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

// acquire returns a live handle, verifying pool liveness first since idle
// connections go stale between event bursts. Transient failures are retried
// with exponential backoff; the exhausted case surfaces as
// domain.ErrStoreUnavailable.
func (g *Gateway) acquire(ctx context.Context) (*sqlx.DB, func(), error) {
	var lastErr error
	delay := g.baseDelay

	for attempt := 1; attempt <= acquireAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if g.degraded {
			db, err := g.connect(ctx)
			if err == nil {
				return db, func() { _ = db.Close() }, nil
			}
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := g.ping(pingCtx)
			cancel()
			if err == nil {
				return g.db, func() {}, nil
			}
			lastErr = err
		}
		g.log.Warn("datastore acquisition failed", "attempt", attempt, "err", lastErr)
	}

	return nil, nil, errors.Wrapf(domain.ErrStoreUnavailable, "after %d attempts: %v", acquireAttempts, lastErr)
}

// withTx acquires a connection, runs fn in a transaction, and guarantees
// release on every exit path: commit on success, rollback on failure or
// panic.
func (g *Gateway) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	db, release, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "commit")
	}()

	return fn(tx)
}

// execBuilder renders a squirrel builder and executes it, keeping every
// write parameterized.
func execBuilder(ctx context.Context, tx *sqlx.Tx, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build query")
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

// classify maps driver errors into the shared taxonomy. Postgres class 23
// covers integrity constraint violations (bad foreign keys, shape bugs).
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), "23") {
		return errors.Wrapf(domain.ErrConstraintViolation, "%s: %s", pqErr.Code, pqErr.Message)
	}
	return err
}
