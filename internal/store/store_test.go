package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"scribe/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway() *Gateway {
	return &Gateway{
		log:       testLogger(),
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		baseDelay: time.Millisecond,
	}
}

func TestAcquireRetriesThenGivesUp(t *testing.T) {
	g := newTestGateway()
	attempts := 0
	g.ping = func(ctx context.Context) error {
		attempts++
		return errors.New("connection refused")
	}

	_, _, err := g.acquire(context.Background())
	if err == nil {
		t.Fatal("expected acquisition failure")
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if attempts != acquireAttempts {
		t.Errorf("expected %d attempts, got %d", acquireAttempts, attempts)
	}
}

func TestAcquireRecoversAfterTransientFailure(t *testing.T) {
	g := newTestGateway()
	attempts := 0
	g.ping = func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("i/o timeout")
		}
		return nil
	}

	_, release, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("expected recovery on third attempt: %v", err)
	}
	release()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestAcquireDegradedOpensOneOffConnections(t *testing.T) {
	g := newTestGateway()
	g.degraded = true
	attempts := 0
	g.connect = func(ctx context.Context) (*sqlx.DB, error) {
		attempts++
		return nil, errors.New("no route to host")
	}

	_, _, err := g.acquire(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if attempts != acquireAttempts {
		t.Errorf("expected %d connect attempts, got %d", acquireAttempts, attempts)
	}
}

func TestAcquireStopsOnContextCancel(t *testing.T) {
	g := newTestGateway()
	g.baseDelay = time.Minute
	g.ping = func(ctx context.Context) error { return errors.New("down") }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := g.acquire(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation should interrupt the backoff wait")
	}
}

func TestWithTxSurfacesStoreUnavailable(t *testing.T) {
	g := newTestGateway()
	g.ping = func(ctx context.Context) error { return errors.New("down") }

	called := false
	err := g.withTx(context.Background(), func(tx *sqlx.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if called {
		t.Error("op must not run without a connection")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint bool
	}{
		{"foreign key", &pq.Error{Code: "23503", Message: "fk violation"}, true},
		{"unique", &pq.Error{Code: "23505", Message: "duplicate key"}, true},
		{"syntax", &pq.Error{Code: "42601", Message: "syntax error"}, false},
		{"plain", errors.New("broken pipe"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if errors.Is(got, domain.ErrConstraintViolation) != tc.constraint {
				t.Errorf("classify(%v): constraint=%v, want %v", tc.err, !tc.constraint, tc.constraint)
			}
		})
	}
}
