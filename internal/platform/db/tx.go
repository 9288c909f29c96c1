package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations shared by pgxpool.Pool and pgx.Tx.
// Repositories accept it so the same code runs inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner provides multi-statement atomicity when the store supports it.
// Callers write their logic once against this interface; whether the closure
// actually runs inside a transaction depends on the implementation chosen at
// startup (see Detect).
type TxRunner interface {
	// RunInTx executes fn, atomically when supported. On error the work is
	// rolled back by transactional implementations and merely abandoned
	// mid-way by the sequential fallback.
	RunInTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error

	// Transactional reports whether RunInTx provides real atomicity.
	Transactional() bool
}

// PoolRunner runs closures inside a repeatable-read transaction.
type PoolRunner struct {
	pool *pgxpool.Pool
}

// NewPoolRunner constructs a transactional runner.
func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

func (r *PoolRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

func (r *PoolRunner) Transactional() bool { return true }

// SequentialRunner executes the closure directly against the pool with no
// transaction boundary. Each statement is still individually atomic, but a
// crash between statements leaves a narrow inconsistency window. This is the
// documented best-effort fallback for stores without multi-statement support.
type SequentialRunner struct {
	pool *pgxpool.Pool
}

// NewSequentialRunner constructs the non-transactional fallback runner.
func NewSequentialRunner(pool *pgxpool.Pool) *SequentialRunner {
	return &SequentialRunner{pool: pool}
}

func (r *SequentialRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	return fn(ctx, r.pool)
}

func (r *SequentialRunner) Transactional() bool { return false }

// Detect probes the store for transaction support at startup and returns the
// matching runner. With strict set, a failed probe is an error instead of a
// silent downgrade to the sequential fallback.
func Detect(ctx context.Context, pool *pgxpool.Pool, strict bool, logger *slog.Logger) (TxRunner, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err == nil {
		_ = tx.Rollback(ctx)
		return NewPoolRunner(pool), nil
	}
	if strict {
		return nil, fmt.Errorf("platform/db: transactions unavailable: %w", err)
	}
	if logger != nil {
		logger.Warn("transactions unavailable, using sequential fallback", slog.Any("error", err))
	}
	return NewSequentialRunner(pool), nil
}
