// Package store holds the hand-written pgx persistence layer. A single
// Queries type implements every feature package's Querier interface so the
// transaction runners can hand one value to composed operations.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/reward"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles all persistence methods over a pool or transaction.
type Queries struct {
	db DBTX
}

// New wraps db in a Queries value.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store is the root persistence handle: pool-scoped queries plus the
// transaction runners the feature services compose over.
type Store struct {
	Pool *pgxpool.Pool
	*Queries
}

// NewStore builds a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, Queries: New(pool)}
}

func (s *Store) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RunTx satisfies loyalty.TxRunner.
func (s *Store) RunTx(ctx context.Context, fn func(loyalty.Querier) error) error {
	return s.withTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunEarningTx satisfies loyalty.EarningRunner.
func (s *Store) RunEarningTx(ctx context.Context, fn func(loyalty.EarningQuerier) error) error {
	return s.withTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunCardTx satisfies loyalty.CardRunner.
func (s *Store) RunCardTx(ctx context.Context, fn func(loyalty.CardQuerier) error) error {
	return s.withTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunRewardTx satisfies reward.TxRunner.
func (s *Store) RunRewardTx(ctx context.Context, fn func(reward.Querier) error) error {
	return s.withTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunOrderTx satisfies order.TxRunner.
func (s *Store) RunOrderTx(ctx context.Context, fn func(order.Querier) error) error {
	return s.withTx(ctx, func(q *Queries) error { return fn(q) })
}

// RunSavepoint satisfies order.SavepointRunner. pgx maps a nested Begin onto
// SAVEPOINT/RELEASE, so rolling fn back leaves the enclosing transaction
// usable instead of aborted. Outside a transaction fn runs directly.
func (q *Queries) RunSavepoint(ctx context.Context, fn func(order.Querier) error) error {
	tx, ok := q.db.(pgx.Tx)
	if !ok {
		return fn(q)
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(New(sp)); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
