// Package postgres implements the repository interfaces on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/booklend/internal/repository"
)

// querier is what the pool and an open pgx.Tx have in common.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs every unit of work as one serializable transaction.
type Store struct{ pool *pgxpool.Pool }

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Books() repo.Books               { return &booksRepo{q: s.pool} }
func (s *Store) Requests() repo.Requests         { return &requestsRepo{q: s.pool} }
func (s *Store) Transactions() repo.Transactions { return &transactionsRepo{q: s.pool} }

type txRepos struct{ tx pgx.Tx }

func (t txRepos) Books() repo.Books               { return &booksRepo{q: t.tx} }
func (t txRepos) Requests() repo.Requests         { return &requestsRepo{q: t.tx} }
func (t txRepos) Transactions() repo.Transactions { return &transactionsRepo{q: t.tx} }

func (s *Store) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(txRepos{tx}); err != nil {
		_ = tx.Rollback(ctx)
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// mapErr translates driver errors into the repository sentinels and leaves
// anything else alone.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", repo.ErrVersionConflict, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", repo.ErrDuplicate, pgErr.ConstraintName)
		}
	}
	return err
}
