package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"storage-booking-backend/internal/repository"

	"github.com/lib/pq"
)

const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeUniqueViolation      pq.ErrorCode = "23505"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db         *sql.DB
	maxRetries int
	log        *slog.Logger
	repos      repository.Repositories
}

func NewStore(db *sql.DB, maxRetries int, log *slog.Logger) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{
		db:         db,
		maxRetries: maxRetries,
		log:        log,
		repos:      repositoriesFor(db),
	}
}

func repositoriesFor(q querier) repository.Repositories {
	return repository.Repositories{
		Inventory: NewInventoryRepository(q),
		Bookings:  NewBookingRepository(q),
		Items:     NewBookingItemRepository(q),
		Roles:     NewRoleRepository(q),
		Users:     NewUserRepository(q),
	}
}

func (s *Store) Repositories() repository.Repositories {
	return s.repos
}

// WithinTx runs fn inside a READ COMMITTED transaction. Capacity checks rely on
// the SELECT ... FOR UPDATE taken on storage_items by the inventory repository;
// deadlocks and serialization failures are retried.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		s.log.Warn("Retrying transaction", "attempt", attempt, "error", err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, repositoriesFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
