// Package ledger owns every monetary state transition: bets, cashouts,
// refunds, deposits, withdrawals, and round persistence. Each command runs in
// a single row-locked transaction, so partial effects are impossible, and
// writes an outbox event in the same transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/repository"
)

// Engine executes ledger commands. All balance math is integer cents and all
// mutations go through server-side arithmetic under SELECT FOR UPDATE.
type Engine struct {
	pool     *pgxpool.Pool
	users    repository.UserRepository
	rounds   repository.RoundRepository
	bets     repository.BetRepository
	payments repository.PaymentRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger

	maxRoundAge time.Duration
}

// NewEngine creates a ledger engine backed by the given pool and repositories.
func NewEngine(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	rounds repository.RoundRepository,
	bets repository.BetRepository,
	payments repository.PaymentRepository,
	outbox repository.OutboxRepository,
	maxRoundAge time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pool:        pool,
		users:       users,
		rounds:      rounds,
		bets:        bets,
		payments:    payments,
		outbox:      outbox,
		logger:      logger,
		maxRoundAge: maxRoundAge,
	}
}

// withTx runs fn in a read-committed transaction; row locks provide the
// per-user and per-round serialization.
func (e *Engine) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// lockUser loads a user under row lock, translating absence to NotFound.
func (e *Engine) lockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.User, error) {
	user, err := e.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// openPaymentIdx backs the one-open-intent-per-direction rule in storage.
const openPaymentIdx = "idx_payments_one_open_per_type"

// isUniqueViolation reports whether err is a PostgreSQL duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// violatesConstraint reports whether err is a duplicate-key error on the
// named constraint or unique index.
func violatesConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == name
}
