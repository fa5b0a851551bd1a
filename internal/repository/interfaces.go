package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/liftoff/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to users.
type UserRepository interface {
	// FindByID returns a user by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// FindByPhone returns a user by phone number, or nil if absent.
	FindByPhone(ctx context.Context, db DBTX, phone string) (*domain.User, error)

	// Create inserts a new user. A phone collision surfaces as a unique
	// violation for the caller to map.
	Create(ctx context.Context, db DBTX, user *domain.User) error

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the user.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)

	// Credit adds amount cents to the balance using server-side arithmetic.
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*domain.User, error)

	// DebitIfSufficient subtracts amount cents only when the balance covers it.
	// Returns nil (no error) when the balance is insufficient.
	DebitIfSufficient(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*domain.User, error)
}

// RoundRepository provides access to rounds.
type RoundRepository interface {
	// Insert persists a round start. Replays of the same round_id are
	// ignored; returns whether a row was actually written.
	Insert(ctx context.Context, db DBTX, round *domain.Round) (bool, error)

	// FindByID returns a round by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, roundID uuid.UUID) (*domain.Round, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the round.
	LockForUpdate(ctx context.Context, tx pgx.Tx, roundID uuid.UUID) (*domain.Round, error)

	// MarkCrashed records the crash outcome: revealed seed, final status,
	// end time and the settlement window close.
	MarkCrashed(ctx context.Context, db DBTX, roundID uuid.UUID, seed []byte, endedAt, settlementClosedAt time.Time) error

	// ListRecent returns the most recently crashed rounds, newest first.
	ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.Round, error)
}

// BetRepository provides access to bets.
type BetRepository interface {
	// Insert creates a bet row. A second active bet on the same
	// (user_id, round_id) violates the partial unique index.
	Insert(ctx context.Context, db DBTX, bet *domain.Bet) error

	// FindActive returns the active bet for (round, user), or nil.
	FindActive(ctx context.Context, db DBTX, roundID, userID uuid.UUID) (*domain.Bet, error)

	// FindForRoundUser returns the newest bet for (round, user) in any
	// status, or nil. Used for idempotent cashout replies.
	FindForRoundUser(ctx context.Context, db DBTX, roundID, userID uuid.UUID) (*domain.Bet, error)

	// LockForRoundUser locks the newest bet for (round, user) FOR UPDATE.
	LockForRoundUser(ctx context.Context, tx pgx.Tx, roundID, userID uuid.UUID) (*domain.Bet, error)

	// LockByID locks a bet by primary key FOR UPDATE.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bet, error)

	// Settle finalizes a bet with its payout and status. claimedAt is set
	// only for cashed bets.
	Settle(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BetStatus, payout int64, claimedAt *time.Time) error

	// MarkRefunded flips a bet to refunded with zero payout.
	MarkRefunded(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// MarkExpiredLost marks active bets lost on crashed rounds whose
	// settlement window closed at or before now. Returns rows affected.
	MarkExpiredLost(ctx context.Context, db DBTX, now time.Time) (int64, error)

	// ListByUser returns a user's bets, newest first.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.Bet, error)

	// ListByRound returns all bets in a round.
	ListByRound(ctx context.Context, db DBTX, roundID uuid.UUID) ([]domain.Bet, error)
}

// SeedCommitRepository provides access to the seed_commits chain.
type SeedCommitRepository interface {
	// Latest returns the highest-index commitment, or nil if the chain is empty.
	Latest(ctx context.Context, db DBTX) (*domain.SeedCommit, error)

	// Insert appends a commitment at idx. A concurrent writer that got
	// there first is ignored; returns whether this call inserted the row.
	Insert(ctx context.Context, db DBTX, idx int64, seedHash []byte) (bool, error)

	// FindByIdx returns the commitment at idx, or nil if absent.
	FindByIdx(ctx context.Context, db DBTX, idx int64) (*domain.SeedCommit, error)
}

// PaymentRepository provides access to payments.
type PaymentRepository interface {
	// Insert creates a payment intent.
	Insert(ctx context.Context, db DBTX, intent *domain.PaymentIntent) error

	// FindByID returns an intent by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentIntent, error)

	// FindByExternalID returns an intent by the gateway reference, or nil.
	FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.PaymentIntent, error)

	// FindOpen returns a user's non-terminal intent of the given type, or nil.
	FindOpen(ctx context.Context, db DBTX, userID uuid.UUID, typ domain.PaymentType) (*domain.PaymentIntent, error)

	// LockForUpdate acquires a row-level lock and returns the intent.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentIntent, error)

	// UpdateStatus records a status transition plus the gateway's view of it.
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) error

	// ListNonTerminal returns every intent still in flight, oldest first.
	// Used to resume reconciliation after a restart.
	ListNonTerminal(ctx context.Context, db DBTX) ([]domain.PaymentIntent, error)

	// ListByUser returns a page of a user's intents, newest first.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished deletes events once the broker has acknowledged them.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
