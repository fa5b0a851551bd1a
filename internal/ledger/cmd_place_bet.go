package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// PlaceBetResult is the outcome of a successful wager.
type PlaceBetResult struct {
	Bet     *domain.Bet
	Balance int64 // cents, after the debit
}

// PlaceBet atomically debits the user and records an active bet on the round.
//
// Failure modes: RoundStale for rounds past MAX_ROUND_AGE, Conflict for a
// repeated bet on the same round, InsufficientFunds when the conditional
// debit matches no row. The partial unique index on active bets backs the
// conflict check under concurrency.
func (e *Engine) PlaceBet(ctx context.Context, userID, roundID uuid.UUID, amount int64) (*PlaceBetResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var res *PlaceBetResult
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		round, err := e.rounds.FindByID(ctx, tx, roundID)
		if err != nil {
			return fmt.Errorf("find round: %w", err)
		}
		if round == nil {
			return domain.ErrNotFound("round", roundID.String())
		}
		now := time.Now().UTC()
		if now.Sub(round.StartedAt) > e.maxRoundAge {
			return domain.ErrRoundStale(roundID.String())
		}

		existing, err := e.bets.FindForRoundUser(ctx, tx, roundID, userID)
		if err != nil {
			return fmt.Errorf("find existing bet: %w", err)
		}
		if existing != nil {
			return domain.ErrConflict("bet already placed on this round")
		}

		if _, err := e.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		user, err := e.users.DebitIfSufficient(ctx, tx, userID, amount)
		if err != nil {
			return fmt.Errorf("debit user: %w", err)
		}
		if user == nil {
			return domain.ErrInsufficientFunds()
		}

		bet := &domain.Bet{
			ID:          uuid.New(),
			RoundID:     roundID,
			UserID:      userID,
			BetAmount:   amount,
			Status:      domain.BetActive,
			BetPlacedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.bets.Insert(ctx, tx, bet); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict("bet already placed on this round")
			}
			return err
		}

		if err := e.outbox.Insert(ctx, tx, domain.NewBetEvent(domain.EventBetPlaced, bet, user.Balance)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		res = &PlaceBetResult{Bet: bet, Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
