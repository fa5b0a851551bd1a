package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// RefundResult is the outcome of a bet refund.
type RefundResult struct {
	Bet        *domain.Bet
	Balance    int64
	Idempotent bool
}

// RefundBet returns a bet's stake to the user and marks it refunded. Used
// both by the admin surface and as the compensation step when an engine join
// fails after the debit. Already-refunded bets are a no-op; cashed bets are
// rejected.
func (e *Engine) RefundBet(ctx context.Context, betID uuid.UUID) (*RefundResult, error) {
	var res *RefundResult
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		bet, err := e.bets.LockByID(ctx, tx, betID)
		if err != nil {
			return fmt.Errorf("lock bet: %w", err)
		}
		if bet == nil {
			return domain.ErrNotFound("bet", betID.String())
		}

		switch bet.Status {
		case domain.BetRefunded:
			balance, err := e.currentBalance(ctx, tx, bet.UserID)
			if err != nil {
				return err
			}
			res = &RefundResult{Bet: bet, Balance: balance, Idempotent: true}
			return nil
		case domain.BetCashed:
			return domain.ErrConflict("cashed bets cannot be refunded")
		}

		user, err := e.users.Credit(ctx, tx, bet.UserID, bet.BetAmount)
		if err != nil {
			return fmt.Errorf("credit refund: %w", err)
		}
		if user == nil {
			return domain.ErrNotFound("user", bet.UserID.String())
		}
		if err := e.bets.MarkRefunded(ctx, tx, bet.ID); err != nil {
			return err
		}
		bet.Status = domain.BetRefunded
		if err := e.outbox.Insert(ctx, tx, domain.NewBetEvent(domain.EventBetRefunded, bet, user.Balance)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		res = &RefundResult{Bet: bet, Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
