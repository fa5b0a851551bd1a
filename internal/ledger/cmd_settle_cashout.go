package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// CashoutOutcome is the round engine's adjudication of a claim, handed to
// the ledger for the authoritative settlement.
type CashoutOutcome struct {
	Win        bool
	Multiplier int64 // hundredths
	Payout     int64 // cents
}

// SettleResult is the ledger's authoritative reply to a cashout.
type SettleResult struct {
	Payout     int64
	Balance    int64
	Idempotent bool
}

// SettleCashout finalizes a claim for (user, round). The round row is locked
// first, then the bet: replays of an already-settled bet return the original
// outcome with Idempotent=true and change nothing.
func (e *Engine) SettleCashout(ctx context.Context, userID, roundID uuid.UUID, outcome CashoutOutcome) (*SettleResult, error) {
	var res *SettleResult
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		round, err := e.rounds.LockForUpdate(ctx, tx, roundID)
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		if round == nil {
			return domain.ErrNotFound("round", roundID.String())
		}
		now := time.Now().UTC()
		if !round.SettlementOpen(now) {
			return domain.ErrSettlementClosed(roundID.String())
		}

		bet, err := e.bets.LockForRoundUser(ctx, tx, roundID, userID)
		if err != nil {
			return fmt.Errorf("lock bet: %w", err)
		}
		if bet == nil {
			return domain.ErrValidation("no bet on this round")
		}

		switch bet.Status {
		case domain.BetCashed:
			var payout int64
			if bet.Payout != nil {
				payout = *bet.Payout
			}
			balance, err := e.currentBalance(ctx, tx, userID)
			if err != nil {
				return err
			}
			res = &SettleResult{Payout: payout, Balance: balance, Idempotent: true}
			return nil

		case domain.BetLost, domain.BetRefunded:
			balance, err := e.currentBalance(ctx, tx, userID)
			if err != nil {
				return err
			}
			res = &SettleResult{Balance: balance, Idempotent: true}
			return nil
		}

		if !outcome.Win {
			if err := e.bets.Settle(ctx, tx, bet.ID, domain.BetLost, 0, nil); err != nil {
				return err
			}
			bet.Status = domain.BetLost
			balance, err := e.currentBalance(ctx, tx, userID)
			if err != nil {
				return err
			}
			if err := e.outbox.Insert(ctx, tx, domain.NewBetEvent(domain.EventBetSettled, bet, balance)); err != nil {
				return fmt.Errorf("insert outbox event: %w", err)
			}
			res = &SettleResult{Balance: balance}
			return nil
		}

		user, err := e.users.Credit(ctx, tx, userID, outcome.Payout)
		if err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}
		if user == nil {
			return domain.ErrNotFound("user", userID.String())
		}
		if err := e.bets.Settle(ctx, tx, bet.ID, domain.BetCashed, outcome.Payout, &now); err != nil {
			return err
		}
		bet.Status = domain.BetCashed
		bet.Payout = &outcome.Payout
		bet.ClaimedAt = &now
		if err := e.outbox.Insert(ctx, tx, domain.NewBetEvent(domain.EventBetSettled, bet, user.Balance)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		res = &SettleResult{Payout: outcome.Payout, Balance: user.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) currentBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	user, err := e.users.FindByID(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if user == nil {
		return 0, domain.ErrNotFound("user", userID.String())
	}
	return user.Balance, nil
}
