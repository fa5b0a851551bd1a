package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// PersistRoundStart records a round the engine just created. Insert-or-ignore
// on round_id: a retried persist is not an error and writes no second event.
func (e *Engine) PersistRoundStart(ctx context.Context, round *domain.Round) error {
	return e.withTx(ctx, func(tx pgx.Tx) error {
		inserted, err := e.rounds.Insert(ctx, tx, round)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if err := e.outbox.Insert(ctx, tx, domain.NewRoundStartedEvent(round)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

// PersistRoundCrash reveals the seed, stamps the end time, and opens the
// settlement window clock: settlement_closed_at = ended_at + window.
func (e *Engine) PersistRoundCrash(ctx context.Context, round *domain.Round) error {
	if round.EndedAt == nil {
		return fmt.Errorf("persist round crash: round %s has no end time", round.RoundID)
	}
	endedAt := *round.EndedAt
	closedAt := endedAt.Add(time.Duration(round.SettlementWindowSeconds) * time.Second)

	return e.withTx(ctx, func(tx pgx.Tx) error {
		if err := e.rounds.MarkCrashed(ctx, tx, round.RoundID, round.ServerSeed, endedAt, closedAt); err != nil {
			return err
		}
		if err := e.outbox.Insert(ctx, tx, domain.NewRoundCrashedEvent(round)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

// SweepExpiredBets marks active bets lost on crashed rounds whose settlement
// window has closed. Run periodically; returns how many bets it closed.
func (e *Engine) SweepExpiredBets(ctx context.Context) (int64, error) {
	n, err := e.bets.MarkExpiredLost(ctx, e.pool, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("settlement sweep closed expired bets", "count", n)
	}
	return n, nil
}
