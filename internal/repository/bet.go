package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
)

type betRepo struct{}

// NewBetRepository returns a pgx-backed BetRepository.
func NewBetRepository() BetRepository {
	return &betRepo{}
}

const betColumns = `id, round_id, user_id, bet_amount, payout, status, bet_placed_at, claimed_at, created_at, updated_at`

func (r *betRepo) Insert(ctx context.Context, db DBTX, bet *domain.Bet) error {
	_, err := db.Exec(ctx, `
		INSERT INTO bets (id, round_id, user_id, bet_amount, status, bet_placed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		bet.ID,
		bet.RoundID,
		bet.UserID,
		infra.CentsToNumeric(bet.BetAmount),
		string(bet.Status),
		bet.BetPlacedAt,
		bet.CreatedAt,
		bet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

func (r *betRepo) FindActive(ctx context.Context, db DBTX, roundID, userID uuid.UUID) (*domain.Bet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE round_id = $1 AND user_id = $2 AND status = 'active'`, roundID, userID)
	return scanBet(row)
}

func (r *betRepo) FindForRoundUser(ctx context.Context, db DBTX, roundID, userID uuid.UUID) (*domain.Bet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE round_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1`, roundID, userID)
	return scanBet(row)
}

func (r *betRepo) LockForRoundUser(ctx context.Context, tx pgx.Tx, roundID, userID uuid.UUID) (*domain.Bet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE round_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, roundID, userID)
	return scanBet(row)
}

func (r *betRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+betColumns+`
		FROM bets WHERE id = $1 FOR UPDATE`, id)
	return scanBet(row)
}

func (r *betRepo) Settle(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BetStatus, payout int64, claimedAt *time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bets
		SET status = $2, payout = $3, claimed_at = $4, updated_at = now()
		WHERE id = $1`,
		id, string(status), infra.CentsToNumeric(payout), claimedAt)
	if err != nil {
		return fmt.Errorf("settle bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settle bet: bet %s not found", id)
	}
	return nil
}

func (r *betRepo) MarkRefunded(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bets
		SET status = 'refunded', payout = 0, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("refund bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund bet: bet %s not found", id)
	}
	return nil
}

// MarkExpiredLost is the settlement sweep: once a crashed round's window has
// closed, any bet still active can no longer be cashed out.
func (r *betRepo) MarkExpiredLost(ctx context.Context, db DBTX, now time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE bets
		SET status = 'lost', payout = 0, updated_at = now()
		FROM rounds
		WHERE bets.round_id = rounds.round_id
		  AND bets.status = 'active'
		  AND rounds.status = 'crashed'
		  AND rounds.settlement_closed_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired bets: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *betRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.Bet, error) {
	rows, err := db.Query(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bets by user: %w", err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func (r *betRepo) ListByRound(ctx context.Context, db DBTX, roundID uuid.UUID) ([]domain.Bet, error) {
	rows, err := db.Query(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE round_id = $1
		ORDER BY created_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list bets by round: %w", err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBetFrom(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

func scanBet(row pgx.Row) (*domain.Bet, error) {
	b, err := scanBetFrom(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func scanBetFrom(row pgx.Row) (*domain.Bet, error) {
	var b domain.Bet
	var status string
	var amountNum, payoutNum pgtype.Numeric
	err := row.Scan(&b.ID, &b.RoundID, &b.UserID, &amountNum, &payoutNum, &status,
		&b.BetPlacedAt, &b.ClaimedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan bet: %w", err)
	}
	b.Status = domain.BetStatus(status)

	b.BetAmount, err = infra.NumericToCents(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert bet_amount: %w", err)
	}
	if payoutNum.Valid {
		payout, err := infra.NumericToCents(payoutNum)
		if err != nil {
			return nil, fmt.Errorf("convert payout: %w", err)
		}
		b.Payout = &payout
	}
	return &b, nil
}
