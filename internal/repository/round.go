package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/liftoff/platform/internal/domain"
)

type roundRepo struct{}

// NewRoundRepository returns a pgx-backed RoundRepository.
func NewRoundRepository() RoundRepository {
	return &roundRepo{}
}

const roundColumns = `round_id, commit_idx, server_seed_hash, server_seed, crash_point, status,
		started_at, ended_at, settlement_window_seconds, settlement_closed_at`

// Insert is insert-or-ignore: the engine may retry persisting a round start
// after a transient failure, and the second attempt must not error.
func (r *roundRepo) Insert(ctx context.Context, db DBTX, round *domain.Round) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO rounds (round_id, commit_idx, server_seed_hash, crash_point, status, started_at, settlement_window_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (round_id) DO NOTHING`,
		round.RoundID,
		round.CommitIdx,
		round.ServerSeedHash,
		round.CrashPoint,
		string(round.Status),
		round.StartedAt,
		round.SettlementWindowSeconds,
	)
	if err != nil {
		return false, fmt.Errorf("insert round: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *roundRepo) FindByID(ctx context.Context, db DBTX, roundID uuid.UUID) (*domain.Round, error) {
	row := db.QueryRow(ctx, `
		SELECT `+roundColumns+`
		FROM rounds WHERE round_id = $1`, roundID)
	return scanRound(row)
}

func (r *roundRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, roundID uuid.UUID) (*domain.Round, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+roundColumns+`
		FROM rounds WHERE round_id = $1 FOR UPDATE`, roundID)
	return scanRound(row)
}

func (r *roundRepo) MarkCrashed(ctx context.Context, db DBTX, roundID uuid.UUID, seed []byte, endedAt, settlementClosedAt time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE rounds
		SET status = 'crashed', server_seed = $2, ended_at = $3, settlement_closed_at = $4
		WHERE round_id = $1`,
		roundID, seed, endedAt, settlementClosedAt)
	if err != nil {
		return fmt.Errorf("mark round crashed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark round crashed: round %s not found", roundID)
	}
	return nil
}

func (r *roundRepo) ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.Round, error) {
	rows, err := db.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status = 'crashed'
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		rd, err := scanRoundFrom(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *rd)
	}
	return rounds, rows.Err()
}

func scanRound(row pgx.Row) (*domain.Round, error) {
	rd, err := scanRoundFrom(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rd, err
}

func scanRoundFrom(row pgx.Row) (*domain.Round, error) {
	var rd domain.Round
	var status string
	err := row.Scan(&rd.RoundID, &rd.CommitIdx, &rd.ServerSeedHash, &rd.ServerSeed,
		&rd.CrashPoint, &status, &rd.StartedAt, &rd.EndedAt,
		&rd.SettlementWindowSeconds, &rd.SettlementClosedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan round: %w", err)
	}
	rd.Status = domain.RoundStatus(status)
	return &rd, nil
}
