package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/liftoff/platform/internal/domain"
)

type seedCommitRepo struct{}

// NewSeedCommitRepository returns a pgx-backed SeedCommitRepository.
func NewSeedCommitRepository() SeedCommitRepository {
	return &seedCommitRepo{}
}

func (r *seedCommitRepo) Latest(ctx context.Context, db DBTX) (*domain.SeedCommit, error) {
	row := db.QueryRow(ctx, `
		SELECT idx, seed_hash, created_at
		FROM seed_commits
		ORDER BY idx DESC
		LIMIT 1`)
	return scanSeedCommit(row)
}

// Insert appends to the chain. ON CONFLICT DO NOTHING makes concurrent
// appenders race safely: exactly one wins, the rest observe inserted=false
// and re-read.
func (r *seedCommitRepo) Insert(ctx context.Context, db DBTX, idx int64, seedHash []byte) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO seed_commits (idx, seed_hash, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (idx) DO NOTHING`, idx, seedHash)
	if err != nil {
		return false, fmt.Errorf("insert seed commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *seedCommitRepo) FindByIdx(ctx context.Context, db DBTX, idx int64) (*domain.SeedCommit, error) {
	row := db.QueryRow(ctx, `
		SELECT idx, seed_hash, created_at
		FROM seed_commits WHERE idx = $1`, idx)
	return scanSeedCommit(row)
}

func scanSeedCommit(row pgx.Row) (*domain.SeedCommit, error) {
	var c domain.SeedCommit
	err := row.Scan(&c.Idx, &c.SeedHash, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan seed commit: %w", err)
	}
	return &c, nil
}
