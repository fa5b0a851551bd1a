package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/repository"
)

// CommitSource exposes the public side of the seed chain.
type CommitSource interface {
	Latest(ctx context.Context) (*domain.SeedCommit, error)
}

// RoundService serves round state: the live snapshot from the engine, and
// history, reveals and commitments from storage. History and detail reads go
// through a short-TTL cache since every connected client polls them.
type RoundService struct {
	engine   RoundEngine
	rounds   repository.RoundRepository
	bets     repository.BetRepository
	commits  CommitSource
	db       repository.DBTX
	cache    *guard.Cache
	cacheTTL time.Duration
}

// NewRoundService creates a new RoundService.
func NewRoundService(
	eng RoundEngine,
	rounds repository.RoundRepository,
	bets repository.BetRepository,
	commits CommitSource,
	db repository.DBTX,
	cache *guard.Cache,
	cacheTTL time.Duration,
) *RoundService {
	return &RoundService{
		engine:   eng,
		rounds:   rounds,
		bets:     bets,
		commits:  commits,
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// RoundStatus is the public live-round snapshot.
type RoundStatus struct {
	RoundID        uuid.UUID          `json:"roundId"`
	Status         domain.RoundStatus `json:"status"`
	Multiplier     int64              `json:"multiplier"` // hundredths
	StartedAt      int64              `json:"startedAt"`  // unix millis
	CommitIdx      *int64             `json:"commitIdx,omitempty"`
	ServerSeedHash string             `json:"serverSeedHash,omitempty"`
}

// Status returns the live round snapshot.
func (s *RoundService) Status(_ context.Context) RoundStatus {
	snap := s.engine.Status()
	st := RoundStatus{
		RoundID:    snap.RoundID,
		Status:     snap.Status,
		Multiplier: snap.Multiplier,
		CommitIdx:  snap.CommitIdx,
	}
	if !snap.StartedAt.IsZero() {
		st.StartedAt = snap.StartedAt.UnixMilli()
	}
	if len(snap.SeedHash) > 0 {
		st.ServerSeedHash = hex.EncodeToString(snap.SeedHash)
	}
	return st
}

// History returns the most recently crashed rounds, newest first.
func (s *RoundService) History(ctx context.Context, limit int) ([]domain.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	key := fmt.Sprintf("round:history:%d", limit)
	if v, ok := s.cache.Get(key); ok {
		return v.([]domain.Round), nil
	}

	rounds, err := s.rounds.ListRecent(ctx, s.db, limit)
	if err != nil {
		return nil, domain.ErrInternal("list rounds", err)
	}
	s.cache.Set(key, rounds, s.cacheTTL)
	return rounds, nil
}

// RoundDetail is a stored round plus its bets.
type RoundDetail struct {
	Round domain.Round `json:"round"`
	Bets  []domain.Bet `json:"bets"`
}

// Detail returns a single round with its bets.
func (s *RoundService) Detail(ctx context.Context, roundID uuid.UUID) (*RoundDetail, error) {
	key := "round:detail:" + roundID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*RoundDetail), nil
	}

	round, err := s.rounds.FindByID(ctx, s.db, roundID)
	if err != nil {
		return nil, domain.ErrInternal("find round", err)
	}
	if round == nil {
		return nil, domain.ErrNotFound("round", roundID.String())
	}
	bets, err := s.bets.ListByRound(ctx, s.db, roundID)
	if err != nil {
		return nil, domain.ErrInternal("list bets", err)
	}

	detail := &RoundDetail{Round: *round, Bets: bets}
	// The crash point is persisted when the round starts; it stays secret
	// until the round actually crashes.
	if round.Status != domain.RoundCrashed {
		detail.Round.CrashPoint = 0
		detail.Round.ServerSeed = nil
	}
	// Only finished rounds are immutable enough to cache.
	if round.Status == domain.RoundCrashed {
		s.cache.Set(key, detail, s.cacheTTL)
	}
	return detail, nil
}

// Commitment is a published seed commitment.
type Commitment struct {
	Idx       int64  `json:"idx"`
	SeedHash  string `json:"seedHash"`
	CreatedAt int64  `json:"createdAt"` // unix millis
}

// LatestCommitment returns the newest published seed commitment.
func (s *RoundService) LatestCommitment(ctx context.Context) (*Commitment, error) {
	commit, err := s.commits.Latest(ctx)
	if err != nil {
		return nil, domain.ErrInternal("read seed chain", err)
	}
	if commit == nil {
		return nil, domain.ErrNotFound("commitment", "latest")
	}
	return &Commitment{
		Idx:       commit.Idx,
		SeedHash:  hex.EncodeToString(commit.SeedHash),
		CreatedAt: commit.CreatedAt.UnixMilli(),
	}, nil
}

// Reveal is the provably-fair disclosure for a finished round.
type Reveal struct {
	RoundID        uuid.UUID
	CommitIdx      *int64
	ServerSeed     string
	ServerSeedHash string
	CrashPoint     int64 // hundredths
	StartedAt      time.Time
	EndedAt        *time.Time
}

// Reveal discloses the server seed for a crashed round so anyone can verify
// the commitment hash and recompute the crash point.
func (s *RoundService) Reveal(ctx context.Context, roundID uuid.UUID) (*Reveal, error) {
	round, err := s.rounds.FindByID(ctx, s.db, roundID)
	if err != nil {
		return nil, domain.ErrInternal("find round", err)
	}
	if round == nil {
		return nil, domain.ErrNotFound("round", roundID.String())
	}
	if round.Status != domain.RoundCrashed || !round.Revealed() {
		return nil, domain.ErrValidation("round has not ended; seed is not yet revealed")
	}

	return &Reveal{
		RoundID:        round.RoundID,
		CommitIdx:      round.CommitIdx,
		ServerSeed:     hex.EncodeToString(round.ServerSeed),
		ServerSeedHash: hex.EncodeToString(round.ServerSeedHash),
		CrashPoint:     round.CrashPoint,
		StartedAt:      round.StartedAt,
		EndedAt:        round.EndedAt,
	}, nil
}

// BetHistory returns the caller's bets, newest first.
func (s *RoundService) BetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Bet, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	bets, err := s.bets.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, domain.ErrInternal("list bets", err)
	}
	return bets, nil
}
