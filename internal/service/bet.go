package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/ledger"
)

// RoundEngine is the in-memory round surface the bet flow drives.
type RoundEngine interface {
	Status() engine.Snapshot
	Join(userID uuid.UUID, betAmount int64) (*engine.JoinResult, error)
	Leave(userID uuid.UUID)
	Cashout(userID uuid.UUID) (*engine.CashoutResult, error)
}

// BetLedger is the transactional wallet surface the bet flow drives.
type BetLedger interface {
	PlaceBet(ctx context.Context, userID, roundID uuid.UUID, amount int64) (*ledger.PlaceBetResult, error)
	SettleCashout(ctx context.Context, userID, roundID uuid.UUID, outcome ledger.CashoutOutcome) (*ledger.SettleResult, error)
	RefundBet(ctx context.Context, betID uuid.UUID) (*ledger.RefundResult, error)
}

// BetLimits bounds wager amounts in cents.
type BetLimits struct {
	Min int64
	Max int64
}

// BetService coordinates the round engine and the ledger. The ledger debit
// commits first; if the engine then refuses the join, the debit is
// compensated with a refund so no money is held against a round the player
// never entered.
type BetService struct {
	engine   RoundEngine
	ledger   BetLedger
	throttle *guard.Throttle
	limits   BetLimits
	logger   *slog.Logger
}

// NewBetService creates a new BetService.
func NewBetService(eng RoundEngine, led BetLedger, throttle *guard.Throttle, limits BetLimits, logger *slog.Logger) *BetService {
	return &BetService{
		engine:   eng,
		ledger:   led,
		throttle: throttle,
		limits:   limits,
		logger:   logger,
	}
}

// PlaceBetResult is returned on a successful wager. The seed hash and start
// time let the client pin the commitment it is betting against.
type PlaceBetResult struct {
	BetID          uuid.UUID
	RoundID        uuid.UUID
	BetAmount      int64
	NewBalance     int64
	ServerSeedHash []byte
	StartedAt      time.Time
}

// PlaceBet wagers amount cents on the currently running round.
func (s *BetService) PlaceBet(ctx context.Context, userID uuid.UUID, amount int64) (*PlaceBetResult, error) {
	if err := domain.ValidateAmountRange(amount, s.limits.Min, s.limits.Max); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	snap := s.engine.Status()
	if snap.Status != domain.RoundRunning {
		return nil, domain.ErrNoRunningRound()
	}
	roundID := snap.RoundID

	placed, err := s.ledger.PlaceBet(ctx, userID, roundID, amount)
	if err != nil {
		return nil, err
	}

	joined, err := s.engine.Join(userID, amount)
	if err != nil {
		s.compensate(ctx, placed.Bet.ID, userID)
		switch {
		case errors.Is(err, engine.ErrNoRunningRound):
			return nil, domain.ErrNoRunningRound()
		case errors.Is(err, engine.ErrAlreadyJoined):
			return nil, domain.ErrConflict("bet already placed on this round")
		default:
			return nil, domain.ErrInternal("join round", err)
		}
	}

	return &PlaceBetResult{
		BetID:          placed.Bet.ID,
		RoundID:        roundID,
		BetAmount:      amount,
		NewBalance:     placed.Balance,
		ServerSeedHash: joined.SeedHash,
		StartedAt:      joined.StartedAt,
	}, nil
}

// compensate unwinds a committed debit after a failed join. A failed refund
// leaves the bet active; the settlement sweep will mark it lost, so the log
// line is the signal for manual review.
func (s *BetService) compensate(ctx context.Context, betID, userID uuid.UUID) {
	res, err := s.ledger.RefundBet(ctx, betID)
	if err != nil {
		s.logger.Error("bet compensation failed, manual review required",
			"betId", betID, "userId", userID, "error", err)
		return
	}
	s.engine.Leave(userID)
	s.logger.Warn("bet refunded after failed round join",
		"betId", betID, "userId", userID, "balance", res.Balance)
}

// CashoutResult is returned for every settled cashout claim, winning or not.
type CashoutResult struct {
	RoundID    uuid.UUID
	Win        bool
	Multiplier int64 // hundredths
	Payout     int64 // cents
	NewBalance int64
	Idempotent bool
}

// Cashout claims the live multiplier for the caller's active bet. The engine
// adjudicates against its clock; the ledger then applies the authoritative
// settlement. Replays return the originally settled outcome.
func (s *BetService) Cashout(ctx context.Context, userID uuid.UUID) (*CashoutResult, error) {
	if ok, wait := s.throttle.Allow(userID); !ok {
		retry := wait.Round(time.Millisecond)
		return nil, domain.ErrRateLimited("cashout throttled, retry in " + retry.String())
	}

	adj, err := s.engine.Cashout(userID)
	switch {
	case err == nil, errors.Is(err, engine.ErrAlreadyCashed):
		// Settle (or re-settle idempotently) below.
	case errors.Is(err, engine.ErrNoRunningRound):
		return nil, domain.ErrNoRunningRound()
	case errors.Is(err, engine.ErrNotJoined):
		return nil, domain.ErrValidation("no bet on this round")
	default:
		return nil, domain.ErrInternal("cashout", err)
	}

	settled, serr := s.ledger.SettleCashout(ctx, userID, adj.RoundID, ledger.CashoutOutcome{
		Win:        adj.Win,
		Multiplier: adj.Multiplier,
		Payout:     adj.Payout,
	})
	if serr != nil {
		return nil, serr
	}

	win := adj.Win
	if settled.Idempotent {
		win = settled.Payout > 0
	}
	return &CashoutResult{
		RoundID:    adj.RoundID,
		Win:        win,
		Multiplier: adj.Multiplier,
		Payout:     settled.Payout,
		NewBalance: settled.Balance,
		Idempotent: settled.Idempotent,
	}, nil
}
