package domain

import (
	"time"

	"github.com/google/uuid"
)

// BetStatus tracks the bet lifecycle. The partial unique index on
// (user_id, round_id) WHERE status='active' is the storage-layer guarantee
// of at most one active bet per round.
type BetStatus string

const (
	BetActive   BetStatus = "active"
	BetCashed   BetStatus = "cashed"
	BetLost     BetStatus = "lost"
	BetRefunded BetStatus = "refunded"
)

// Bet represents a bets row. BetAmount and Payout are integer cents;
// Payout is nil until the bet settles.
type Bet struct {
	ID          uuid.UUID  `json:"id"`
	RoundID     uuid.UUID  `json:"round_id"`
	UserID      uuid.UUID  `json:"user_id"`
	BetAmount   int64      `json:"bet_amount"`
	Payout      *int64     `json:"payout,omitempty"`
	Status      BetStatus  `json:"status"`
	BetPlacedAt time.Time  `json:"bet_placed_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
