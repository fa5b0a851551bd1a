package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus tracks the round lifecycle.
type RoundStatus string

const (
	RoundWaiting RoundStatus = "waiting"
	RoundRunning RoundStatus = "running"
	RoundCrashed RoundStatus = "crashed"
)

// Round represents a rounds row. CrashPoint is int64 hundredths
// (350 = 3.50x). ServerSeed stays nil until the round crashes and the seed
// is revealed.
type Round struct {
	RoundID                 uuid.UUID   `json:"round_id"`
	CommitIdx               *int64      `json:"commit_idx"`
	ServerSeedHash          []byte      `json:"server_seed_hash"`
	ServerSeed              []byte      `json:"server_seed,omitempty"`
	CrashPoint              int64       `json:"crash_point"`
	Status                  RoundStatus `json:"status"`
	StartedAt               time.Time   `json:"started_at"`
	EndedAt                 *time.Time  `json:"ended_at,omitempty"`
	SettlementWindowSeconds int64       `json:"settlement_window_seconds"`
	SettlementClosedAt      *time.Time  `json:"settlement_closed_at,omitempty"`
}

// Revealed reports whether the server seed has been published.
func (r *Round) Revealed() bool { return len(r.ServerSeed) > 0 }

// SettlementOpen reports whether cashout claims are still accepted at t.
func (r *Round) SettlementOpen(t time.Time) bool {
	return r.SettlementClosedAt == nil || t.Before(*r.SettlementClosedAt)
}
