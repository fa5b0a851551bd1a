package domain

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewRoundStartedEvent records the public commitment for a new round.
// The seed is deliberately absent; it is revealed only on crash.
func NewRoundStartedEvent(r *Round) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"round_id":         r.RoundID.String(),
		"commit_idx":       r.CommitIdx,
		"server_seed_hash": hex.EncodeToString(r.ServerSeedHash),
		"started_at":       r.StartedAt.UnixMilli(),
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRound,
		AggregateID:   r.RoundID.String(),
		EventType:     EventRoundStarted,
		PartitionKey:  r.RoundID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRoundCrashedEvent reveals the seed and crash point after a round ends.
func NewRoundCrashedEvent(r *Round) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"round_id":         r.RoundID.String(),
		"commit_idx":       r.CommitIdx,
		"server_seed":      hex.EncodeToString(r.ServerSeed),
		"server_seed_hash": hex.EncodeToString(r.ServerSeedHash),
		"crash_point":      r.CrashPoint,
		"started_at":       r.StartedAt.UnixMilli(),
		"ended_at":         r.EndedAt.UnixMilli(),
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRound,
		AggregateID:   r.RoundID.String(),
		EventType:     EventRoundCrashed,
		PartitionKey:  r.RoundID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewBetEvent records a wallet-affecting bet transition.
func NewBetEvent(evtType EventType, bet *Bet, balanceAfter int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"bet_id":        bet.ID.String(),
		"round_id":      bet.RoundID.String(),
		"user_id":       bet.UserID.String(),
		"bet_amount":    bet.BetAmount,
		"payout":        bet.Payout,
		"status":        bet.Status,
		"balance_after": balanceAfter,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   bet.UserID.String(),
		EventType:     evtType,
		PartitionKey:  bet.UserID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewUserCreatedEvent records a registration.
func NewUserCreatedEvent(userID uuid.UUID, phone string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"user_id": userID.String(),
		"phone":   phone,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUser,
		AggregateID:   userID.String(),
		EventType:     EventUserCreated,
		PartitionKey:  userID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewPaymentFinalizedEvent records a terminal payment transition.
func NewPaymentFinalizedEvent(intent *PaymentIntent) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"payment_id": intent.ID.String(),
		"user_id":    intent.UserID.String(),
		"type":       intent.Type,
		"amount":     intent.Amount,
		"status":     intent.Status,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePayment,
		AggregateID:   intent.ID.String(),
		EventType:     EventPaymentFinalized,
		PartitionKey:  intent.UserID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
