package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types published via the outbox.
type EventType string

const (
	EventRoundStarted     EventType = "crash.round.started"
	EventRoundCrashed     EventType = "crash.round.crashed"
	EventBetPlaced        EventType = "crash.bet.placed"
	EventBetSettled       EventType = "crash.bet.settled"
	EventBetRefunded      EventType = "crash.bet.refunded"
	EventUserCreated      EventType = "crash.user.created"
	EventPaymentFinalized EventType = "crash.payment.finalized"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateRound   AggregateType = "round"
	AggregateWallet  AggregateType = "wallet"
	AggregateUser    AggregateType = "user"
	AggregatePayment AggregateType = "payment"
)

// OutboxDraft is the payload written to the event_outbox table, always in
// the same transaction as the state change it describes.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
