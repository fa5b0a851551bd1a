package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentType distinguishes deposits from withdrawals.
type PaymentType string

const (
	PaymentDeposit  PaymentType = "deposit"
	PaymentWithdraw PaymentType = "withdraw"
)

// PaymentStatus tracks the intent lifecycle.
//
// Deposits:    pending -> confirmed | failed | expired
// Withdrawals: processing -> confirmed | failed | expired
// (withdrawals are debited at creation and refunded on failed/expired)
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentConfirmed  PaymentStatus = "confirmed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentExpired    PaymentStatus = "expired"
)

// Terminal reports whether a status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentConfirmed, PaymentFailed, PaymentExpired:
		return true
	}
	return false
}

// PaymentIntent represents a payments row: one in-flight deposit or
// withdrawal against the external mobile-money gateway.
type PaymentIntent struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	Type          PaymentType   `json:"type"`
	Amount        int64         `json:"amount"`
	Phone         string        `json:"phone"`
	ExternalID    string        `json:"external_id"`
	GatewayTxnID  *string       `json:"gateway_txn_id,omitempty"`
	Status        PaymentStatus `json:"status"`
	GatewayStatus *string       `json:"gateway_status,omitempty"`
	ErrorReason   *string       `json:"error_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
