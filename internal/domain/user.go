package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a users row. Balance is integer cents (numeric(18,2) in
// PostgreSQL, scale normalized on scan) and is never negative.
type User struct {
	ID                uuid.UUID `json:"id"`
	Phone             string    `json:"phone"`
	PasswordHash      string    `json:"-"`
	Balance           int64     `json:"balance"`
	ExternalPaymentID string    `json:"external_payment_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
