package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds", Status: 402}
}

// ErrRoundStale covers bets against rounds past the max round age.
func ErrRoundStale(roundID string) *AppError {
	return &AppError{Code: "ROUND_STALE", Message: fmt.Sprintf("round %s is no longer accepting bets", roundID), Status: 400}
}

// ErrSettlementClosed covers cashout claims past the settlement window.
func ErrSettlementClosed(roundID string) *AppError {
	return &AppError{Code: "SETTLEMENT_CLOSED", Message: fmt.Sprintf("settlement window for round %s is closed", roundID), Status: 400}
}

func ErrNoRunningRound() *AppError {
	return &AppError{Code: "NO_RUNNING_ROUND", Message: "no round is currently running", Status: 400}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Status: 429}
}

// ErrDownstream covers payment gateway failures surfaced synchronously.
func ErrDownstream(msg string, cause error) *AppError {
	return &AppError{Code: "DOWNSTREAM_ERROR", Message: msg, Status: 502, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
