package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
)

// --- validation fast paths (no transaction started) ---

func TestPlaceBetRejectsNonPositiveAmount(t *testing.T) {
	e := &Engine{}

	for _, amount := range []int64{0, -100} {
		_, err := e.PlaceBet(context.Background(), uuid.New(), uuid.New(), amount)
		require.Error(t, err)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 400, appErr.Status)
	}
}

func TestFinalizeDepositRejectsNonTerminalStatus(t *testing.T) {
	e := &Engine{}

	for _, status := range []domain.PaymentStatus{domain.PaymentPending, domain.PaymentProcessing} {
		_, err := e.FinalizeDeposit(context.Background(), uuid.New(), status, nil, nil, nil)
		assert.Error(t, err, "status %s must be rejected", status)
	}
}

func TestFinalizeWithdrawalRejectsNonTerminalStatus(t *testing.T) {
	e := &Engine{}

	_, err := e.FinalizeWithdrawal(context.Background(), uuid.New(), domain.PaymentProcessing, nil, nil, nil)
	assert.Error(t, err)
}

func TestPersistRoundCrashRequiresEndTime(t *testing.T) {
	e := &Engine{}

	err := e.PersistRoundCrash(context.Background(), &domain.Round{RoundID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no end time")
}

// --- isUniqueViolation ---

func TestIsUniqueViolation(t *testing.T) {
	t.Run("pg duplicate key", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505"}
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("wrapped pg duplicate key", func(t *testing.T) {
		err := fmt.Errorf("insert bet: %w", &pgconn.PgError{Code: "23505"})
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("other pg error", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503"}
		assert.False(t, isUniqueViolation(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, isUniqueViolation(errors.New("boom")))
	})
}

func TestViolatesConstraint(t *testing.T) {
	t.Run("matching open-payment index", func(t *testing.T) {
		err := fmt.Errorf("insert payment: %w",
			&pgconn.PgError{Code: "23505", ConstraintName: openPaymentIdx})
		assert.True(t, violatesConstraint(err, openPaymentIdx))
	})

	t.Run("duplicate key on a different constraint", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "payments_external_id_key"}
		assert.False(t, violatesConstraint(err, openPaymentIdx))
	})

	t.Run("non-duplicate pg error", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503", ConstraintName: openPaymentIdx}
		assert.False(t, violatesConstraint(err, openPaymentIdx))
	})
}
