package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// CreateWithdrawal debits the user and records a processing intent in one
// transaction. The debit is reversed only by FinalizeWithdrawal on a failed
// or expired terminal state.
func (e *Engine) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, phone, transactionUUID string) (*domain.PaymentIntent, int64, error) {
	var intent *domain.PaymentIntent
	var balance int64
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		open, err := e.payments.FindOpen(ctx, tx, userID, domain.PaymentWithdraw)
		if err != nil {
			return fmt.Errorf("find open withdrawal: %w", err)
		}
		if open != nil {
			return domain.ErrConflict("a withdrawal is already in progress")
		}

		if _, err := e.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		user, err := e.users.DebitIfSufficient(ctx, tx, userID, amount)
		if err != nil {
			return fmt.Errorf("debit withdrawal: %w", err)
		}
		if user == nil {
			return domain.ErrInsufficientFunds()
		}
		balance = user.Balance

		now := time.Now().UTC()
		intent = &domain.PaymentIntent{
			ID:         uuid.New(),
			UserID:     userID,
			Type:       domain.PaymentWithdraw,
			Amount:     amount,
			Phone:      phone,
			ExternalID: transactionUUID,
			Status:     domain.PaymentProcessing,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.payments.Insert(ctx, tx, intent); err != nil {
			if violatesConstraint(err, openPaymentIdx) {
				return domain.ErrConflict("a withdrawal is already in progress")
			}
			if isUniqueViolation(err) {
				return domain.ErrConflict("transaction id already used")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return intent, balance, nil
}

// FinalizeWithdrawal takes a withdrawal to a terminal state. Confirmed keeps
// the earlier debit; failed and expired refund it, in the same transaction as
// the status flip, so debit/refund symmetry holds under any interleaving.
func (e *Engine) FinalizeWithdrawal(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("finalize withdrawal: %s is not a terminal status", status)
	}

	var intent *domain.PaymentIntent
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		intent, err = e.payments.LockForUpdate(ctx, tx, intentID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if intent == nil {
			return domain.ErrNotFound("payment", intentID.String())
		}
		if intent.Status.Terminal() {
			return nil
		}

		if status == domain.PaymentFailed || status == domain.PaymentExpired {
			user, err := e.users.Credit(ctx, tx, intent.UserID, intent.Amount)
			if err != nil {
				return fmt.Errorf("refund withdrawal: %w", err)
			}
			if user == nil {
				return domain.ErrNotFound("user", intent.UserID.String())
			}
		}

		if err := e.payments.UpdateStatus(ctx, tx, intentID, status, gatewayStatus, gatewayTxnID, errorReason); err != nil {
			return err
		}
		intent.Status = status

		if err := e.outbox.Insert(ctx, tx, domain.NewPaymentFinalizedEvent(intent)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}
