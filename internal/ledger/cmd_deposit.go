package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/liftoff/platform/internal/domain"
)

// CreateDeposit records a pending deposit intent. The user's balance is
// untouched until the gateway confirms. One open deposit per user at a time.
func (e *Engine) CreateDeposit(ctx context.Context, userID uuid.UUID, amount int64, phone, transactionUUID string) (*domain.PaymentIntent, error) {
	var intent *domain.PaymentIntent
	err := e.withTx(ctx, func(tx pgx.Tx) error {
		// Fast path; the partial unique index on open payments is the real
		// arbiter under concurrency.
		open, err := e.payments.FindOpen(ctx, tx, userID, domain.PaymentDeposit)
		if err != nil {
			return fmt.Errorf("find open deposit: %w", err)
		}
		if open != nil {
			return domain.ErrConflict("a deposit is already pending")
		}

		now := time.Now().UTC()
		intent = &domain.PaymentIntent{
			ID:         uuid.New(),
			UserID:     userID,
			Type:       domain.PaymentDeposit,
			Amount:     amount,
			Phone:      phone,
			ExternalID: transactionUUID,
			Status:     domain.PaymentPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.payments.Insert(ctx, tx, intent); err != nil {
			if violatesConstraint(err, openPaymentIdx) {
				return domain.ErrConflict("a deposit is already pending")
			}
			if isUniqueViolation(err) {
				return domain.ErrConflict("transaction id already used")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// FinalizeDeposit takes a deposit to a terminal state. The credit happens
// here, exactly once: replays and duplicate gateway callbacks find the row
// already terminal under lock and leave the balance alone.
func (e *Engine) FinalizeDeposit(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("finalize deposit: %s is not a terminal status", status)
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

		if status == domain.PaymentConfirmed {
			user, err := e.users.Credit(ctx, tx, intent.UserID, intent.Amount)
			if err != nil {
				return fmt.Errorf("credit deposit: %w", err)
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
