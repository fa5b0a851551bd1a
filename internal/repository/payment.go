package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
)

type paymentRepo struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() PaymentRepository {
	return &paymentRepo{}
}

const paymentColumns = `id, user_id, type, amount, phone, external_id, gateway_txn_id, status, gateway_status, error_reason, created_at, updated_at`

func (r *paymentRepo) Insert(ctx context.Context, db DBTX, intent *domain.PaymentIntent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payments (id, user_id, type, amount, phone, external_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		intent.ID,
		intent.UserID,
		string(intent.Type),
		infra.CentsToNumeric(intent.Amount),
		intent.Phone,
		intent.ExternalID,
		string(intent.Status),
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.PaymentIntent, error) {
	row := db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE external_id = $1`, externalID)
	return scanPayment(row)
}

func (r *paymentRepo) FindOpen(ctx context.Context, db DBTX, userID uuid.UUID, typ domain.PaymentType) (*domain.PaymentIntent, error) {
	row := db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1 AND type = $2 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1`, userID, string(typ))
	return scanPayment(row)
}

func (r *paymentRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) error {
	tag, err := db.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_status = COALESCE($3, gateway_status),
		    gateway_txn_id = COALESCE($4, gateway_txn_id),
		    error_reason = COALESCE($5, error_reason),
		    updated_at = now()
		WHERE id = $1`,
		id, string(status), gatewayStatus, gatewayTxnID, errorReason)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update payment status: payment %s not found", id)
	}
	return nil
}

func (r *paymentRepo) ListNonTerminal(ctx context.Context, db DBTX) ([]domain.PaymentIntent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *paymentRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payments by user: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]domain.PaymentIntent, error) {
	var intents []domain.PaymentIntent
	for rows.Next() {
		p, err := scanPaymentFrom(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *p)
	}
	return intents, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.PaymentIntent, error) {
	p, err := scanPaymentFrom(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPaymentFrom(row pgx.Row) (*domain.PaymentIntent, error) {
	var p domain.PaymentIntent
	var typ, status string
	var amountNum pgtype.Numeric
	err := row.Scan(&p.ID, &p.UserID, &typ, &amountNum, &p.Phone, &p.ExternalID,
		&p.GatewayTxnID, &status, &p.GatewayStatus, &p.ErrorReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Type = domain.PaymentType(typ)
	p.Status = domain.PaymentStatus(status)

	p.Amount, err = infra.NumericToCents(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	return &p, nil
}
