package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/provider"
	"github.com/liftoff/platform/internal/repository"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func (f *fakeUserRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.User, error) {
	return f.users[id], nil
}
func (f *fakeUserRepo) FindByPhone(context.Context, repository.DBTX, string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) Create(context.Context, repository.DBTX, *domain.User) error { return nil }
func (f *fakeUserRepo) LockForUpdate(context.Context, pgx.Tx, uuid.UUID) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) Credit(context.Context, pgx.Tx, uuid.UUID, int64) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) DebitIfSufficient(context.Context, pgx.Tx, uuid.UUID, int64) (*domain.User, error) {
	return nil, nil
}

type fakePaymentLedger struct {
	intent       *domain.PaymentIntent
	createErr    error
	finalized    []domain.PaymentStatus
	finalizedFor []domain.PaymentType
}

func (f *fakePaymentLedger) CreateDeposit(_ context.Context, userID uuid.UUID, amount int64, phone, txnUUID string) (*domain.PaymentIntent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.intent = &domain.PaymentIntent{
		ID: uuid.New(), UserID: userID, Type: domain.PaymentDeposit,
		Amount: amount, Phone: phone, ExternalID: txnUUID, Status: domain.PaymentPending,
	}
	return f.intent, nil
}

func (f *fakePaymentLedger) CreateWithdrawal(_ context.Context, userID uuid.UUID, amount int64, phone, txnUUID string) (*domain.PaymentIntent, int64, error) {
	if f.createErr != nil {
		return nil, 0, f.createErr
	}
	f.intent = &domain.PaymentIntent{
		ID: uuid.New(), UserID: userID, Type: domain.PaymentWithdraw,
		Amount: amount, Phone: phone, ExternalID: txnUUID, Status: domain.PaymentProcessing,
	}
	return f.intent, 9000 - amount, nil
}

func (f *fakePaymentLedger) FinalizeDeposit(_ context.Context, _ uuid.UUID, status domain.PaymentStatus, _, _, _ *string) (*domain.PaymentIntent, error) {
	f.finalized = append(f.finalized, status)
	f.finalizedFor = append(f.finalizedFor, domain.PaymentDeposit)
	return f.intent, nil
}

func (f *fakePaymentLedger) FinalizeWithdrawal(_ context.Context, _ uuid.UUID, status domain.PaymentStatus, _, _, _ *string) (*domain.PaymentIntent, error) {
	f.finalized = append(f.finalized, status)
	f.finalizedFor = append(f.finalizedFor, domain.PaymentWithdraw)
	return f.intent, nil
}

type fakeGateway struct {
	resp       *provider.GatewayResponse
	err        error
	collected  int
	disbursed  int
}

func (f *fakeGateway) RequestCollection(context.Context, int64, string, string) (*provider.GatewayResponse, error) {
	f.collected++
	return f.resp, f.err
}

func (f *fakeGateway) RequestDisbursement(context.Context, int64, string, string) (*provider.GatewayResponse, error) {
	f.disbursed++
	return f.resp, f.err
}

type fakeTracker struct{ tracked []domain.PaymentIntent }

func (f *fakeTracker) Track(_ context.Context, intent domain.PaymentIntent) {
	f.tracked = append(f.tracked, intent)
}

func newPaymentService(users *fakeUserRepo, led *fakePaymentLedger, gw *fakeGateway, tracker *fakeTracker) *PaymentService {
	return NewPaymentService(nil, users, nil, led, gw, tracker,
		PaymentLimits{MinDeposit: 100, MaxDeposit: 1_000_000, MinWithdraw: 100, MaxWithdraw: 1_000_000},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seededUser() (*fakeUserRepo, uuid.UUID) {
	id := uuid.New()
	return &fakeUserRepo{users: map[uuid.UUID]*domain.User{
		id: {ID: id, Phone: "+256701234567", Balance: 9000},
	}}, id
}

func TestDeposit_AcceptedAndTracked(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{}
	gw := &fakeGateway{resp: &provider.GatewayResponse{TransactionID: "gw-1", Status: "PENDING"}}
	tracker := &fakeTracker{}

	intent, err := newPaymentService(users, led, gw, tracker).Deposit(context.Background(), userID, 5000, "txn-1")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentPending, intent.Status)
	assert.Equal(t, 1, gw.collected)
	require.Len(t, tracker.tracked, 1)
	assert.Equal(t, intent.ID, tracker.tracked[0].ID)
	assert.Empty(t, led.finalized)
}

func TestDeposit_AmountOutOfRange(t *testing.T) {
	users, userID := seededUser()
	svc := newPaymentService(users, &fakePaymentLedger{}, &fakeGateway{}, &fakeTracker{})

	_, err := svc.Deposit(context.Background(), userID, 50, "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)
}

func TestDeposit_GatewayUnreachableFailsIntent(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{}
	gw := &fakeGateway{err: errors.New("connection refused")}
	tracker := &fakeTracker{}

	_, err := newPaymentService(users, led, gw, tracker).Deposit(context.Background(), userID, 5000, "")
	require.Error(t, err)

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentFailed}, led.finalized)
	assert.Empty(t, tracker.tracked)
}

func TestDeposit_SyncRejectFinalizesFailed(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{}
	gw := &fakeGateway{resp: &provider.GatewayResponse{Status: "REJECTED", Message: "limit exceeded"}}
	tracker := &fakeTracker{}

	_, err := newPaymentService(users, led, gw, tracker).Deposit(context.Background(), userID, 5000, "")
	require.Error(t, err)

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentFailed}, led.finalized)
	assert.Equal(t, []domain.PaymentType{domain.PaymentDeposit}, led.finalizedFor)
	assert.Empty(t, tracker.tracked)
}

func TestWithdraw_AcceptedReturnsDebitedBalance(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{}
	gw := &fakeGateway{resp: &provider.GatewayResponse{Status: "PENDING"}}
	tracker := &fakeTracker{}

	intent, balance, err := newPaymentService(users, led, gw, tracker).Withdraw(context.Background(), userID, 3000, "")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentProcessing, intent.Status)
	assert.Equal(t, int64(6000), balance)
	assert.Equal(t, 1, gw.disbursed)
	assert.Len(t, tracker.tracked, 1)
}

func TestWithdraw_SyncRejectRefunds(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{}
	gw := &fakeGateway{resp: &provider.GatewayResponse{Status: "FAILED"}}

	_, _, err := newPaymentService(users, led, gw, &fakeTracker{}).Withdraw(context.Background(), userID, 3000, "")
	require.Error(t, err)

	// The failed finalize is what triggers the ledger's refund of the debit.
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentFailed}, led.finalized)
	assert.Equal(t, []domain.PaymentType{domain.PaymentWithdraw}, led.finalizedFor)
}

func TestWithdraw_InsufficientFundsPassesThrough(t *testing.T) {
	users, userID := seededUser()
	led := &fakePaymentLedger{createErr: domain.ErrInsufficientFunds()}
	gw := &fakeGateway{}

	_, _, err := newPaymentService(users, led, gw, &fakeTracker{}).Withdraw(context.Background(), userID, 3000, "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INSUFFICIENT_FUNDS", appErr.Code)
	assert.Zero(t, gw.disbursed)
}

func TestDeposit_UnknownUser(t *testing.T) {
	svc := newPaymentService(&fakeUserRepo{users: map[uuid.UUID]*domain.User{}},
		&fakePaymentLedger{}, &fakeGateway{}, &fakeTracker{})

	_, err := svc.Deposit(context.Background(), uuid.New(), 5000, "")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}
