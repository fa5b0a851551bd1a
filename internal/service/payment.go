package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/provider"
	"github.com/liftoff/platform/internal/repository"
)

// PaymentGateway is the synchronous initiation surface of the gateway.
type PaymentGateway interface {
	RequestCollection(ctx context.Context, amountCents int64, phone, txnUUID string) (*provider.GatewayResponse, error)
	RequestDisbursement(ctx context.Context, amountCents int64, phone, txnUUID string) (*provider.GatewayResponse, error)
}

// PaymentLedger is the intent lifecycle surface of the ledger.
type PaymentLedger interface {
	CreateDeposit(ctx context.Context, userID uuid.UUID, amount int64, phone, transactionUUID string) (*domain.PaymentIntent, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, phone, transactionUUID string) (*domain.PaymentIntent, int64, error)
	FinalizeDeposit(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error)
	FinalizeWithdrawal(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error)
}

// IntentTracker attaches background reconciliation to an accepted intent.
type IntentTracker interface {
	Track(ctx context.Context, intent domain.PaymentIntent)
}

// PaymentLimits bounds deposit and withdrawal amounts in cents.
type PaymentLimits struct {
	MinDeposit  int64
	MaxDeposit  int64
	MinWithdraw int64
	MaxWithdraw int64
}

// PaymentService drives deposits and withdrawals against the mobile-money
// gateway. Money moves only inside the ledger: deposits credit on
// confirmation, withdrawals debit at intent creation and refund on failure.
type PaymentService struct {
	pool       *pgxpool.Pool
	users      repository.UserRepository
	payments   repository.PaymentRepository
	ledger     PaymentLedger
	gateway    PaymentGateway
	reconciler IntentTracker
	limits     PaymentLimits
	logger     *slog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	payments repository.PaymentRepository,
	led PaymentLedger,
	gateway PaymentGateway,
	reconciler IntentTracker,
	limits PaymentLimits,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		pool:       pool,
		users:      users,
		payments:   payments,
		ledger:     led,
		gateway:    gateway,
		reconciler: reconciler,
		limits:     limits,
		logger:     logger,
	}
}

// Deposit creates a pending deposit intent and asks the gateway to collect
// the funds. The balance is untouched until the reconciler confirms.
func (s *PaymentService) Deposit(ctx context.Context, userID uuid.UUID, amount int64, transactionUUID string) (*domain.PaymentIntent, error) {
	if err := domain.ValidateAmountRange(amount, s.limits.MinDeposit, s.limits.MaxDeposit); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if transactionUUID == "" {
		transactionUUID = uuid.New().String()
	}

	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	intent, err := s.ledger.CreateDeposit(ctx, userID, amount, user.Phone, transactionUUID)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.RequestCollection(ctx, amount, user.Phone, transactionUUID)
	if err != nil {
		// The gateway never saw the intent; close it out immediately.
		s.failIntent(ctx, intent, "gateway collection request failed: "+err.Error())
		return nil, err
	}
	if provider.ClassifyStatus(resp.Status) == provider.StatusFailed {
		reason := resp.Message
		if reason == "" {
			reason = "gateway rejected collection"
		}
		return s.finalizeSyncReject(ctx, intent, resp, reason)
	}

	s.reconciler.Track(context.WithoutCancel(ctx), *intent)
	s.logger.Info("deposit initiated",
		"paymentId", intent.ID, "userId", userID, "amount", amount)
	return intent, nil
}

// Withdraw debits the balance, creates a processing intent and asks the
// gateway to disburse. Returns the intent and the balance after the debit.
func (s *PaymentService) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, transactionUUID string) (*domain.PaymentIntent, int64, error) {
	if err := domain.ValidateAmountRange(amount, s.limits.MinWithdraw, s.limits.MaxWithdraw); err != nil {
		return nil, 0, domain.ErrValidation(err.Error())
	}
	if transactionUUID == "" {
		transactionUUID = uuid.New().String()
	}

	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	intent, balance, err := s.ledger.CreateWithdrawal(ctx, userID, amount, user.Phone, transactionUUID)
	if err != nil {
		return nil, 0, err
	}

	resp, err := s.gateway.RequestDisbursement(ctx, amount, user.Phone, transactionUUID)
	if err != nil {
		// Debit already committed; a failed finalize here is picked up by
		// Resume on the next boot.
		refunded := s.failIntent(ctx, intent, "gateway disbursement request failed: "+err.Error())
		if refunded != nil {
			balance += intent.Amount
		}
		return nil, 0, err
	}
	if provider.ClassifyStatus(resp.Status) == provider.StatusFailed {
		reason := resp.Message
		if reason == "" {
			reason = "gateway rejected disbursement"
		}
		_, err := s.finalizeSyncReject(ctx, intent, resp, reason)
		return nil, 0, err
	}

	s.reconciler.Track(context.WithoutCancel(ctx), *intent)
	s.logger.Info("withdrawal initiated",
		"paymentId", intent.ID, "userId", userID, "amount", amount, "balance", balance)
	return intent, balance, nil
}

// Status returns one of the caller's payment intents by gateway reference.
func (s *PaymentService) Status(ctx context.Context, userID uuid.UUID, transactionUUID string) (*domain.PaymentIntent, error) {
	intent, err := s.payments.FindByExternalID(ctx, s.pool, transactionUUID)
	if err != nil {
		return nil, domain.ErrInternal("find payment", err)
	}
	if intent == nil || intent.UserID != userID {
		return nil, domain.ErrNotFound("payment", transactionUUID)
	}
	return intent, nil
}

// History returns a page of the caller's payment intents, newest first, along
// with the limit and offset actually applied.
func (s *PaymentService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, int, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	intents, err := s.payments.ListByUser(ctx, s.pool, userID, limit, offset)
	if err != nil {
		return nil, 0, 0, domain.ErrInternal("list payments", err)
	}
	return intents, limit, offset, nil
}

func (s *PaymentService) lookupUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// finalizeSyncReject closes an intent the gateway rejected inline, refunding
// a withdrawal debit in the same transition.
func (s *PaymentService) finalizeSyncReject(ctx context.Context, intent *domain.PaymentIntent, resp *provider.GatewayResponse, reason string) (*domain.PaymentIntent, error) {
	var gatewayStatus, gatewayTxnID *string
	if resp.Status != "" {
		gatewayStatus = &resp.Status
	}
	if resp.TransactionID != "" {
		gatewayTxnID = &resp.TransactionID
	}

	var err error
	if intent.Type == domain.PaymentDeposit {
		_, err = s.ledger.FinalizeDeposit(ctx, intent.ID, domain.PaymentFailed, gatewayStatus, gatewayTxnID, &reason)
	} else {
		_, err = s.ledger.FinalizeWithdrawal(ctx, intent.ID, domain.PaymentFailed, gatewayStatus, gatewayTxnID, &reason)
	}
	if err != nil {
		s.logger.Error("sync-reject finalize failed, intent left for resume",
			"paymentId", intent.ID, "error", err)
		return nil, domain.ErrDownstream(reason, nil)
	}
	return nil, domain.ErrDownstream(reason, nil)
}

func (s *PaymentService) failIntent(ctx context.Context, intent *domain.PaymentIntent, reason string) *domain.PaymentIntent {
	var (
		out *domain.PaymentIntent
		err error
	)
	if intent.Type == domain.PaymentDeposit {
		out, err = s.ledger.FinalizeDeposit(ctx, intent.ID, domain.PaymentFailed, nil, nil, &reason)
	} else {
		out, err = s.ledger.FinalizeWithdrawal(ctx, intent.ID, domain.PaymentFailed, nil, nil, &reason)
	}
	if err != nil {
		s.logger.Error("intent failure finalize failed, intent left for resume",
			"paymentId", intent.ID, "error", err)
		return nil
	}
	return out
}
