// Package reconcile drives in-flight payment intents to a terminal state by
// polling the payment gateway in the background. All balance effects happen
// in the ledger under row locks, so duplicate answers cannot double-credit
// or double-refund.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/provider"
	"github.com/liftoff/platform/internal/repository"
)

// Gateway is the status-polling surface of the payment gateway.
type Gateway interface {
	CheckStatus(ctx context.Context, typ domain.PaymentType, txnUUID string) (*provider.GatewayResponse, error)
}

// Finalizer is the ledger's terminal-transition surface.
type Finalizer interface {
	FinalizeDeposit(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error)
	FinalizeWithdrawal(ctx context.Context, intentID uuid.UUID, status domain.PaymentStatus, gatewayStatus, gatewayTxnID, errorReason *string) (*domain.PaymentIntent, error)
}

// IntentLister lists intents that still need reconciliation.
type IntentLister interface {
	ListNonTerminal(ctx context.Context, db repository.DBTX) ([]domain.PaymentIntent, error)
}

// Reconciler supervises one polling task per in-flight intent. The semaphore
// bounds concurrency; Wait blocks until every task has finished.
type Reconciler struct {
	gateway  Gateway
	ledger   Finalizer
	payments IntentLister
	db       repository.DBTX
	logger   *slog.Logger

	attempts int
	interval time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a reconciler polling up to attempts times per intent at the
// given interval, with at most maxConcurrent polling tasks.
func New(gateway Gateway, ledger Finalizer, payments IntentLister, db repository.DBTX, attempts int, interval time.Duration, maxConcurrent int, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		gateway:  gateway,
		ledger:   ledger,
		payments: payments,
		db:       db,
		logger:   logger,
		attempts: attempts,
		interval: interval,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Track starts a background polling task for the intent. ctx cancellation
// stops polling between attempts; a transition already underway completes on
// its own detached deadline.
func (r *Reconciler) Track(ctx context.Context, intent domain.PaymentIntent) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-ctx.Done():
			return
		}
		r.poll(ctx, intent)
	}()
}

// Resume re-attaches polling tasks to every non-terminal intent, called once
// at boot so a restart does not strand in-flight payments.
func (r *Reconciler) Resume(ctx context.Context) error {
	intents, err := r.payments.ListNonTerminal(ctx, r.db)
	if err != nil {
		return err
	}
	for _, intent := range intents {
		r.logger.Info("resuming payment reconciliation",
			"paymentId", intent.ID, "type", intent.Type, "status", intent.Status)
		r.Track(ctx, intent)
	}
	return nil
}

// Wait blocks until all polling tasks have exited.
func (r *Reconciler) Wait() { r.wg.Wait() }

func (r *Reconciler) poll(ctx context.Context, intent domain.PaymentIntent) {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= r.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		resp, err := r.gateway.CheckStatus(ctx, intent.Type, intent.ExternalID)
		if err != nil {
			r.logger.Warn("payment status poll failed",
				"paymentId", intent.ID, "attempt", attempt, "error", err)
		} else {
			switch provider.ClassifyStatus(resp.Status) {
			case provider.StatusSuccess:
				r.finalize(intent, domain.PaymentConfirmed, resp, nil)
				return
			case provider.StatusFailed:
				reason := resp.Message
				if reason == "" {
					reason = "gateway reported failure"
				}
				r.finalize(intent, domain.PaymentFailed, resp, &reason)
				return
			}
		}

		if attempt == r.attempts {
			reason := "polling attempts exhausted"
			r.finalize(intent, domain.PaymentExpired, resp, &reason)
			return
		}
		timer.Reset(r.interval)
	}
}

// finalize runs the terminal ledger transition on a detached deadline so a
// shutdown mid-transition still commits or aborts cleanly.
func (r *Reconciler) finalize(intent domain.PaymentIntent, status domain.PaymentStatus, resp *provider.GatewayResponse, reason *string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var gatewayStatus, gatewayTxnID *string
	if resp != nil {
		if resp.Status != "" {
			gatewayStatus = &resp.Status
		}
		if resp.TransactionID != "" {
			gatewayTxnID = &resp.TransactionID
		}
	}

	var err error
	if intent.Type == domain.PaymentDeposit {
		_, err = r.ledger.FinalizeDeposit(ctx, intent.ID, status, gatewayStatus, gatewayTxnID, reason)
	} else {
		_, err = r.ledger.FinalizeWithdrawal(ctx, intent.ID, status, gatewayStatus, gatewayTxnID, reason)
	}
	if err != nil {
		r.logger.Error("payment finalization failed; intent left for resume",
			"paymentId", intent.ID, "target", status, "error", err)
		return
	}
	r.logger.Info("payment finalized",
		"paymentId", intent.ID, "type", intent.Type, "status", status)
}
