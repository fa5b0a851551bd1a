package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/provider"
	"github.com/liftoff/platform/internal/repository"
)

// scriptedGateway replays a fixed sequence of status answers.
type scriptedGateway struct {
	mu      sync.Mutex
	answers []gatewayAnswer
	calls   int
}

type gatewayAnswer struct {
	status string
	err    error
}

func (g *scriptedGateway) CheckStatus(context.Context, domain.PaymentType, string) (*provider.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var a gatewayAnswer
	if g.calls < len(g.answers) {
		a = g.answers[g.calls]
	} else {
		a = gatewayAnswer{status: "PENDING"}
	}
	g.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &provider.GatewayResponse{TransactionID: "gw-txn", Status: a.status}, nil
}

// recordingFinalizer captures terminal transitions.
type recordingFinalizer struct {
	mu          sync.Mutex
	deposits    []domain.PaymentStatus
	withdrawals []domain.PaymentStatus
}

func (f *recordingFinalizer) FinalizeDeposit(_ context.Context, _ uuid.UUID, status domain.PaymentStatus, _, _, _ *string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, status)
	return &domain.PaymentIntent{Status: status}, nil
}

func (f *recordingFinalizer) FinalizeWithdrawal(_ context.Context, _ uuid.UUID, status domain.PaymentStatus, _, _, _ *string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals = append(f.withdrawals, status)
	return &domain.PaymentIntent{Status: status}, nil
}

type staticLister struct{ intents []domain.PaymentIntent }

func (l staticLister) ListNonTerminal(context.Context, repository.DBTX) ([]domain.PaymentIntent, error) {
	return l.intents, nil
}

func newTestReconciler(gw Gateway, fin Finalizer, lister IntentLister, attempts int) *Reconciler {
	return New(gw, fin, lister, nil, attempts, time.Millisecond, 4,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func depositIntent() domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Type:       domain.PaymentDeposit,
		Amount:     5000,
		ExternalID: "ext-1",
		Status:     domain.PaymentPending,
	}
}

func withdrawIntent() domain.PaymentIntent {
	intent := depositIntent()
	intent.Type = domain.PaymentWithdraw
	intent.Status = domain.PaymentProcessing
	return intent
}

func TestDepositConfirmedOnThirdAttempt(t *testing.T) {
	gw := &scriptedGateway{answers: []gatewayAnswer{
		{status: "PENDING"},
		{status: "PENDING"},
		{status: "SUCCESSFUL"},
	}}
	fin := &recordingFinalizer{}
	r := newTestReconciler(gw, fin, staticLister{}, 10)

	r.Track(context.Background(), depositIntent())
	r.Wait()

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentConfirmed}, fin.deposits)
	assert.Equal(t, 3, gw.calls)
}

func TestWithdrawalFailureTriggersRefundTransition(t *testing.T) {
	gw := &scriptedGateway{answers: []gatewayAnswer{{status: "FAILED"}}}
	fin := &recordingFinalizer{}
	r := newTestReconciler(gw, fin, staticLister{}, 10)

	r.Track(context.Background(), withdrawIntent())
	r.Wait()

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentFailed}, fin.withdrawals)
	assert.Empty(t, fin.deposits)
}

func TestExhaustedPollingExpiresIntent(t *testing.T) {
	gw := &scriptedGateway{}
	fin := &recordingFinalizer{}
	r := newTestReconciler(gw, fin, staticLister{}, 3)

	r.Track(context.Background(), withdrawIntent())
	r.Wait()

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentExpired}, fin.withdrawals)
	assert.Equal(t, 3, gw.calls)
}

func TestGatewayErrorsAreRetried(t *testing.T) {
	gw := &scriptedGateway{answers: []gatewayAnswer{
		{err: errors.New("connection refused")},
		{status: "SUCCESSFUL"},
	}}
	fin := &recordingFinalizer{}
	r := newTestReconciler(gw, fin, staticLister{}, 10)

	r.Track(context.Background(), depositIntent())
	r.Wait()

	assert.Equal(t, []domain.PaymentStatus{domain.PaymentConfirmed}, fin.deposits)
}

func TestCancellationStopsPollingWithoutTransition(t *testing.T) {
	gw := &scriptedGateway{}
	fin := &recordingFinalizer{}
	r := New(gw, fin, staticLister{}, nil, 100, time.Hour, 4,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	r.Track(ctx, depositIntent())
	cancel()
	r.Wait()

	assert.Empty(t, fin.deposits)
	assert.Empty(t, fin.withdrawals)
}

func TestResumeTracksAllNonTerminalIntents(t *testing.T) {
	gw := &scriptedGateway{answers: []gatewayAnswer{
		{status: "SUCCESSFUL"},
		{status: "SUCCESSFUL"},
	}}
	fin := &recordingFinalizer{}
	lister := staticLister{intents: []domain.PaymentIntent{depositIntent(), withdrawIntent()}}
	r := newTestReconciler(gw, fin, lister, 10)

	require.NoError(t, r.Resume(context.Background()))
	r.Wait()

	assert.Len(t, fin.deposits, 1)
	assert.Len(t, fin.withdrawals, 1)
}
