package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/ledger"
	"github.com/liftoff/platform/internal/service"
)

type stubEngine struct {
	snap    engine.Snapshot
	cashout *engine.CashoutResult
}

func (s *stubEngine) Status() engine.Snapshot { return s.snap }
func (s *stubEngine) Join(uuid.UUID, int64) (*engine.JoinResult, error) {
	return &engine.JoinResult{RoundID: s.snap.RoundID}, nil
}
func (s *stubEngine) Leave(uuid.UUID) {}
func (s *stubEngine) Cashout(uuid.UUID) (*engine.CashoutResult, error) {
	if s.cashout == nil {
		return nil, engine.ErrNotJoined
	}
	return s.cashout, nil
}

type stubLedger struct {
	placed  *ledger.PlaceBetResult
	settled *ledger.SettleResult
}

func (s *stubLedger) PlaceBet(context.Context, uuid.UUID, uuid.UUID, int64) (*ledger.PlaceBetResult, error) {
	return s.placed, nil
}
func (s *stubLedger) SettleCashout(context.Context, uuid.UUID, uuid.UUID, ledger.CashoutOutcome) (*ledger.SettleResult, error) {
	return s.settled, nil
}
func (s *stubLedger) RefundBet(context.Context, uuid.UUID) (*ledger.RefundResult, error) {
	return nil, errors.New("unexpected refund")
}

func testBetService(eng *stubEngine, led *stubLedger) *service.BetService {
	return service.NewBetService(eng, led,
		guard.NewThrottle(time.Nanosecond, time.Minute, 100),
		service.BetLimits{Min: 100, Max: 1_000_000},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, domain.ErrValidation("amount out of range"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "amount out of range", body["error"])
	assert.Equal(t, float64(400), body["errorCode"])
}

func TestErrorEnvelope_SanitizesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, domain.ErrInternal("select failed on users", errors.New("pq: boom")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal server error", body["error"])
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestErrorEnvelope_UnknownError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("plain"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, float64(500), decodeBody(t, rec)["errorCode"])
}

func TestPlaceBet_Created(t *testing.T) {
	roundID := uuid.New()
	eng := &stubEngine{snap: engine.Snapshot{
		RoundID: roundID, Status: domain.RoundRunning, Multiplier: 120, StartedAt: time.Now(),
	}}
	led := &stubLedger{placed: &ledger.PlaceBetResult{
		Bet:     &domain.Bet{ID: uuid.New(), RoundID: roundID, BetAmount: 1000},
		Balance: 4000,
	}}
	h := NewGameHandler(testBetService(eng, led))

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(`{"betAmount":"10.00"}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "10.00", body["betAmount"])
	assert.Equal(t, "40.00", body["balance"])
	assert.Equal(t, roundID.String(), body["roundId"])
}

func TestPlaceBet_RejectsSubCentAmount(t *testing.T) {
	h := NewGameHandler(testBetService(&stubEngine{}, &stubLedger{}))

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(`{"betAmount":"10.001"}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(400), decodeBody(t, rec)["errorCode"])
}

func TestPlaceBet_MalformedBody(t *testing.T) {
	h := NewGameHandler(testBetService(&stubEngine{}, &stubLedger{}))

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceBet_NoRunningRound(t *testing.T) {
	eng := &stubEngine{snap: engine.Snapshot{Status: domain.RoundWaiting, Multiplier: 100}}
	h := NewGameHandler(testBetService(eng, &stubLedger{}))

	req := httptest.NewRequest(http.MethodPost, "/bet", strings.NewReader(`{"betAmount":"10.00"}`))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no round is currently running")
}

func TestCashout_FormatsAmounts(t *testing.T) {
	roundID := uuid.New()
	eng := &stubEngine{cashout: &engine.CashoutResult{
		RoundID: roundID, Win: true, Multiplier: 320, Payout: 3200,
	}}
	led := &stubLedger{settled: &ledger.SettleResult{Payout: 3200, Balance: 7200}}
	h := NewGameHandler(testBetService(eng, led))

	req := httptest.NewRequest(http.MethodPost, "/cashout", nil)
	rec := httptest.NewRecorder()
	h.Cashout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "3.20", body["multiplier"])
	assert.Equal(t, "32.00", body["payout"])
	assert.Equal(t, "72.00", body["balance"])
}

func TestCashout_NoBet(t *testing.T) {
	h := NewGameHandler(testBetService(&stubEngine{}, &stubLedger{}))

	req := httptest.NewRequest(http.MethodPost, "/cashout", nil)
	rec := httptest.NewRecorder()
	h.Cashout(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoundSummaryWithholdsCrashPointUntilCrash(t *testing.T) {
	round := domain.Round{
		RoundID:        uuid.New(),
		ServerSeedHash: []byte{0xab, 0xcd},
		CrashPoint:     350,
		Status:         domain.RoundRunning,
		StartedAt:      time.Now(),
	}

	live := summarize(round)
	assert.Equal(t, string(domain.RoundRunning), live.Status)
	assert.Empty(t, live.CrashPoint, "live rounds must not disclose the crash point")

	ended := time.Now()
	round.Status = domain.RoundCrashed
	round.EndedAt = &ended
	crashed := summarize(round)
	assert.Equal(t, "3.50", crashed.CrashPoint)
}

type stubRefunder struct {
	res *ledger.RefundResult
	err error
}

func (s stubRefunder) RefundBet(context.Context, uuid.UUID) (*ledger.RefundResult, error) {
	return s.res, s.err
}

func adminRequest(t *testing.T, h *AdminHandler, betID string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/admin/bets/{betId}/refund", h.RefundBet)
	req := httptest.NewRequest(http.MethodPost, "/admin/bets/"+betID+"/refund", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminRefund_Success(t *testing.T) {
	betID := uuid.New()
	h := NewAdminHandler(stubRefunder{res: &ledger.RefundResult{
		Bet:     &domain.Bet{ID: betID, UserID: uuid.New(), BetAmount: 1500, Status: domain.BetRefunded},
		Balance: 6500,
	}})

	rec := adminRequest(t, h, betID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "15.00", body["refunded"])
	assert.Equal(t, "65.00", body["newBalance"])
	assert.Equal(t, false, body["idempotent"])
}

func TestAdminRefund_InvalidID(t *testing.T) {
	h := NewAdminHandler(stubRefunder{})
	rec := adminRequest(t, h, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRefund_CashedConflict(t *testing.T) {
	h := NewAdminHandler(stubRefunder{err: domain.ErrConflict("cashed bets cannot be refunded")})
	rec := adminRequest(t, h, uuid.New().String())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, float64(409), decodeBody(t, rec)["errorCode"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.8:55555"
	assert.Equal(t, "10.0.0.8", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestRateLimitByIP(t *testing.T) {
	limiter := guard.NewRateLimiter(1, time.Minute, 100)
	mw := RateLimitByIP(limiter, "login")
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.9:1234"

	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, float64(429), decodeBody(t, rec)["errorCode"])
}
