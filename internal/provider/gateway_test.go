package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/infra"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		in   string
		want StatusClass
	}{
		{"SUCCESSFUL", StatusSuccess},
		{"success", StatusSuccess},
		{"Confirmed", StatusSuccess},
		{"COMPLETED", StatusSuccess},
		{"ok", StatusSuccess},
		{"FAILED", StatusFailed},
		{"failure", StatusFailed},
		{"Rejected", StatusFailed},
		{"DECLINED", StatusFailed},
		{"error", StatusFailed},
		{"PENDING", StatusPending},
		{"processing", StatusPending},
		{"", StatusPending},
		{"SOMETHING_NEW", StatusPending},
		{"  success  ", StatusSuccess},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.in), "status %q", tt.in)
	}
}

func newTestGateway(collectionURL, disburseURL string) *MobileGateway {
	cfg := &infra.Config{
		GatewayCollectionURL: collectionURL,
		GatewayDisburseURL:   disburseURL,
		GatewayToken:         "test-token",
		GatewayAccount:       "256700000000",
	}
	breaker := guard.NewCircuitBreaker(3, time.Second)
	return NewMobileGateway(cfg, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestCollectionSendsExpectedBody(t *testing.T) {
	var got GatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(GatewayResponse{TransactionID: "gw-1", Status: "PENDING"})
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, srv.URL)
	resp, err := g.RequestCollection(context.Background(), 5000, "+256701234567", "uuid-1")
	require.NoError(t, err)

	assert.Equal(t, "50.00", got.Amount)
	assert.Equal(t, "+256701234567", got.Sender)
	assert.Equal(t, "256700000000", got.Receiver)
	assert.Equal(t, "uuid-1", got.UUID)
	assert.Equal(t, "test-token", got.Token)
	assert.Equal(t, "gw-1", resp.TransactionID)
}

func TestRequestDisbursementSwapsSenderReceiver(t *testing.T) {
	var got GatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(GatewayResponse{TransactionID: "gw-2", Status: "PENDING"})
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, srv.URL)
	_, err := g.RequestDisbursement(context.Background(), 2000, "+256701234567", "uuid-2")
	require.NoError(t, err)

	assert.Equal(t, "256700000000", got.Sender)
	assert.Equal(t, "+256701234567", got.Receiver)
	assert.Equal(t, "20.00", got.Amount)
}

func TestCheckStatusHitsStatusPath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(GatewayResponse{Status: "SUCCESSFUL"})
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, srv.URL)
	resp, err := g.CheckStatus(context.Background(), domain.PaymentDeposit, "uuid-3")
	require.NoError(t, err)

	assert.Equal(t, "/status", path)
	assert.Equal(t, StatusSuccess, ClassifyStatus(resp.Status))
}

func TestServerErrorSurfacesAsDownstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, srv.URL)
	_, err := g.RequestCollection(context.Background(), 1000, "+256701234567", "uuid-4")
	require.Error(t, err)

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 502, appErr.Status)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, srv.URL)
	for i := 0; i < 3; i++ {
		_, err := g.RequestCollection(context.Background(), 1000, "+256701234567", "uuid-5")
		require.Error(t, err)
	}

	// Breaker is open now; the next call must not reach the server.
	_, err := g.RequestCollection(context.Background(), 1000, "+256701234567", "uuid-6")
	require.Error(t, err)
	assert.Equal(t, 3, hits)
}
