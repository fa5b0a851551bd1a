// Package provider wraps the external mobile-money payment gateway: one base
// URL for collections (deposits), one for disbursements (withdrawals).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/infra"
)

// StatusClass buckets the gateway's free-form status strings.
type StatusClass int

const (
	StatusPending StatusClass = iota
	StatusSuccess
	StatusFailed
)

// ClassifyStatus maps a gateway status string, case-insensitively, onto a
// terminal-success / terminal-failure / still-pending bucket. Unknown strings
// are pending: polling continues until the attempt budget runs out.
func ClassifyStatus(s string) StatusClass {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESSFUL", "SUCCESS", "CONFIRMED", "COMPLETED", "OK":
		return StatusSuccess
	case "FAILED", "FAILURE", "ERROR", "REJECTED", "DECLINED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// GatewayRequest is the JSON body for collection and disbursement calls.
type GatewayRequest struct {
	Amount      string `json:"amount"` // decimal string, scale 2
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	UUID        string `json:"uuid"`
	Token       string `json:"token"`
	Description string `json:"description"`
}

// GatewayResponse is the gateway's reply to any call.
type GatewayResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// MobileGateway is the HTTP client for the payment gateway, guarded by a
// circuit breaker so a dead gateway fails fast instead of tying up workers.
type MobileGateway struct {
	collectionURL string
	disburseURL   string
	token         string
	account       string
	client        *http.Client
	breaker       *guard.CircuitBreaker
	logger        *slog.Logger
}

// NewMobileGateway creates a gateway client from config.
func NewMobileGateway(cfg *infra.Config, breaker *guard.CircuitBreaker, logger *slog.Logger) *MobileGateway {
	return &MobileGateway{
		collectionURL: strings.TrimRight(cfg.GatewayCollectionURL, "/"),
		disburseURL:   strings.TrimRight(cfg.GatewayDisburseURL, "/"),
		token:         cfg.GatewayToken,
		account:       cfg.GatewayAccount,
		client:        &http.Client{Timeout: 10 * time.Second},
		breaker:       breaker,
		logger:        logger,
	}
}

// RequestCollection asks the gateway to pull amountCents from the user's
// mobile-money account (deposit).
func (g *MobileGateway) RequestCollection(ctx context.Context, amountCents int64, phone, txnUUID string) (*GatewayResponse, error) {
	return g.post(ctx, g.collectionURL, GatewayRequest{
		Amount:      infra.FormatCents(amountCents),
		Sender:      phone,
		Receiver:    g.account,
		UUID:        txnUUID,
		Token:       g.token,
		Description: "deposit",
	})
}

// RequestDisbursement asks the gateway to push amountCents to the user's
// mobile-money account (withdrawal).
func (g *MobileGateway) RequestDisbursement(ctx context.Context, amountCents int64, phone, txnUUID string) (*GatewayResponse, error) {
	return g.post(ctx, g.disburseURL, GatewayRequest{
		Amount:      infra.FormatCents(amountCents),
		Sender:      g.account,
		Receiver:    phone,
		UUID:        txnUUID,
		Token:       g.token,
		Description: "withdrawal",
	})
}

// CheckStatus polls the gateway for the current state of a transaction.
func (g *MobileGateway) CheckStatus(ctx context.Context, typ domain.PaymentType, txnUUID string) (*GatewayResponse, error) {
	base := g.collectionURL
	if typ == domain.PaymentWithdraw {
		base = g.disburseURL
	}
	return g.post(ctx, base+"/status", GatewayRequest{UUID: txnUUID, Token: g.token})
}

func (g *MobileGateway) post(ctx context.Context, url string, body GatewayRequest) (*GatewayResponse, error) {
	if res := g.breaker.Check(); !res.Allowed {
		return nil, domain.ErrDownstream(res.Reason, nil)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, domain.ErrDownstream("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		g.breaker.RecordFailure()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.ErrDownstream(fmt.Sprintf("payment gateway error (status %d)", resp.StatusCode), fmt.Errorf("%s", raw))
	}

	var out GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.breaker.RecordFailure()
		return nil, domain.ErrDownstream("decode gateway response", err)
	}

	g.breaker.RecordSuccess()
	g.logger.Debug("gateway call",
		"url", url, "uuid", body.UUID, "status", out.Status, "txnId", out.TransactionID)
	return &out, nil
}
