//go:build integration

package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/provider"
)

// FakeGateway stands in for the mobile-money gateway. It answers every call
// with a configurable status and records the calls it saw.
type FakeGateway struct {
	mu sync.Mutex

	CollectStatus  string
	DisburseStatus string
	Err            error

	Collections   []string // txn UUIDs in call order
	Disbursements []string
}

// NewFakeGateway returns a gateway that reports every transaction pending.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{CollectStatus: "PENDING", DisburseStatus: "PENDING"}
}

func (g *FakeGateway) RequestCollection(_ context.Context, _ int64, _, txnUUID string) (*provider.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Collections = append(g.Collections, txnUUID)
	return &provider.GatewayResponse{
		TransactionID: uuid.New().String(),
		Status:        g.CollectStatus,
	}, nil
}

func (g *FakeGateway) RequestDisbursement(_ context.Context, _ int64, _, txnUUID string) (*provider.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Disbursements = append(g.Disbursements, txnUUID)
	return &provider.GatewayResponse{
		TransactionID: uuid.New().String(),
		Status:        g.DisburseStatus,
	}, nil
}

// NopTracker drops accepted intents instead of polling the gateway, so tests
// observe intents in the exact state the request left them in.
type NopTracker struct{}

func (NopTracker) Track(context.Context, domain.PaymentIntent) {}
