package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/ledger"
)

// BetRefunder is the ledger surface behind the admin refund endpoint.
type BetRefunder interface {
	RefundBet(ctx context.Context, betID uuid.UUID) (*ledger.RefundResult, error)
}

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	ledger BetRefunder
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(led BetRefunder) *AdminHandler {
	return &AdminHandler{ledger: led}
}

// RefundBet handles POST /admin/bets/{betId}/refund. Replays return the
// already-refunded state with 200 rather than erroring.
func (h *AdminHandler) RefundBet(w http.ResponseWriter, r *http.Request) {
	betID, err := uuid.Parse(chi.URLParam(r, "betId"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid bet id"))
		return
	}

	res, err := h.ledger.RefundBet(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"betId":      res.Bet.ID.String(),
		"userId":     res.Bet.UserID.String(),
		"status":     string(res.Bet.Status),
		"refunded":   infra.FormatCents(res.Bet.BetAmount),
		"newBalance": infra.FormatCents(res.Balance),
		"idempotent": res.Idempotent,
	})
}
