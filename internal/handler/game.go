package handler

import (
	"encoding/hex"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/service"
)

// GameHandler handles the wager endpoints: placing a bet on the running
// round and cashing it out.
type GameHandler struct {
	bets *service.BetService
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(bets *service.BetService) *GameHandler {
	return &GameHandler{bets: bets}
}

type placeBetRequest struct {
	// BetAmount is a decimal string ("10.00"); bare numbers also parse.
	BetAmount decimal.Decimal `json:"betAmount"`
}

type placeBetResponse struct {
	BetID          string `json:"betId"`
	RoundID        string `json:"roundId"`
	BetAmount      string `json:"betAmount"`
	Balance        string `json:"balance"`
	ServerSeedHash string `json:"serverSeedHash,omitempty"`
	StartedAt      int64  `json:"startedAt,omitempty"` // unix millis
}

// PlaceBet handles POST /bet.
func (h *GameHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		RespondError(w, err)
		return
	}
	amount, err := infra.ParseCents(req.BetAmount)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	res, err := h.bets.PlaceBet(r.Context(), userID, amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := placeBetResponse{
		BetID:          res.BetID.String(),
		RoundID:        res.RoundID.String(),
		BetAmount:      infra.FormatCents(res.BetAmount),
		Balance:        infra.FormatCents(res.NewBalance),
		ServerSeedHash: hex.EncodeToString(res.ServerSeedHash),
	}
	if !res.StartedAt.IsZero() {
		resp.StartedAt = res.StartedAt.UnixMilli()
	}
	RespondJSON(w, http.StatusCreated, resp)
}

type cashoutResponse struct {
	RoundID    string `json:"roundId"`
	Success    bool   `json:"success"`
	Multiplier string `json:"multiplier"`
	Payout     string `json:"payout"`
	Balance    string `json:"balance"`
	Idempotent bool   `json:"idempotent"`
}

// Cashout handles POST /cashout.
func (h *GameHandler) Cashout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	res, err := h.bets.Cashout(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cashoutResponse{
		RoundID:    res.RoundID.String(),
		Success:    res.Win,
		Multiplier: infra.FormatHundredths(res.Multiplier),
		Payout:     infra.FormatCents(res.Payout),
		Balance:    infra.FormatCents(res.NewBalance),
		Idempotent: res.Idempotent,
	})
}
