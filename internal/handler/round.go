package handler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/service"
)

// RoundHandler serves round state, history, provable-fairness data and the
// live tick stream.
type RoundHandler struct {
	rounds      *service.RoundService
	broadcaster *engine.Broadcaster
}

// NewRoundHandler creates a new RoundHandler.
func NewRoundHandler(rounds *service.RoundService, broadcaster *engine.Broadcaster) *RoundHandler {
	return &RoundHandler{rounds: rounds, broadcaster: broadcaster}
}

type roundStatusResponse struct {
	RoundID        string `json:"roundId"`
	Status         string `json:"status"`
	Multiplier     string `json:"multiplier"`
	StartedAt      int64  `json:"startedAt,omitempty"`
	CommitIdx      *int64 `json:"commitIdx,omitempty"`
	ServerSeedHash string `json:"serverSeedHash,omitempty"`
}

func statusResponse(st service.RoundStatus) roundStatusResponse {
	return roundStatusResponse{
		RoundID:        st.RoundID.String(),
		Status:         string(st.Status),
		Multiplier:     infra.FormatHundredths(st.Multiplier),
		StartedAt:      st.StartedAt,
		CommitIdx:      st.CommitIdx,
		ServerSeedHash: st.ServerSeedHash,
	}
}

// Status handles GET /round/status.
func (h *RoundHandler) Status(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, statusResponse(h.rounds.Status(r.Context())))
}

type roundSummary struct {
	RoundID        string `json:"roundId"`
	Status         string `json:"status"`
	CrashPoint     string `json:"crashPoint,omitempty"`
	CommitIdx      *int64 `json:"commitIdx,omitempty"`
	ServerSeedHash string `json:"serverSeedHash"`
	StartedAt      int64  `json:"startedAt"`
	EndedAt        *int64 `json:"endedAt,omitempty"`
}

// summarize renders a stored round. The crash point is withheld until the
// round has crashed; before that it would spoil the commitment scheme.
func summarize(round domain.Round) roundSummary {
	s := roundSummary{
		RoundID:        round.RoundID.String(),
		Status:         string(round.Status),
		CommitIdx:      round.CommitIdx,
		ServerSeedHash: hex.EncodeToString(round.ServerSeedHash),
		StartedAt:      round.StartedAt.UnixMilli(),
	}
	if round.Status == domain.RoundCrashed {
		s.CrashPoint = infra.FormatHundredths(round.CrashPoint)
	}
	if round.EndedAt != nil {
		ended := round.EndedAt.UnixMilli()
		s.EndedAt = &ended
	}
	return s
}

// History handles GET /round/history.
func (h *RoundHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rounds, err := h.rounds.History(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	out := make([]roundSummary, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, summarize(round))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"rounds": out})
}

type betSummary struct {
	BetID     string `json:"betId"`
	RoundID   string `json:"roundId"`
	BetAmount string `json:"betAmount"`
	Payout    string `json:"payout,omitempty"`
	Status    string `json:"status"`
	PlacedAt  int64  `json:"placedAt"`
}

func summarizeBet(bet domain.Bet) betSummary {
	s := betSummary{
		BetID:     bet.ID.String(),
		RoundID:   bet.RoundID.String(),
		BetAmount: infra.FormatCents(bet.BetAmount),
		Status:    string(bet.Status),
		PlacedAt:  bet.BetPlacedAt.UnixMilli(),
	}
	if bet.Payout != nil {
		s.Payout = infra.FormatCents(*bet.Payout)
	}
	return s
}

// GetRound handles GET /round/{roundId}.
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(chi.URLParam(r, "roundId"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid round id"))
		return
	}

	detail, err := h.rounds.Detail(r.Context(), roundID)
	if err != nil {
		RespondError(w, err)
		return
	}
	bets := make([]betSummary, 0, len(detail.Bets))
	for _, bet := range detail.Bets {
		bets = append(bets, summarizeBet(bet))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"round": summarize(detail.Round),
		"bets":  bets,
	})
}

// LatestCommitment handles GET /commitments/latest.
func (h *RoundHandler) LatestCommitment(w http.ResponseWriter, r *http.Request) {
	commit, err := h.rounds.LatestCommitment(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, commit)
}

// Reveal handles GET /reveal/{roundId}.
func (h *RoundHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(chi.URLParam(r, "roundId"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid round id"))
		return
	}

	rev, err := h.rounds.Reveal(r.Context(), roundID)
	if err != nil {
		RespondError(w, err)
		return
	}
	out := map[string]interface{}{
		"roundId":        rev.RoundID.String(),
		"commitIdx":      rev.CommitIdx,
		"serverSeed":     rev.ServerSeed,
		"serverSeedHash": rev.ServerSeedHash,
		"crashPoint":     infra.FormatHundredths(rev.CrashPoint),
		"startedAt":      rev.StartedAt.UnixMilli(),
	}
	if rev.EndedAt != nil {
		out["endedAt"] = rev.EndedAt.UnixMilli()
		out["revealedAt"] = rev.EndedAt.UnixMilli()
	}
	RespondJSON(w, http.StatusOK, out)
}

// MyBets handles GET /bets/me.
func (h *RoundHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	userID := auth.UserIDFromContext(r.Context())
	bets, err := h.rounds.BetHistory(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	out := make([]betSummary, 0, len(bets))
	for _, bet := range bets {
		out = append(out, summarizeBet(bet))
	}
	RespondJSON(w, http.StatusOK, out)
}

// Stream handles GET /round/stream: a server-sent-events feed of ticks. A
// slow client misses ticks rather than slowing the broadcaster down.
func (h *RoundHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported", nil))
		return
	}

	ticks, cancel := h.broadcaster.Subscribe(1)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ticks:
			if !open {
				return
			}
			st := service.RoundStatus{
				RoundID:        snap.RoundID,
				Status:         snap.Status,
				Multiplier:     snap.Multiplier,
				CommitIdx:      snap.CommitIdx,
				ServerSeedHash: hex.EncodeToString(snap.SeedHash),
			}
			if !snap.StartedAt.IsZero() {
				st.StartedAt = snap.StartedAt.UnixMilli()
			}
			payload, err := json.Marshal(statusResponse(st))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: tick\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
