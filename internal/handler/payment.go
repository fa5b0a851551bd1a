package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/service"

	"github.com/go-chi/chi/v5"
)

// PaymentHandler handles deposit and withdrawal endpoints. Initiations
// return 202: the money moves only when the reconciler confirms.
type PaymentHandler struct {
	svc *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	// TransactionUUID lets clients retry initiation idempotently; generated
	// server-side when absent.
	TransactionUUID string `json:"transactionUUID"`
}

type paymentResponse struct {
	PaymentID       string  `json:"paymentId"`
	TransactionUUID string  `json:"transactionUUID"`
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	Status          string  `json:"status"`
	NewBalance      *string `json:"newBalance,omitempty"`
	ErrorReason     *string `json:"errorReason,omitempty"`
}

func intentResponse(intent *domain.PaymentIntent) paymentResponse {
	return paymentResponse{
		PaymentID:       intent.ID.String(),
		TransactionUUID: intent.ExternalID,
		Type:            string(intent.Type),
		Amount:          infra.FormatCents(intent.Amount),
		Status:          string(intent.Status),
		ErrorReason:     intent.ErrorReason,
	}
}

// Deposit handles POST /payments/deposit.
func (h *PaymentHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		RespondError(w, err)
		return
	}
	amount, err := infra.ParseCents(req.Amount)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	intent, err := h.svc.Deposit(r.Context(), userID, amount, req.TransactionUUID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, intentResponse(intent))
}

// Withdraw handles POST /payments/withdraw.
func (h *PaymentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		RespondError(w, err)
		return
	}
	amount, err := infra.ParseCents(req.Amount)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	intent, balance, err := h.svc.Withdraw(r.Context(), userID, amount, req.TransactionUUID)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := intentResponse(intent)
	formatted := infra.FormatCents(balance)
	resp.NewBalance = &formatted
	RespondJSON(w, http.StatusAccepted, resp)
}

// Status handles GET /payments/status/{transactionId}.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	if transactionID == "" {
		RespondError(w, domain.ErrValidation("transaction id is required"))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	intent, err := h.svc.Status(r.Context(), userID, transactionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, intentResponse(intent))
}

// History handles GET /payments/history.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	userID := auth.UserIDFromContext(r.Context())

	intents, limit, offset, err := h.svc.History(r.Context(), userID, limit, offset)
	if err != nil {
		RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(intents))
	for i := range intents {
		out = append(out, intentResponse(&intents[i]))
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"count":        len(out),
		"limit":        limit,
		"offset":       offset,
	})
}
