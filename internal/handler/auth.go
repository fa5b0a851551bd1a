package handler

import (
	"net/http"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/service"
)

// AuthHandler handles registration, login and profile endpoints.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type authResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"userId"`
	Phone   string `json:"phone"`
	Balance string `json:"balance"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := DecodeJSON(w, r, &input); err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.svc.Register(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, authResponse{
		Token:   res.Token,
		UserID:  res.UserID.String(),
		Phone:   res.Phone,
		Balance: infra.FormatCents(res.Balance),
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := DecodeJSON(w, r, &input); err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.svc.Login(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, authResponse{
		Token:   res.Token,
		UserID:  res.UserID.String(),
		Phone:   res.Phone,
		Balance: infra.FormatCents(res.Balance),
	})
}

// Me handles GET /users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	user, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  user.ID.String(),
		"phone":   user.Phone,
		"balance": infra.FormatCents(user.Balance),
	})
}
