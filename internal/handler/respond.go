package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liftoff/platform/internal/domain"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes the error envelope {"error": msg, "errorCode": status}.
// Anything that is not a domain.AppError becomes a sanitized 500.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Status == http.StatusInternalServerError {
			msg = "internal server error"
		}
		RespondJSON(w, appErr.Status, map[string]interface{}{
			"error":     msg,
			"errorCode": appErr.Status,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error":     "internal server error",
		"errorCode": http.StatusInternalServerError,
	})
}

// DecodeJSON reads and decodes a JSON request body into dst, capped at 1 MiB.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation("malformed JSON body")
	}
	return nil
}
