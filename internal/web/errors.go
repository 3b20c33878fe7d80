package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/security"
)

// errorResponse is the JSON body for all error replies. Messages are
// generic: internal detail stays in the daemon log.
type errorResponse struct {
	Error string `json:"error"`
	// CSRFToken is set only when the request had already consumed its
	// CSRF token, so a rejected body does not strand the client
	// without a usable replacement.
	CSRFToken string `json:"csrf_token,omitempty"`
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code, msg := mapError(err)
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeErrorWithToken is writeError for requests past CSRF validation:
// the rotated token rides along on the error body.
func writeErrorWithToken(w http.ResponseWriter, err error, csrf string) {
	code, msg := mapError(err)
	writeJSON(w, code, errorResponse{Error: msg, CSRFToken: csrf})
}

func mapError(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	code := http.StatusBadRequest
	msg := "invalid request"

	switch {
	case errors.Is(err, security.ErrInvalidCredentials),
		errors.Is(err, security.ErrSessionExpired),
		errors.Is(err, security.ErrOwnerMismatch):
		code = http.StatusUnauthorized
		msg = "authentication required"
	case errors.Is(err, security.ErrCSRFMismatch):
		code = http.StatusForbidden
		msg = "forbidden"
	case errors.Is(err, security.ErrRateLimited),
		errors.Is(err, security.ErrLockedOut):
		code = http.StatusTooManyRequests
		msg = "too many requests"
	case errors.Is(err, relay.ErrRapidSwitch):
		code = http.StatusConflict
		msg = "switching too fast"
	case errors.Is(err, relay.ErrHardwareFault):
		code = http.StatusInternalServerError
		msg = "hardware fault"
	case errors.As(err, &maxBytes):
		code = http.StatusRequestEntityTooLarge
		msg = "request too large"
	case errors.Is(err, security.ErrInvalidInput):
		// 400 with the generic message; the field name is in the log.
	}

	return code, msg
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
