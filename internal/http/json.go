package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/storefront/internal/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteAppError writes err as JSON with a status derived from its AppError code.
// Only the user-facing message is exposed.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteJSON(w, StatusFor(err), map[string]string{
		"error":   string(code),
		"message": apperrors.UserMessage(err, "Something went wrong. Please try again."),
	})
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case apperrors.ErrCodeNetwork, apperrors.ErrCodeRoleQuery:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeResolutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
