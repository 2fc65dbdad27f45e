package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "racepass/pkg/domain-errors"
)

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// DecodeJSON decodes a JSON request body into the target type.
// Returns the decoded value and true on success.
// On failure, writes an error response and returns nil, false.
//
// Usage:
//
//	req, ok := httputil.DecodeJSON[VerifyRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "failed to decode request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// DecodeAndValidate combines JSON decoding with request validation.
// If the target type implements Validatable, Validate() is called and its
// error written to the response on failure.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if v, isValidatable := any(req).(Validatable); isValidatable {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return nil, false
		}
	}
	return req, true
}
