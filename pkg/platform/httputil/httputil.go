// Package httputil centralizes JSON response writing and request decoding so
// handlers stay thin and error envelopes stay consistent across endpoints.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "arbiter/pkg/domain-errors"
)

// Preparer is implemented by request payloads that normalize or validate
// themselves after decoding. DecodeAndPrepare calls it when present.
type Preparer interface {
	Prepare() error
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the standard JSON error envelope:
//
//	{"error": "<code>", "error_description": "<message>"}
//
// Untyped errors map to internal_error. Descriptions are omitted for 5xx
// responses so internal details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := ""

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}

	status := dErrors.ToHTTPStatus(code)
	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError && message != "" {
		body["error_description"] = message
	}
	WriteJSON(w, status, body)
}

// DecodeAndPrepare decodes the request body into T and runs its Prepare hook
// when implemented. On failure it writes a bad_request envelope, logs the
// rejection, and returns ok=false; the handler should simply return.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request body decode failed",
				"request_id", requestID,
				"path", r.URL.Path,
				"error", err,
			)
		}
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return req, false
	}

	if p, ok := any(&req).(Preparer); ok {
		if err := p.Prepare(); err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "request validation failed",
					"request_id", requestID,
					"path", r.URL.Path,
					"error", err,
				)
			}
			WriteError(w, err)
			return req, false
		}
	}

	return req, true
}
