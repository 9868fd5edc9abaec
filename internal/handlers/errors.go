package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"marketplace-service/internal/apperr"
)

// ErrorBody is the JSON envelope for every failed request
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeError maps a classified error to its status code. Unclassified and
// upstream failures are logged with their detail but never leak it.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	message := err.Error()

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch kind {
	case apperr.KindUpstream, apperr.KindInternal:
		logger.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"error", apperr.Detail(err),
		)
		if kind == apperr.KindInternal {
			message = "internal error"
		}
	default:
		logger.DebugContext(r.Context(), "Request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}

	writeErrorCode(w, status, string(kind), message)
}

// decodeJSON reads a request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid JSON: %v", err)
	}
	return nil
}
