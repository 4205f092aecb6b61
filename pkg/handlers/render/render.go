// Package render writes JSON responses and maps classified errors to HTTP status codes.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/errs"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Decode reads the request body into v. It reports false after writing a 400 when the body is
// not valid JSON.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		JSON(w, http.StatusBadRequest, api.Error{Error: fmt.Sprintf("Invalid request body: %v", err), Kind: errs.Validation.String()})
		return false
	}
	return true
}

// Error maps err to a status code by its kind. Unclassified errors are logged and hidden
// behind a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := StatusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	JSON(w, status, api.Error{Error: msg, Kind: kind.String()})
}

// StatusOf returns the HTTP status for an error kind.
func StatusOf(kind errs.Kind) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ParamError is the error handler for path and query parameters that do not bind.
func ParamError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *api.InvalidParamFormatError
	if errors.As(err, &pe) {
		JSON(w, http.StatusBadRequest, api.Error{Error: pe.Error(), Kind: errs.Validation.String()})
		return
	}
	JSON(w, http.StatusBadRequest, api.Error{Error: err.Error(), Kind: errs.Validation.String()})
}
