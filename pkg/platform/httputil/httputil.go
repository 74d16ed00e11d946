// Package httputil holds the JSON response helpers shared by all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "dirsync/pkg/domain-errors"
	"dirsync/pkg/platform/sentinel"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError maps a domain error onto an HTTP status and writes the error
// body. Internal details stay in logs, not responses.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := derrors.CodeOf(err)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case code == derrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case code == derrors.CodeAmbiguousCandidate, code == derrors.CodeAmbiguousValidity:
		status = http.StatusConflict
	case code == derrors.CodeNoCorrelationKey, code == derrors.CodeExhaustedGeneration:
		status = http.StatusUnprocessableEntity
	}

	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	WriteJSON(w, status, errorBody{Error: string(code), Message: message})
}
