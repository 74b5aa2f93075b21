package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mnexium/memory-substrate/internal/storage"
)

// errorResponse is the {error, message?} body spec §6/§7 requires.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Printf("httpapi: failed to encode response: %v\n", err)
	}
}

func writeValidationError(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: code, Message: message})
}

// writeError dispatches a domain error to the HTTP error taxonomy of spec
// §7: a storage.CodedError renders its own wire code at the status its
// Sentinel implies; otherwise storage.ErrInvalidInput -> 400 "invalid_input",
// storage.ErrNotFound -> 404 "not_found", storage.ErrAlreadyExists -> 400
// "already_exists", anything else -> 500 "server_error".
func writeError(w http.ResponseWriter, err error) {
	var coded *storage.CodedError
	if errors.As(err, &coded) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(coded.Sentinel, storage.ErrInvalidInput), errors.Is(coded.Sentinel, storage.ErrAlreadyExists):
			status = http.StatusBadRequest
		case errors.Is(coded.Sentinel, storage.ErrNotFound):
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: coded.Code, Message: coded.Error()})
		return
	}

	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, storage.ErrAlreadyExists):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "already_exists", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "server_error", Message: err.Error()})
	}
}
