package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"anchorledger/core/anchor"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps ledger sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, anchor.ErrEnforcedPause):
		return http.StatusServiceUnavailable
	case errors.Is(err, anchor.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, anchor.ErrExpectedPause):
		return http.StatusConflict
	case errors.Is(err, anchor.ErrSignatureExpired),
		errors.Is(err, anchor.ErrInvalidSignature),
		errors.Is(err, anchor.ErrInvalidSignatureFormat),
		errors.Is(err, anchor.ErrInvalidDataHash),
		errors.Is(err, anchor.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, anchor.ErrRateLimitExceeded), errors.Is(err, anchor.ErrTooSoon):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSONError(w, status, anchor.Reason(err), message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
