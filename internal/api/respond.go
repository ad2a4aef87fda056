package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/insight"
	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/resilience"
	"github.com/concierge-labs/concierge/internal/store"
)

// Client-facing messages.
const (
	msgMissingParameters     = "Missing parameters"
	msgMissingAction         = "Missing action"
	msgMissingAmount         = "Missing amount"
	msgMissingSubAccount     = "Missing subAccount or amount"
	msgInsufficientAvailable = "Insufficient available balance"
	msgInvalidAction         = "Invalid action"
	msgNoFiles               = "No files provided"
	msgInvalidBody           = "Invalid request body"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeFailure maps a domain error onto a status code and message.
func writeFailure(w http.ResponseWriter, err error, fallback string) {
	var se *resilience.StatusError
	switch {
	case eris.Is(err, insight.ErrMissingParameters):
		writeError(w, http.StatusBadRequest, msgMissingParameters)
	case eris.Is(err, ledger.ErrInsufficientAvailable):
		writeError(w, http.StatusBadRequest, msgInsufficientAvailable)
	case eris.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "Run not found")
	case errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == resilience.StatusSegmentMissing):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		msg := err.Error()
		if msg == "" {
			msg = fallback
		}
		writeError(w, http.StatusInternalServerError, msg)
	}
}
