// Package handlers provides HTTP request handlers for the highlights API
// endpoints. It includes handlers for day records, duplicate probes, drug
// search, PDF report downloads, AI assisted editing, session issuance and
// health checks, with proper input validation and error handling.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pharmaboard/highlights-api/logging"
)

// RespondWithJSON writes a JSON response with consistent headers
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]interface{}{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	RespondWithJSON(w, code, errorResponse)
}
