// Package handlers provides HTTP handlers for the trendscope API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/trendscope/internal/observability"
)

func writeJSON(logger *observability.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(logger *observability.Logger, w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(logger, w, status, resp)
}
