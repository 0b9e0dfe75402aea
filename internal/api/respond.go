package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// respondSuccess writes the {success, data} envelope.
func respondSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes the {success, error, hint} envelope. The hint is
// optional remediation text and may be empty.
func respondError(w http.ResponseWriter, status int, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"success": false,
		"error":   message,
	}
	if hint != "" {
		body["hint"] = hint
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parsePagination reads page and count query parameters with safe defaults.
func parsePagination(r *http.Request) (page, count int) {
	page = 1
	count = 50

	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("count"); v != "" {
		if c, err := strconv.Atoi(v); err == nil && c > 0 && c <= 200 {
			count = c
		}
	}
	return page, count
}
