package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// ActivityHandler handles GET /api/activity, newest entries first, with an
// optional caseId filter.
func (s *Server) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	caseID := r.URL.Query().Get("caseId")

	entries, err := s.activity.ListActivity(r.Context(), caseID, limit)
	if err != nil {
		log.Error().Err(err).Msg("Activity list failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}
	respondSuccess(w, http.StatusOK, entries)
}
