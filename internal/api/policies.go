package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/dal"
	"regulonlabs.com/casedesk/internal/models"
)

// ListPoliciesHandler handles GET /api/policies
func (s *Server) ListPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	policies, err := s.policies.ListPolicies(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Policy list failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if policies == nil {
		policies = []models.Policy{}
	}
	respondSuccess(w, http.StatusOK, policies)
}

// GetPolicyHandler handles GET /api/policies/{id}
func (s *Server) GetPolicyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	policy, err := s.policies.GetPolicy(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("policy", id).Msg("Policy fetch failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if policy == nil {
		respondError(w, http.StatusNotFound, "Policy not found: "+id, "")
		return
	}
	respondSuccess(w, http.StatusOK, policy)
}

// SearchPoliciesHandler handles GET /api/policies/search?q=keyword
func (s *Server) SearchPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "Query parameter 'q' is required", "")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	hits, err := s.policies.SearchChunks(r.Context(), q, limit)
	if err != nil {
		log.Error().Err(err).Str("q", q).Msg("Policy search failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if hits == nil {
		hits = []dal.ChunkHit{}
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": hits,
	})
}
