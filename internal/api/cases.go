package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/internal/pipeline"
	"regulonlabs.com/casedesk/internal/redact"
)

// CreateCaseHandler handles POST /api/cases
func (s *Server) CreateCaseHandler(w http.ResponseWriter, r *http.Request) {
	agent, err := GetAgentFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, ErrInvalidAPIKey, "")
		return
	}

	decision := s.limiter.Admit(agent.ID, pipeline.RouteCases)
	if !decision.Allowed {
		w.Header().Set(RetryAfterHeader, strconv.Itoa(decision.RetryAfterSeconds))
		respondError(w, http.StatusTooManyRequests, ErrRateLimited,
			"Retry after "+strconv.Itoa(decision.RetryAfterSeconds)+" seconds")
		return
	}

	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrInvalidJSON, "")
		return
	}

	title := strings.TrimSpace(req.Title)
	input := strings.TrimSpace(req.Input)
	if title == "" || input == "" {
		respondError(w, http.StatusBadRequest, "title and input are required", "")
		return
	}
	caseType := req.Type
	if caseType == "" {
		caseType = string(models.CaseGeneral)
	}
	if !models.ValidCaseType(caseType) {
		respondError(w, http.StatusBadRequest, "Invalid case type: "+req.Type,
			"Valid types: kyc_triage, compliance_memo, policy_qa, general")
		return
	}

	now := time.Now().UTC()
	c := &models.Case{
		ID:     uuid.New().String(),
		Title:  title,
		Type:   models.CaseType(caseType),
		Status: models.StatusOpen,
		Input:  input,
		AuditTrail: []models.AuditEntry{{
			Ts:        now,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    "case_created",
			Metadata:  redact.Metadata(map[string]any{"type": caseType}),
		}},
		CreatedByAgentID: agent.ID,
		Tags:             req.Tags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.cases.InsertCase(r.Context(), c); err != nil {
		log.Error().Err(err).Str("agent", agent.ID).Msg("Case creation failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	s.logActivity(r.Context(), models.ActivityEntry{
		Ts:        now,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Action:    "case_created",
		CaseID:    c.ID,
		Metadata:  map[string]any{"type": caseType},
	})

	respondSuccess(w, http.StatusCreated, c)
}

// ListCasesHandler handles GET /api/cases with optional status and type
// filters.
func (s *Server) ListCasesHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	caseType := r.URL.Query().Get("type")
	if status != "" && !models.ValidCaseStatus(status) {
		respondError(w, http.StatusBadRequest, "Invalid status filter: "+status, "")
		return
	}
	if caseType != "" && !models.ValidCaseType(caseType) {
		respondError(w, http.StatusBadRequest, "Invalid type filter: "+caseType, "")
		return
	}
	page, count := parsePagination(r)

	cases, err := s.cases.ListCases(r.Context(), status, caseType, page, count)
	if err != nil {
		log.Error().Err(err).Msg("Case list failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if cases == nil {
		cases = []models.Case{}
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"cases": cases,
		"page":  page,
		"count": count,
	})
}

// GetCaseHandler handles GET /api/cases/{id}
func (s *Server) GetCaseHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := s.cases.GetCase(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Case not found", "")
			return
		}
		log.Error().Err(err).Str("case", id).Msg("Case fetch failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	respondSuccess(w, http.StatusOK, c)
}

func (s *Server) logActivity(ctx context.Context, entry models.ActivityEntry) {
	entry.Metadata = redact.Metadata(entry.Metadata)
	if err := s.activity.LogActivity(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", entry.Action).Msg("Failed to write activity log entry")
	}
}
