package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// newAPIKey mints an opaque Bearer credential. The "cd_" prefix makes leaked
// keys recognizable in logs and secret scanners.
func newAPIKey() string {
	return "cd_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// RegisterAgentHandler handles POST /api/agents/register. Public: this is how
// an agent obtains its API key in the first place.
func (s *Server) RegisterAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrInvalidJSON, "")
		return
	}

	name := strings.TrimSpace(req.Name)
	if !agentNameRe.MatchString(name) {
		respondError(w, http.StatusBadRequest, "Invalid agent name",
			"Names are 3-30 characters: letters, digits, underscore, hyphen")
		return
	}

	if _, err := s.agents.FindByName(r.Context(), name); err == nil {
		respondError(w, http.StatusConflict, "Agent name already taken", "")
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		log.Error().Err(err).Str("name", name).Msg("Agent name lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		APIKey:      newAPIKey(),
		ClaimToken:  uuid.New().String(),
		ClaimStatus: models.ClaimPending,
		LastSeen:    now,
		CreatedAt:   now,
	}
	if err := s.agents.InsertAgent(r.Context(), agent); err != nil {
		log.Error().Err(err).Str("name", name).Msg("Agent registration failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	s.logActivity(r.Context(), models.ActivityEntry{
		Ts:        now,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Action:    "agent_registered",
		Metadata:  map[string]any{"name": name},
	})

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	// The key and claim token are returned exactly once, here.
	respondSuccess(w, http.StatusCreated, map[string]any{
		"agent":      agent,
		"apiKey":     agent.APIKey,
		"claimToken": agent.ClaimToken,
		"claimUrl":   appURL + "/claim/" + agent.ClaimToken,
	})
}

// ClaimAgentHandler handles POST /api/agents/claim. Public: the claim token
// is the credential.
func (s *Server) ClaimAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req ClaimAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrInvalidJSON, "")
		return
	}
	if strings.TrimSpace(req.ClaimToken) == "" || strings.TrimSpace(req.OwnerEmail) == "" {
		respondError(w, http.StatusBadRequest, "claimToken and ownerEmail are required", "")
		return
	}

	agent, err := s.agents.ClaimAgent(r.Context(), req.ClaimToken, req.OwnerEmail)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Invalid or already used claim token", "")
			return
		}
		log.Error().Err(err).Msg("Agent claim failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	respondSuccess(w, http.StatusOK, agent)
}

// MeHandler handles GET /api/agents/me
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	agent, err := GetAgentFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, ErrInvalidAPIKey, "")
		return
	}
	respondSuccess(w, http.StatusOK, agent)
}

// ListAgentsHandler handles GET /api/agents. Credential fields never
// serialize; the Agent JSON tags see to that.
func (s *Server) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.ListAgents(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Agent list failed")
		respondError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondSuccess(w, http.StatusOK, agents)
}
