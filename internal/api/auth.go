package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// isPublicPath reports whether a request may skip API key auth. Registration
// and claiming are public by necessity: the caller does not hold a key yet.
func isPublicPath(r *http.Request) bool {
	switch r.URL.Path {
	case HealthPath, MetricsPath:
		return true
	case "/api/agents/register", "/api/agents/claim":
		return r.Method == http.MethodPost
	}
	return false
}

// AuthMiddleware resolves the Bearer API key to a registered agent and puts
// the agent on the request context.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(AuthorizationHeader)
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, ErrAuthHeaderRequired,
				"Pass your API key as 'Authorization: Bearer <key>'")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			respondError(w, http.StatusUnauthorized, ErrInvalidAuthHeader,
				"Pass your API key as 'Authorization: Bearer <key>'")
			return
		}

		apiKey := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, ErrInvalidAuthHeader,
				"Pass your API key as 'Authorization: Bearer <key>'")
			return
		}

		agent, err := s.agents.FindByAPIKey(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				log.Warn().Str("path", r.URL.Path).Msg("Unknown API key")
				respondError(w, http.StatusUnauthorized, ErrInvalidAPIKey, "")
				return
			}
			log.Error().Err(err).Str("path", r.URL.Path).Msg("API key lookup failed")
			respondError(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}

		ctx := context.WithValue(r.Context(), AgentKey, agent)
		ctx = context.WithValue(ctx, AgentIDKey, agent.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAgentFromContext extracts the authenticated agent from the request
// context.
func GetAgentFromContext(ctx context.Context) (*models.Agent, error) {
	agent, ok := ctx.Value(AgentKey).(*models.Agent)
	if !ok || agent == nil {
		return nil, errors.New(ErrAgentNotInContext)
	}
	return agent, nil
}
