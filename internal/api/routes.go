package api

import (
	"github.com/gorilla/mux"

	"regulonlabs.com/casedesk/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router
func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()

	// Add middleware to all routes
	r.Use(metrics.Middleware)
	r.Use(s.AuthMiddleware)

	// Agent lifecycle
	r.HandleFunc("/api/agents/register", s.RegisterAgentHandler).Methods("POST")
	r.HandleFunc("/api/agents/claim", s.ClaimAgentHandler).Methods("POST")
	r.HandleFunc("/api/agents/me", s.MeHandler).Methods("GET")
	r.HandleFunc("/api/agents", s.ListAgentsHandler).Methods("GET")

	// Cases and the output submission pipeline
	r.HandleFunc("/api/cases", s.CreateCaseHandler).Methods("POST")
	r.HandleFunc("/api/cases", s.ListCasesHandler).Methods("GET")
	r.HandleFunc("/api/cases/{id}", s.GetCaseHandler).Methods("GET")
	r.HandleFunc("/api/cases/{id}/outputs", s.SubmitOutputHandler).Methods("POST")

	// Policy reference data. Search registers before the ID route so "search"
	// is not captured as a policy ID.
	r.HandleFunc("/api/policies/search", s.SearchPoliciesHandler).Methods("GET")
	r.HandleFunc("/api/policies", s.ListPoliciesHandler).Methods("GET")
	r.HandleFunc("/api/policies/{id}", s.GetPolicyHandler).Methods("GET")

	// Activity stream
	r.HandleFunc("/api/activity", s.ActivityHandler).Methods("GET")

	// Operational endpoints
	r.HandleFunc(HealthPath, s.HealthHandler).Methods("GET")
	r.Handle(MetricsPath, metrics.Handler()).Methods("GET")

	return r
}
