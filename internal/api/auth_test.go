package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	f := newTestServer(t, 30)

	// Create a test handler
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Wrap with auth middleware
	authHandler := f.server.AuthMiddleware(handler)

	tests := []struct {
		name           string
		method         string
		path           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "Health endpoint should skip auth",
			method:         "GET",
			path:           "/health",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Metrics endpoint should skip auth",
			method:         "GET",
			path:           "/metrics",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Register endpoint should skip auth",
			method:         "POST",
			path:           "/api/agents/register",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Claim endpoint should skip auth",
			method:         "POST",
			path:           "/api/agents/claim",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "API endpoint without auth should fail",
			method:         "GET",
			path:           "/api/cases",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "API endpoint with invalid auth should fail",
			method:         "GET",
			path:           "/api/cases",
			authHeader:     "Invalid",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "API endpoint with Bearer but no token should fail",
			method:         "GET",
			path:           "/api/cases",
			authHeader:     "Bearer ",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "API endpoint with unknown key should fail",
			method:         "GET",
			path:           "/api/cases",
			authHeader:     "Bearer cd_does_not_exist",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "API endpoint with valid key should pass",
			method:         "GET",
			path:           "/api/cases",
			authHeader:     "Bearer " + testAPIKey,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			authHandler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestGetAgentFromContextMissing(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/cases", nil)
	if _, err := GetAgentFromContext(req.Context()); err == nil {
		t.Error("expected error for missing agent in context")
	}
}
