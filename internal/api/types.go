package api

import (
	"context"
	"regexp"

	"regulonlabs.com/casedesk/internal/dal"
	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/internal/pipeline"
	"regulonlabs.com/casedesk/internal/ratelimit"
)

// Context key types to avoid collisions
type contextKey string

const (
	AgentKey   contextKey = "agent"
	AgentIDKey contextKey = "agentID"
)

// HTTP header constants
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	RetryAfterHeader    = "Retry-After"
)

// HTTP path constants
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Error message constants
const (
	ErrAuthHeaderRequired = "Authorization header required"
	ErrInvalidAuthHeader  = "Invalid authorization header format"
	ErrInvalidAPIKey      = "Invalid API key"
	ErrAgentNotInContext  = "agent not found in context"
	ErrInvalidJSON        = "Invalid JSON body"
	ErrRateLimited        = "Rate limit exceeded"
)

// agentNameRe validates registration names: 3-30 chars of letters, digits,
// underscore, hyphen.
var agentNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// Request Types

type RegisterAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ClaimAgentRequest struct {
	ClaimToken string `json:"claimToken"`
	OwnerEmail string `json:"ownerEmail"`
}

type CreateCaseRequest struct {
	Title string   `json:"title"`
	Type  string   `json:"type"`
	Input string   `json:"input"`
	Tags  []string `json:"tags,omitempty"`
}

type SubmitOutputRequest struct {
	Kind         string            `json:"kind"`
	Content      string            `json:"content"`
	Citations    []models.Citation `json:"citations,omitempty"`
	Flags        []string          `json:"flags,omitempty"`
	RequestToken string            `json:"requestToken,omitempty"`
}

// Store interfaces the handlers depend on; the dal models satisfy them.

type AgentStore interface {
	InsertAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error)
	FindByName(ctx context.Context, name string) (*models.Agent, error)
	ClaimAgent(ctx context.Context, claimToken, ownerEmail string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
}

type CaseStore interface {
	GetCase(ctx context.Context, id string) (*models.Case, error)
	InsertCase(ctx context.Context, c *models.Case) error
	ListCases(ctx context.Context, status, caseType string, page, count int) ([]models.Case, error)
}

type PolicyStore interface {
	GetPolicy(ctx context.Context, id string) (*models.Policy, error)
	ListPolicies(ctx context.Context) ([]models.Policy, error)
	SearchChunks(ctx context.Context, keyword string, limit int) ([]dal.ChunkHit, error)
}

type ActivityStore interface {
	LogActivity(ctx context.Context, entry models.ActivityEntry) error
	ListActivity(ctx context.Context, caseID string, limit int) ([]models.ActivityEntry, error)
}

// Pinger reports storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	agents   AgentStore
	cases    CaseStore
	policies PolicyStore
	activity ActivityStore
	pipeline *pipeline.Pipeline
	limiter  *ratelimit.Registry
	pinger   Pinger
}

// SetPinger attaches an optional storage connectivity probe used by /health.
func (s *Server) SetPinger(p Pinger) {
	s.pinger = p
}

// NewServer wires the HTTP surface to its collaborators.
func NewServer(agents AgentStore, cases CaseStore, policies PolicyStore, activity ActivityStore, p *pipeline.Pipeline, limiter *ratelimit.Registry) *Server {
	return &Server{
		agents:   agents,
		cases:    cases,
		policies: policies,
		activity: activity,
		pipeline: p,
		limiter:  limiter,
	}
}
