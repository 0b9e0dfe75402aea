// Package pipeline orchestrates case-output submissions. It sequences the
// rate limiter, idempotency store, citation validator, and bounded log
// appender in a fixed order and propagates the first failure. The order is
// load-bearing: the rate check runs once per inbound call, before the
// idempotency lookup, so replayed requests still pass admission control.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/caselog"
	"regulonlabs.com/casedesk/internal/citations"
	"regulonlabs.com/casedesk/internal/idempotency"
	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/internal/ratelimit"
	"regulonlabs.com/casedesk/internal/redact"
)

// Route tags used as rate-limit keys and idempotency record routes.
const (
	RouteOutputs = "POST /api/cases/:id/outputs"
	RouteCases   = "POST /api/cases"
)

// CaseStore is the case persistence boundary. GetCase returns
// models.ErrNotFound when the case does not exist. UpdateCase runs mutate
// inside a load-mutate-save cycle that is atomic with respect to other
// UpdateCase calls for the same case (CAS retry in the Couchbase
// implementation).
type CaseStore interface {
	GetCase(ctx context.Context, id string) (*models.Case, error)
	UpdateCase(ctx context.Context, id string, mutate func(c *models.Case) error) (*models.Case, error)
}

// AgentDirectory records actor observability data. Best-effort: failures are
// logged and swallowed, never surfaced to the submitting client.
type AgentDirectory interface {
	TouchAgent(ctx context.Context, agentID, activity string) error
}

// ActivitySink receives the system-wide activity stream. Best-effort.
type ActivitySink interface {
	LogActivity(ctx context.Context, entry models.ActivityEntry) error
}

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonRateLimited       Reason = "rate_limited"
	ReasonInvalidBody       Reason = "invalid_body"
	ReasonCitationsRequired Reason = "citations_required"
	ReasonInvalidCitations  Reason = "invalid_citations"
	ReasonNotFound          Reason = "not_found"
)

// Rejection is a non-fault terminal outcome of a submission.
type Rejection struct {
	Reason            Reason
	Message           string
	RetryAfterSeconds int
}

// Request is one inbound output submission, already authenticated.
type Request struct {
	CaseID       string
	AgentID      string
	Kind         models.OutputKind
	Content      string
	Citations    []models.Citation
	Flags        []string
	RequestToken string
}

// Result is the success payload of a submission. Replayed marks responses
// served from the idempotency store.
type Result struct {
	Replayed bool
	Response map[string]any
}

// Pipeline wires the submission components together. All collaborators are
// injected; there is no hidden global state.
type Pipeline struct {
	limiter   *ratelimit.Registry
	idem      idempotency.Store
	validator *citations.Validator
	cases     CaseStore
	agents    AgentDirectory
	activity  ActivitySink
	caseLocks keyedMutex
	now       func() time.Time
}

// New creates a submission pipeline.
func New(limiter *ratelimit.Registry, idem idempotency.Store, validator *citations.Validator, cases CaseStore, agents AgentDirectory, activity ActivitySink) *Pipeline {
	return &Pipeline{
		limiter:   limiter,
		idem:      idem,
		validator: validator,
		cases:     cases,
		agents:    agents,
		activity:  activity,
		now:       time.Now,
	}
}

// Submit runs one output submission through the pipeline:
// rate check, idempotency lookup, validation, bounded append, idempotency
// record. Exactly one of the three returns is non-zero: a Result on success
// or replay, a Rejection for caller errors, or an error for transient
// infrastructure failure (safe to retry with the same token).
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, *Rejection, error) {
	decision := p.limiter.Admit(req.AgentID, RouteOutputs)
	if !decision.Allowed {
		p.logActivity(ctx, models.ActivityEntry{
			Ts:        p.now().UTC(),
			ActorType: models.ActorAgent,
			ActorID:   req.AgentID,
			Action:    "rate_limited",
			Metadata: map[string]any{
				"route":             RouteOutputs,
				"retryAfterSeconds": decision.RetryAfterSeconds,
			},
		})
		return nil, &Rejection{
			Reason:            ReasonRateLimited,
			Message:           "rate limit exceeded",
			RetryAfterSeconds: decision.RetryAfterSeconds,
		}, nil
	}

	idemKey := ""
	if req.RequestToken != "" {
		idemKey = idempotency.OutputKey(req.AgentID, req.CaseID, req.RequestToken)
		existing, err := p.idem.Lookup(ctx, idemKey)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			return &Result{Replayed: true, Response: existing.Response}, nil, nil
		}
	}

	c, err := p.cases.GetCase(ctx, req.CaseID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &Rejection{Reason: ReasonNotFound, Message: "Case not found"}, nil
		}
		return nil, nil, err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, &Rejection{
			Reason:  ReasonInvalidBody,
			Message: "content is required and must be a non-empty string",
		}, nil
	}

	cits := citations.Normalize(req.Citations)
	if err := p.validator.Validate(ctx, c.Type, req.Kind, cits); err != nil {
		if errors.Is(err, citations.ErrCitationsRequired) {
			return nil, &Rejection{Reason: ReasonCitationsRequired, Message: err.Error()}, nil
		}
		var verr *citations.ValidationError
		if errors.As(err, &verr) {
			return nil, &Rejection{Reason: ReasonInvalidCitations, Message: verr.Message}, nil
		}
		return nil, nil, err
	}

	outputTs := p.now().UTC()
	auditMeta := redact.Metadata(map[string]any{
		"kind":           string(req.Kind),
		"flagsCount":     len(req.Flags),
		"citationsCount": len(cits),
	})

	// The per-case mutex plus the store's CAS retry form the serialization
	// point for the case's read-modify-write; without it concurrent appends
	// can lose or reorder entries.
	unlock := p.caseLocks.lock(req.CaseID)
	outputIndex := 0
	_, err = p.cases.UpdateCase(ctx, req.CaseID, func(c *models.Case) error {
		outputIndex = caselog.AppendOutput(c, models.OutputEntry{
			Ts:        outputTs,
			AgentID:   req.AgentID,
			Kind:      req.Kind,
			Content:   content,
			Citations: cits,
			Flags:     req.Flags,
		})
		caselog.AppendAudit(c, models.AuditEntry{
			Ts:        p.now().UTC(),
			ActorType: models.ActorAgent,
			ActorID:   req.AgentID,
			Action:    "output_posted",
			Metadata:  auditMeta,
		})
		return nil
	})
	unlock()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &Rejection{Reason: ReasonNotFound, Message: "Case not found"}, nil
		}
		return nil, nil, err
	}

	p.touchAgent(ctx, req.AgentID, "posted_output:"+req.CaseID)
	p.logActivity(ctx, models.ActivityEntry{
		Ts:        p.now().UTC(),
		ActorType: models.ActorAgent,
		ActorID:   req.AgentID,
		Action:    "case_output_posted",
		CaseID:    req.CaseID,
		Metadata:  auditMeta,
	})

	response := map[string]any{
		"ok":          true,
		"caseId":      req.CaseID,
		"outputIndex": outputIndex,
		"outputTs":    outputTs.Format(time.RFC3339),
	}

	if idemKey != "" {
		stored, err := p.idem.Record(ctx, models.IdempotencyRecord{
			Key:      idemKey,
			AgentID:  req.AgentID,
			Route:    RouteOutputs,
			CaseID:   req.CaseID,
			Response: response,
		})
		if err != nil {
			// The append already happened; failing the call now would push the
			// client into a duplicating retry. Surface the success and let the
			// next retry re-execute without a stored record.
			log.Warn().Err(err).Str("key", idemKey).Msg("Failed to record idempotency key")
		} else if stored != nil {
			// A concurrent retry won the record race; its response is
			// authoritative so every caller observes the same payload.
			response = stored.Response
		}
	}

	return &Result{Response: response}, nil, nil
}

func (p *Pipeline) touchAgent(ctx context.Context, agentID, activity string) {
	if p.agents == nil {
		return
	}
	if err := p.agents.TouchAgent(ctx, agentID, activity); err != nil {
		log.Warn().Err(err).Str("agent", agentID).Msg("Failed to update agent activity")
	}
}

func (p *Pipeline) logActivity(ctx context.Context, entry models.ActivityEntry) {
	if p.activity == nil {
		return
	}
	entry.Metadata = redact.Metadata(entry.Metadata)
	if err := p.activity.LogActivity(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", entry.Action).Msg("Failed to write activity log entry")
	}
}
