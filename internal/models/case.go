package models

import "time"

// CaseType classifies the regulated workflow a case belongs to.
type CaseType string

const (
	CaseKYCTriage      CaseType = "kyc_triage"
	CaseComplianceMemo CaseType = "compliance_memo"
	CasePolicyQA       CaseType = "policy_qa"
	CaseGeneral        CaseType = "general"
)

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	StatusOpen          CaseStatus = "open"
	StatusInProgress    CaseStatus = "in_progress"
	StatusPendingReview CaseStatus = "pending_review"
	StatusClosed        CaseStatus = "closed"
)

// ValidCaseType reports whether t is one of the known case classifications.
func ValidCaseType(t string) bool {
	switch CaseType(t) {
	case CaseKYCTriage, CaseComplianceMemo, CasePolicyQA, CaseGeneral:
		return true
	}
	return false
}

// ValidCaseStatus reports whether s is one of the known lifecycle states.
func ValidCaseStatus(s string) bool {
	switch CaseStatus(s) {
	case StatusOpen, StatusInProgress, StatusPendingReview, StatusClosed:
		return true
	}
	return false
}

// OutputKind distinguishes draft work products from final ones.
type OutputKind string

const (
	OutputDraft OutputKind = "draft"
	OutputFinal OutputKind = "final"
)

// Citation references a fragment (chunk) of a policy document. Citations are
// validated against the policy store at submission time only; later policy
// edits do not retroactively invalidate stored citations.
type Citation struct {
	PolicyID string `json:"policyId"`
	ChunkID  string `json:"chunkId"`
	Quote    string `json:"quote,omitempty"`
}

// OutputEntry is one agent-submitted work product. Immutable once appended.
type OutputEntry struct {
	Ts        time.Time  `json:"ts"`
	AgentID   string     `json:"agentId"`
	Kind      OutputKind `json:"kind"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	Flags     []string   `json:"flags,omitempty"`
}

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// AuditEntry is an immutable record of a state-changing event on a case.
// Metadata is redacted before storage.
type AuditEntry struct {
	Ts        time.Time      `json:"ts"`
	ActorType ActorType      `json:"actorType"`
	ActorID   string         `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Case is a unit of regulated work. Outputs and AuditTrail are append-only
// from the caller's perspective; the oldest entries are evicted silently once
// the caps in the caselog package are exceeded, and retained entries are never
// reordered.
type Case struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Type             CaseType      `json:"type"`
	Status           CaseStatus    `json:"status"`
	Input            string        `json:"input"`
	Outputs          []OutputEntry `json:"outputs"`
	AuditTrail       []AuditEntry  `json:"auditTrail"`
	CreatedByAgentID string        `json:"createdByAgentId,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
