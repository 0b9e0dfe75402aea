package models

import "time"

// IdempotencyRecord maps a caller-chosen deduplication key to the response of
// the first successful submission for that key. Created once, read-only
// afterward; eligible for time-based expiry.
type IdempotencyRecord struct {
	Key       string         `json:"key"`
	AgentID   string         `json:"agentId"`
	Route     string         `json:"route"`
	CaseID    string         `json:"caseId,omitempty"`
	Response  map[string]any `json:"response"`
	CreatedAt time.Time      `json:"createdAt"`
}
