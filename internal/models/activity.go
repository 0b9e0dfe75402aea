package models

import "time"

// ActivityEntry is one record in the system-wide activity stream. It exists
// purely for observability; writes are best-effort and never fail a request.
type ActivityEntry struct {
	ID        string         `json:"id,omitempty"`
	Ts        time.Time      `json:"ts"`
	ActorType ActorType      `json:"actorType"`
	ActorID   string         `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	CaseID    string         `json:"caseId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
