package models

import "time"

// ClaimStatus tracks whether a registered agent has been claimed by an owner.
type ClaimStatus string

const (
	ClaimPending ClaimStatus = "pending_claim"
	ClaimClaimed ClaimStatus = "claimed"
)

// Agent is an authenticated actor identity. The APIKey field is the opaque
// credential presented as a Bearer token and must never be serialized in
// API responses.
type Agent struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	APIKey         string      `json:"-"`
	ClaimToken     string      `json:"-"`
	ClaimStatus    ClaimStatus `json:"claimStatus"`
	OwnerEmail     string      `json:"ownerEmail,omitempty"`
	LastSeen       time.Time   `json:"lastSeen"`
	RecentActivity []string    `json:"recentActivity,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// AgentDoc is the storage shape of an Agent; the credential fields are
// persisted but hidden from the JSON surface above.
type AgentDoc struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	APIKey         string      `json:"apiKey"`
	ClaimToken     string      `json:"claimToken"`
	ClaimStatus    ClaimStatus `json:"claimStatus"`
	OwnerEmail     string      `json:"ownerEmail,omitempty"`
	LastSeen       time.Time   `json:"lastSeen"`
	RecentActivity []string    `json:"recentActivity,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// ToDoc converts an Agent to its storage shape.
func (a *Agent) ToDoc() AgentDoc {
	return AgentDoc{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		APIKey:         a.APIKey,
		ClaimToken:     a.ClaimToken,
		ClaimStatus:    a.ClaimStatus,
		OwnerEmail:     a.OwnerEmail,
		LastSeen:       a.LastSeen,
		RecentActivity: a.RecentActivity,
		CreatedAt:      a.CreatedAt,
	}
}

// ToAgent converts a storage document back to an Agent.
func (d AgentDoc) ToAgent() Agent {
	return Agent{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		APIKey:         d.APIKey,
		ClaimToken:     d.ClaimToken,
		ClaimStatus:    d.ClaimStatus,
		OwnerEmail:     d.OwnerEmail,
		LastSeen:       d.LastSeen,
		RecentActivity: d.RecentActivity,
		CreatedAt:      d.CreatedAt,
	}
}
