package models

import "time"

// PolicyChunk is one citable fragment of a policy document.
type PolicyChunk struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Policy is a versioned reference document whose chunks are the targets of
// output citations.
type Policy struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Chunks    []PolicyChunk `json:"chunks"`
	CreatedAt time.Time     `json:"createdAt"`
}

// HasChunk reports whether the policy contains a chunk with the given ID.
func (p *Policy) HasChunk(chunkID string) bool {
	for _, ch := range p.Chunks {
		if ch.ID == chunkID {
			return true
		}
	}
	return false
}
