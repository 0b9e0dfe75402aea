package dal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// PolicyModel handles policy document operations
type PolicyModel struct {
	conn *Connection
}

// NewPolicyModel creates a new policy model instance
func NewPolicyModel(conn *Connection) *PolicyModel {
	return &PolicyModel{conn: conn}
}

func policyDocID(id string) string {
	return fmt.Sprintf("Policy/%s", id)
}

// GetPolicy retrieves a policy by ID. Returns (nil, nil) on a miss so the
// citation validator can report a missing policy as a caller error rather
// than a storage fault.
func (pm *PolicyModel) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	result, err := pm.conn.Collection().Get(policyDocID(id), &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, nil
		}
		log.Error().Err(err).Str("policy", id).Msg("Failed to get policy")
		return nil, fmt.Errorf("get policy %s: %w", id, err)
	}

	var p models.Policy
	if err := result.Content(&p); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", id, err)
	}
	return &p, nil
}

// InsertPolicy creates a new policy document.
func (pm *PolicyModel) InsertPolicy(ctx context.Context, p *models.Policy) error {
	docID := policyDocID(p.ID)

	_, err := pm.conn.Collection().Insert(docID, p, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to insert policy")
		return fmt.Errorf("insert policy %s: %w", p.ID, err)
	}
	return nil
}

// ListPolicies retrieves all policies ordered by name.
func (pm *PolicyModel) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d WHERE META(d).id LIKE 'Policy/%%' ORDER BY d.name",
		pm.conn.GetBucketName(),
	)
	rows, err := pm.conn.GetCluster().Query(query, &gocb.QueryOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Msg("Policy list query failed")
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Row(&p); err != nil {
			log.Warn().Err(err).Msg("Failed to decode policy row")
			continue
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// ChunkHit is one search result: a chunk plus the policy it belongs to.
type ChunkHit struct {
	PolicyID   string             `json:"policyId"`
	PolicyName string             `json:"policyName"`
	Chunk      models.PolicyChunk `json:"chunk"`
}

// SearchChunks scans policy chunks for a case-insensitive keyword match in
// the title or text. The corpus is small reference data, so an in-process
// scan over the full policy set beats maintaining a search index.
func (pm *PolicyModel) SearchChunks(ctx context.Context, keyword string, limit int) ([]ChunkHit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil, nil
	}

	policies, err := pm.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}

	var hits []ChunkHit
	for _, p := range policies {
		for _, ch := range p.Chunks {
			if strings.Contains(strings.ToLower(ch.Text), needle) ||
				strings.Contains(strings.ToLower(ch.Title), needle) {
				hits = append(hits, ChunkHit{PolicyID: p.ID, PolicyName: p.Name, Chunk: ch})
				if len(hits) >= limit {
					return hits, nil
				}
			}
		}
	}
	return hits, nil
}
