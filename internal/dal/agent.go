package dal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// recentActivityCap bounds the per-agent activity ring kept on the document.
const recentActivityCap = 20

// AgentModel handles agent document operations
type AgentModel struct {
	conn *Connection
}

// NewAgentModel creates a new agent model instance
func NewAgentModel(conn *Connection) *AgentModel {
	return &AgentModel{conn: conn}
}

func agentDocID(id string) string {
	return fmt.Sprintf("Agent/%s", id)
}

// InsertAgent creates a new agent document. Fails if the ID already exists.
func (am *AgentModel) InsertAgent(ctx context.Context, a *models.Agent) error {
	docID := agentDocID(a.ID)
	doc := a.ToDoc()

	_, err := am.conn.Collection().Insert(docID, doc, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to insert agent")
		return fmt.Errorf("insert agent %s: %w", a.ID, err)
	}

	log.Info().Str("doc_id", docID).Str("name", a.Name).Msg("Agent registered")
	return nil
}

// GetAgent retrieves an agent by ID. Returns models.ErrNotFound on a miss.
func (am *AgentModel) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	result, err := am.conn.Collection().Get(agentDocID(id), &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}

	var doc models.AgentDoc
	if err := result.Content(&doc); err != nil {
		return nil, fmt.Errorf("decode agent %s: %w", id, err)
	}
	a := doc.ToAgent()
	return &a, nil
}

// findOne runs a single-row agent query. Returns models.ErrNotFound when no
// document matches.
func (am *AgentModel) findOne(ctx context.Context, field, value string) (*models.Agent, error) {
	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d WHERE META(d).id LIKE 'Agent/%%' AND d.`%s` = $value LIMIT 1",
		am.conn.GetBucketName(), field,
	)
	rows, err := am.conn.GetCluster().Query(query, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: map[string]interface{}{"value": value},
	})
	if err != nil {
		log.Error().Err(err).Str("field", field).Msg("Agent lookup query failed")
		return nil, fmt.Errorf("find agent by %s: %w", field, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, models.ErrNotFound
	}
	var doc models.AgentDoc
	if err := rows.Row(&doc); err != nil {
		return nil, fmt.Errorf("decode agent row: %w", err)
	}
	a := doc.ToAgent()
	return &a, nil
}

// FindByAPIKey resolves the Bearer credential to an agent.
func (am *AgentModel) FindByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	return am.findOne(ctx, "apiKey", apiKey)
}

// FindByName resolves a registered agent name.
func (am *AgentModel) FindByName(ctx context.Context, name string) (*models.Agent, error) {
	return am.findOne(ctx, "name", name)
}

// FindByClaimToken resolves a one-time claim token.
func (am *AgentModel) FindByClaimToken(ctx context.Context, token string) (*models.Agent, error) {
	return am.findOne(ctx, "claimToken", token)
}

// ClaimAgent marks the agent holding the claim token as claimed by the given
// owner and clears the token so it cannot be reused.
func (am *AgentModel) ClaimAgent(ctx context.Context, claimToken, ownerEmail string) (*models.Agent, error) {
	a, err := am.FindByClaimToken(ctx, claimToken)
	if err != nil {
		return nil, err
	}

	var updated *models.Agent
	err = am.updateAgent(ctx, a.ID, func(doc *models.AgentDoc) {
		doc.ClaimStatus = models.ClaimClaimed
		doc.OwnerEmail = ownerEmail
		doc.ClaimToken = ""
		agent := doc.ToAgent()
		updated = &agent
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("agent", a.ID).Msg("Agent claimed")
	return updated, nil
}

// TouchAgent stamps lastSeen and pushes an activity note onto the bounded
// per-agent ring (newest first).
func (am *AgentModel) TouchAgent(ctx context.Context, agentID, activity string) error {
	return am.updateAgent(ctx, agentID, func(doc *models.AgentDoc) {
		doc.LastSeen = time.Now().UTC()
		if activity != "" {
			recent := append([]string{activity}, doc.RecentActivity...)
			if len(recent) > recentActivityCap {
				recent = recent[:recentActivityCap]
			}
			doc.RecentActivity = recent
		}
	})
}

// updateAgent runs mutate inside a CAS-guarded get-mutate-replace cycle.
func (am *AgentModel) updateAgent(ctx context.Context, id string, mutate func(doc *models.AgentDoc)) error {
	docID := agentDocID(id)
	col := am.conn.Collection()

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		result, err := col.Get(docID, &gocb.GetOptions{Context: ctx})
		if err != nil {
			if errors.Is(err, gocb.ErrDocumentNotFound) {
				return models.ErrNotFound
			}
			return fmt.Errorf("get agent %s: %w", id, err)
		}

		var doc models.AgentDoc
		if err := result.Content(&doc); err != nil {
			return fmt.Errorf("decode agent %s: %w", id, err)
		}

		mutate(&doc)

		_, err = col.Replace(docID, &doc, &gocb.ReplaceOptions{
			Cas:     result.Cas(),
			Context: ctx,
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gocb.ErrCasMismatch) || errors.Is(err, gocb.ErrDocumentExists) {
			continue
		}
		return fmt.Errorf("replace agent %s: %w", id, err)
	}

	return fmt.Errorf("update agent %s: CAS retry limit exceeded", id)
}

// ListAgents retrieves all registered agents ordered by registration time.
func (am *AgentModel) ListAgents(ctx context.Context) ([]models.Agent, error) {
	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d WHERE META(d).id LIKE 'Agent/%%' ORDER BY d.createdAt",
		am.conn.GetBucketName(),
	)
	rows, err := am.conn.GetCluster().Query(query, &gocb.QueryOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Msg("Agent list query failed")
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var doc models.AgentDoc
		if err := rows.Row(&doc); err != nil {
			log.Warn().Err(err).Msg("Failed to decode agent row")
			continue
		}
		agents = append(agents, doc.ToAgent())
	}
	return agents, nil
}
