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

// casRetryLimit bounds the optimistic-concurrency retry loop in UpdateCase.
const casRetryLimit = 16

// CaseModel handles case document operations
type CaseModel struct {
	conn *Connection
}

// NewCaseModel creates a new case model instance
func NewCaseModel(conn *Connection) *CaseModel {
	return &CaseModel{conn: conn}
}

func caseDocID(id string) string {
	return fmt.Sprintf("Case/%s", id)
}

// GetCase retrieves a case by ID. Returns models.ErrNotFound when the
// document does not exist.
func (cm *CaseModel) GetCase(ctx context.Context, id string) (*models.Case, error) {
	docID := caseDocID(id)

	result, err := cm.conn.Collection().Get(docID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, models.ErrNotFound
		}
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to get case")
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}

	var c models.Case
	if err := result.Content(&c); err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to decode case")
		return nil, fmt.Errorf("decode case %s: %w", id, err)
	}
	return &c, nil
}

// InsertCase creates a new case document. Fails if the ID already exists.
func (cm *CaseModel) InsertCase(ctx context.Context, c *models.Case) error {
	docID := caseDocID(c.ID)

	_, err := cm.conn.Collection().Insert(docID, c, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to insert case")
		return fmt.Errorf("insert case %s: %w", c.ID, err)
	}

	log.Info().Str("doc_id", docID).Str("type", string(c.Type)).Msg("Case created")
	return nil
}

// UpdateCase runs mutate inside a get-mutate-replace cycle guarded by the
// document CAS, retrying on contention. The committed mutation is atomic with
// respect to every other UpdateCase call for the same case, including ones
// from other processes.
func (cm *CaseModel) UpdateCase(ctx context.Context, id string, mutate func(c *models.Case) error) (*models.Case, error) {
	docID := caseDocID(id)
	col := cm.conn.Collection()

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		result, err := col.Get(docID, &gocb.GetOptions{Context: ctx})
		if err != nil {
			if errors.Is(err, gocb.ErrDocumentNotFound) {
				return nil, models.ErrNotFound
			}
			return nil, fmt.Errorf("get case %s: %w", id, err)
		}

		var c models.Case
		if err := result.Content(&c); err != nil {
			return nil, fmt.Errorf("decode case %s: %w", id, err)
		}

		if err := mutate(&c); err != nil {
			return nil, err
		}
		c.UpdatedAt = time.Now().UTC()

		_, err = col.Replace(docID, &c, &gocb.ReplaceOptions{
			Cas:     result.Cas(),
			Context: ctx,
		})
		if err == nil {
			return &c, nil
		}
		if errors.Is(err, gocb.ErrCasMismatch) || errors.Is(err, gocb.ErrDocumentExists) {
			log.Debug().Str("doc_id", docID).Int("attempt", attempt).Msg("CAS conflict, retrying case update")
			continue
		}
		return nil, fmt.Errorf("replace case %s: %w", id, err)
	}

	return nil, fmt.Errorf("update case %s: CAS retry limit exceeded", id)
}

// ListCases retrieves a filtered, paginated list of cases ordered by creation
// time, newest first. Empty filter values match everything.
func (cm *CaseModel) ListCases(ctx context.Context, status, caseType string, page, count int) ([]models.Case, error) {
	if count <= 0 || count > 200 {
		count = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * count

	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d WHERE META(d).id LIKE 'Case/%%'",
		cm.conn.GetBucketName(),
	)
	params := map[string]interface{}{}
	if status != "" {
		query += " AND d.status = $status"
		params["status"] = status
	}
	if caseType != "" {
		query += " AND d.type = $type"
		params["type"] = caseType
	}
	query += fmt.Sprintf(" ORDER BY d.createdAt DESC LIMIT %d OFFSET %d", count, offset)

	rows, err := cm.conn.GetCluster().Query(query, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: params,
	})
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Case list query failed")
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := rows.Row(&c); err != nil {
			log.Warn().Err(err).Msg("Failed to decode case row")
			continue
		}
		cases = append(cases, c)
	}
	return cases, nil
}
