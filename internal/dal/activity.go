package dal

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/models"
)

// ActivityModel handles the append-only activity stream
type ActivityModel struct {
	conn *Connection
}

// NewActivityModel creates a new activity model instance
func NewActivityModel(conn *Connection) *ActivityModel {
	return &ActivityModel{conn: conn}
}

// LogActivity appends one entry to the activity stream. Entries are
// immutable; each gets a fresh document under "Activity/{uuid}".
func (am *ActivityModel) LogActivity(ctx context.Context, entry models.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	docID := fmt.Sprintf("Activity/%s", entry.ID)

	_, err := am.conn.Collection().Insert(docID, entry, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		log.Error().Err(err).Str("action", entry.Action).Msg("Failed to insert activity entry")
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity retrieves the most recent entries, newest first. A non-empty
// caseID narrows the feed to one case.
func (am *ActivityModel) ListActivity(ctx context.Context, caseID string, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d WHERE META(d).id LIKE 'Activity/%%'",
		am.conn.GetBucketName(),
	)
	params := map[string]interface{}{}
	if caseID != "" {
		query += " AND d.caseId = $caseId"
		params["caseId"] = caseID
	}
	query += fmt.Sprintf(" ORDER BY d.ts DESC LIMIT %d", limit)

	rows, err := am.conn.GetCluster().Query(query, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: params,
	})
	if err != nil {
		log.Error().Err(err).Msg("Activity list query failed")
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Row(&e); err != nil {
			log.Warn().Err(err).Msg("Failed to decode activity row")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
