package dal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/idempotency"
	"regulonlabs.com/casedesk/internal/models"
)

// IdempotencyModel is the Couchbase-backed idempotency.Store. Insert-if-absent
// comes straight from the KV engine: a plain Insert is atomic per key, so a
// race between concurrent retries always has exactly one winner.
type IdempotencyModel struct {
	conn *Connection
}

var _ idempotency.Store = (*IdempotencyModel)(nil)

// NewIdempotencyModel creates a new idempotency model instance
func NewIdempotencyModel(conn *Connection) *IdempotencyModel {
	return &IdempotencyModel{conn: conn}
}

func idemDocID(key string) string {
	return fmt.Sprintf("Idem/%s", key)
}

// Lookup returns the stored record for key, or (nil, nil) on a miss.
func (im *IdempotencyModel) Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	result, err := im.conn.Collection().Get(idemDocID(key), &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	var rec models.IdempotencyRecord
	if err := result.Content(&rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Record inserts rec if absent. When a concurrent writer got there first, the
// existing record is returned instead and no error is raised; storage-side
// expiry reclaims records after the retention window.
func (im *IdempotencyModel) Record(ctx context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	docID := idemDocID(rec.Key)

	_, err := im.conn.Collection().Insert(docID, rec, &gocb.InsertOptions{
		Context: ctx,
		Expiry:  idempotency.RetentionWindow,
	})
	if err == nil {
		return &rec, nil
	}
	if errors.Is(err, gocb.ErrDocumentExists) {
		log.Debug().Str("key", rec.Key).Msg("Idempotency record already present, returning stored copy")
		existing, lookupErr := im.Lookup(ctx, rec.Key)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
		// Insert lost the race but the winner expired between the two calls.
		// Treat our record as authoritative.
		return &rec, nil
	}
	return nil, fmt.Errorf("insert idempotency record: %w", err)
}
