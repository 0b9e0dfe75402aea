// Package idempotency makes case-output submission safe to retry. The first
// successful write for a key is authoritative; replays return the stored
// response instead of re-executing the pipeline.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"regulonlabs.com/casedesk/internal/models"
)

// RetentionWindow is how long records are kept before they become eligible
// for expiry. Generous on purpose: correctness never depends on the exact
// window, only storage hygiene does.
const RetentionWindow = 7 * 24 * time.Hour

// Store persists idempotency records. Lookup returns (nil, nil) on a miss.
// Record inserts-if-absent atomically per key: when two concurrent retries
// race, exactly one record is persisted and the loser receives the winner's
// record rather than an error.
type Store interface {
	Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Record(ctx context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error)
}

// OutputKey derives the deduplication key for an output submission from the
// actor, the target case, and the caller-supplied request token.
func OutputKey(agentID, caseID, requestToken string) string {
	return fmt.Sprintf("outputs:%s:%s:%s", agentID, caseID, requestToken)
}
