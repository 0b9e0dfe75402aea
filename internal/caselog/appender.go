// Package caselog appends entries to a case's output log and audit trail
// under a fixed retention cap. When an append would exceed the cap, the
// oldest entries are evicted so that exactly the cap's worth of most-recent
// entries remain, in original relative order. Eviction is silent: no error,
// no audit record. That is the intended bounded-history policy.
//
// This package is a pure slice transform; callers are responsible for
// serializing concurrent appends to the same case (see pipeline).
package caselog

import "regulonlabs.com/casedesk/internal/models"

const (
	// OutputsCap bounds a case's output log.
	OutputsCap = 50
	// AuditTrailCap bounds a case's audit trail.
	AuditTrailCap = 200
)

// AppendOutput appends an output entry, evicting the oldest entries beyond
// OutputsCap, and returns the entry's index within the retained window after
// eviction. Indices are not stable across future appends once eviction is
// active.
func AppendOutput(c *models.Case, entry models.OutputEntry) int {
	c.Outputs = append(c.Outputs, entry)
	if len(c.Outputs) > OutputsCap {
		c.Outputs = c.Outputs[len(c.Outputs)-OutputsCap:]
	}
	return len(c.Outputs) - 1
}

// AppendAudit appends an audit entry, evicting the oldest entries beyond
// AuditTrailCap.
func AppendAudit(c *models.Case, entry models.AuditEntry) {
	c.AuditTrail = append(c.AuditTrail, entry)
	if len(c.AuditTrail) > AuditTrailCap {
		c.AuditTrail = c.AuditTrail[len(c.AuditTrail)-AuditTrailCap:]
	}
}
