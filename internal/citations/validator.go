// Package citations enforces the evidence rules for case output submissions.
//
// Two failure philosophies coexist here on purpose: normalization is lenient
// and silently drops malformed citation entries, while the domain rules
// (mandatory citations, existence of cited targets) fail loudly with typed
// errors. Keep the two stages separate.
package citations

import (
	"context"
	"errors"
	"fmt"

	"regulonlabs.com/casedesk/internal/models"
)

// ErrCitationsRequired is returned when a policy_qa case receives a final
// output with zero citations. Callers surface it with the machine-readable
// reason "citations_required" so clients can tell "you forgot citations"
// apart from "your citations are malformed".
var ErrCitationsRequired = errors.New("at least one citation is required for final outputs on policy_qa cases")

// ValidationError reports a citation whose target does not exist.
type ValidationError struct {
	PolicyID string
	ChunkID  string
	Message  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PolicyStore is the read-only reference-data lookup the validator needs.
// Implementations return (nil, nil) when the policy does not exist.
type PolicyStore interface {
	GetPolicy(ctx context.Context, policyID string) (*models.Policy, error)
}

// Normalize filters raw citations down to well-formed ones. Entries missing a
// policy or chunk identifier are dropped silently; this never fails.
func Normalize(raw []models.Citation) []models.Citation {
	out := make([]models.Citation, 0, len(raw))
	for _, c := range raw {
		if c.PolicyID == "" || c.ChunkID == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Validator checks citation domain rules against the policy store.
type Validator struct {
	policies PolicyStore
}

// NewValidator creates a validator backed by the given policy store.
func NewValidator(policies PolicyStore) *Validator {
	return &Validator{policies: policies}
}

// Validate enforces the mandatory-citation rule and then verifies that every
// citation resolves to an existing policy chunk. The mandatory rule applies
// only to final outputs on policy_qa cases; existence checks apply whenever
// citations are present, regardless of case kind.
func (v *Validator) Validate(ctx context.Context, caseType models.CaseType, kind models.OutputKind, cits []models.Citation) error {
	if caseType == models.CasePolicyQA && kind == models.OutputFinal && len(cits) == 0 {
		return ErrCitationsRequired
	}

	for _, cit := range cits {
		policy, err := v.policies.GetPolicy(ctx, cit.PolicyID)
		if err != nil {
			return fmt.Errorf("lookup policy %s: %w", cit.PolicyID, err)
		}
		if policy == nil {
			return &ValidationError{
				PolicyID: cit.PolicyID,
				Message:  fmt.Sprintf("Policy not found: %s", cit.PolicyID),
			}
		}
		if !policy.HasChunk(cit.ChunkID) {
			return &ValidationError{
				PolicyID: cit.PolicyID,
				ChunkID:  cit.ChunkID,
				Message:  fmt.Sprintf("Chunk %s not found in policy %s", cit.ChunkID, cit.PolicyID),
			}
		}
	}
	return nil
}
