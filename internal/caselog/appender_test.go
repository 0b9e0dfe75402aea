package caselog

import (
	"fmt"
	"testing"

	"regulonlabs.com/casedesk/internal/models"
)

func TestAppendOutputReturnsIndex(t *testing.T) {
	c := &models.Case{}

	for i := 0; i < 5; i++ {
		idx := AppendOutput(c, models.OutputEntry{Content: fmt.Sprintf("out-%d", i)})
		if idx != i {
			t.Errorf("append %d returned index %d, want %d", i, idx, i)
		}
	}
	if len(c.Outputs) != 5 {
		t.Errorf("len(Outputs) = %d, want 5", len(c.Outputs))
	}
}

func TestAppendOutputEviction(t *testing.T) {
	c := &models.Case{}
	extra := 7

	for i := 0; i < OutputsCap+extra; i++ {
		idx := AppendOutput(c, models.OutputEntry{Content: fmt.Sprintf("out-%d", i)})
		if i >= OutputsCap-1 && idx != OutputsCap-1 {
			t.Errorf("append %d returned index %d, want %d once cap reached", i, idx, OutputsCap-1)
		}
	}

	if len(c.Outputs) != OutputsCap {
		t.Fatalf("len(Outputs) = %d, want exactly %d", len(c.Outputs), OutputsCap)
	}

	// The retained window is the most recent OutputsCap entries in original
	// submission order.
	for i, out := range c.Outputs {
		want := fmt.Sprintf("out-%d", extra+i)
		if out.Content != want {
			t.Errorf("Outputs[%d].Content = %q, want %q", i, out.Content, want)
		}
	}
}

func TestAppendAuditEviction(t *testing.T) {
	c := &models.Case{}

	for i := 0; i < AuditTrailCap+3; i++ {
		AppendAudit(c, models.AuditEntry{Action: fmt.Sprintf("act-%d", i)})
	}

	if len(c.AuditTrail) != AuditTrailCap {
		t.Fatalf("len(AuditTrail) = %d, want exactly %d", len(c.AuditTrail), AuditTrailCap)
	}
	if c.AuditTrail[0].Action != "act-3" {
		t.Errorf("oldest retained audit entry = %q, want %q", c.AuditTrail[0].Action, "act-3")
	}
	if c.AuditTrail[AuditTrailCap-1].Action != fmt.Sprintf("act-%d", AuditTrailCap+2) {
		t.Errorf("newest audit entry = %q", c.AuditTrail[AuditTrailCap-1].Action)
	}
}
