package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"regulonlabs.com/casedesk/internal/caselog"
	"regulonlabs.com/casedesk/internal/citations"
	"regulonlabs.com/casedesk/internal/idempotency"
	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/internal/ratelimit"
)

type fakeCaseStore struct {
	mu    sync.Mutex
	cases map[string]*models.Case
	fail  error
}

func (f *fakeCaseStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c, ok := f.cases[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCaseStore) UpdateCase(_ context.Context, id string, mutate func(c *models.Case) error) (*models.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c, ok := f.cases[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

type fakePolicyStore struct {
	policies map[string]*models.Policy
}

func (f *fakePolicyStore) GetPolicy(_ context.Context, id string) (*models.Policy, error) {
	return f.policies[id], nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	touched []string
	fail    error
}

func (f *fakeDirectory) TouchAgent(_ context.Context, agentID, activity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.touched = append(f.touched, agentID+":"+activity)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
	fail    error
}

func (f *fakeSink) LogActivity(_ context.Context, e models.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSink) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	cases    *fakeCaseStore
	dir      *fakeDirectory
	sink     *fakeSink
}

func newFixture(t *testing.T, perMinute int) *fixture {
	t.Helper()

	cases := &fakeCaseStore{cases: map[string]*models.Case{
		"case-1": {
			ID:     "case-1",
			Title:  "Sanctions exposure question",
			Type:   models.CasePolicyQA,
			Status: models.StatusOpen,
			Input:  "Does policy X permit onboarding entity Y?",
		},
		"case-2": {
			ID:     "case-2",
			Title:  "General request",
			Type:   models.CaseGeneral,
			Status: models.StatusOpen,
			Input:  "summarize",
		},
	}}
	policies := &fakePolicyStore{policies: map[string]*models.Policy{
		"pol-1": {
			ID:      "pol-1",
			Name:    "Sanctions Screening",
			Version: "1.0",
			Chunks:  []models.PolicyChunk{{ID: "c1", Text: "screening rules"}},
		},
	}}
	dir := &fakeDirectory{}
	sink := &fakeSink{}

	p := New(
		ratelimit.NewRegistry(perMinute),
		idempotency.NewMemoryStore(),
		citations.NewValidator(policies),
		cases,
		dir,
		sink,
	)
	return &fixture{pipeline: p, cases: cases, dir: dir, sink: sink}
}

func validRequest(token string) Request {
	return Request{
		CaseID:       "case-1",
		AgentID:      "agent-1",
		Kind:         models.OutputFinal,
		Content:      "Entity Y is out of scope per the screening rules.",
		Citations:    []models.Citation{{PolicyID: "pol-1", ChunkID: "c1"}},
		RequestToken: token,
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t, 30)

	res, rej, err := f.pipeline.Submit(context.Background(), validRequest("tok-1"))
	if err != nil || rej != nil {
		t.Fatalf("Submit: res=%v rej=%+v err=%v", res, rej, err)
	}
	if res.Replayed {
		t.Error("first submission marked as replay")
	}
	if res.Response["outputIndex"] != 0 {
		t.Errorf("outputIndex = %v, want 0", res.Response["outputIndex"])
	}
	if res.Response["caseId"] != "case-1" {
		t.Errorf("caseId = %v", res.Response["caseId"])
	}

	c, _ := f.cases.GetCase(context.Background(), "case-1")
	if len(c.Outputs) != 1 {
		t.Fatalf("case has %d outputs, want 1", len(c.Outputs))
	}
	if len(c.AuditTrail) != 1 || c.AuditTrail[0].Action != "output_posted" {
		t.Errorf("audit trail = %+v", c.AuditTrail)
	}

	actions := f.sink.actions()
	if len(actions) != 1 || actions[0] != "case_output_posted" {
		t.Errorf("activity actions = %v", actions)
	}
}

func TestSubmitIdempotentReplay(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	first, rej, err := f.pipeline.Submit(ctx, validRequest("tok-1"))
	if err != nil || rej != nil {
		t.Fatalf("first Submit: rej=%+v err=%v", rej, err)
	}
	second, rej, err := f.pipeline.Submit(ctx, validRequest("tok-1"))
	if err != nil || rej != nil {
		t.Fatalf("second Submit: rej=%+v err=%v", rej, err)
	}
	if !second.Replayed {
		t.Error("second submission with same token not marked as replay")
	}

	// Byte-identical payloads both times.
	a, _ := json.Marshal(first.Response)
	b, _ := json.Marshal(second.Response)
	if string(a) != string(b) {
		t.Errorf("replay payload differs:\n first=%s\nsecond=%s", a, b)
	}

	c, _ := f.cases.GetCase(ctx, "case-1")
	if len(c.Outputs) != 1 {
		t.Errorf("case has %d outputs after replay, want exactly 1", len(c.Outputs))
	}
}

func TestSubmitDistinctTokensAppendSeparately(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, rej, err := f.pipeline.Submit(ctx, validRequest(fmt.Sprintf("tok-%d", i)))
		if err != nil || rej != nil {
			t.Fatalf("Submit %d: rej=%+v err=%v", i, rej, err)
		}
		if res.Response["outputIndex"] != i {
			t.Errorf("outputIndex = %v, want %d", res.Response["outputIndex"], i)
		}
	}
}

func TestSubmitNoTokenAlwaysExecutes(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, rej, err := f.pipeline.Submit(ctx, validRequest("")); err != nil || rej != nil {
			t.Fatalf("Submit: rej=%+v err=%v", rej, err)
		}
	}
	c, _ := f.cases.GetCase(ctx, "case-1")
	if len(c.Outputs) != 2 {
		t.Errorf("tokenless submissions appended %d outputs, want 2", len(c.Outputs))
	}
}

func TestSubmitRateLimited(t *testing.T) {
	// Rate limit 2/min; three final outputs with distinct tokens inside one
	// instant: first two accepted at indices 0 and 1, third rejected.
	f := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, rej, err := f.pipeline.Submit(ctx, validRequest(fmt.Sprintf("tok-%d", i)))
		if err != nil || rej != nil {
			t.Fatalf("Submit %d: rej=%+v err=%v", i, rej, err)
		}
		if res.Response["outputIndex"] != i {
			t.Errorf("outputIndex = %v, want %d", res.Response["outputIndex"], i)
		}
	}

	_, rej, err := f.pipeline.Submit(ctx, validRequest("tok-2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonRateLimited {
		t.Fatalf("rejection = %+v, want rate_limited", rej)
	}
	if rej.RetryAfterSeconds < 1 {
		t.Errorf("RetryAfterSeconds = %d, want >= 1", rej.RetryAfterSeconds)
	}

	// The rejection is observable in the activity stream.
	actions := f.sink.actions()
	if actions[len(actions)-1] != "rate_limited" {
		t.Errorf("last activity action = %v, want rate_limited", actions[len(actions)-1])
	}
}

func TestSubmitCitationsRequired(t *testing.T) {
	f := newFixture(t, 30)

	req := validRequest("tok-1")
	req.Citations = nil
	_, rej, err := f.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonCitationsRequired {
		t.Fatalf("rejection = %+v, want citations_required", rej)
	}

	// Nothing was appended.
	c, _ := f.cases.GetCase(context.Background(), "case-1")
	if len(c.Outputs) != 0 {
		t.Errorf("rejected submission appended %d outputs", len(c.Outputs))
	}
}

func TestSubmitMalformedCitationsDroppedThenRequired(t *testing.T) {
	f := newFixture(t, 30)

	// Shape normalization silently drops the malformed entry, which then
	// trips the mandatory-citation rule.
	req := validRequest("tok-1")
	req.Citations = []models.Citation{{PolicyID: "pol-1"}}
	_, rej, err := f.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonCitationsRequired {
		t.Fatalf("rejection = %+v, want citations_required", rej)
	}
}

func TestSubmitInvalidCitationTarget(t *testing.T) {
	f := newFixture(t, 30)

	req := validRequest("tok-1")
	req.Citations = []models.Citation{{PolicyID: "pol-1", ChunkID: "missing"}}
	_, rej, err := f.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonInvalidCitations {
		t.Fatalf("rejection = %+v, want invalid_citations", rej)
	}
	if rej.Message != "Chunk missing not found in policy pol-1" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestSubmitCaseNotFound(t *testing.T) {
	f := newFixture(t, 30)

	req := validRequest("tok-1")
	req.CaseID = "case-x"
	_, rej, err := f.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonNotFound {
		t.Fatalf("rejection = %+v, want not_found", rej)
	}
}

func TestSubmitEmptyContent(t *testing.T) {
	f := newFixture(t, 30)

	req := validRequest("tok-1")
	req.Content = "   "
	_, rej, err := f.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonInvalidBody {
		t.Fatalf("rejection = %+v, want invalid_body", rej)
	}
}

func TestSubmitStorageFailurePropagates(t *testing.T) {
	f := newFixture(t, 30)
	f.cases.fail = errors.New("bucket unavailable")

	_, rej, err := f.pipeline.Submit(context.Background(), validRequest("tok-1"))
	if err == nil {
		t.Fatalf("expected error, got rej=%+v", rej)
	}
}

func TestSubmitBestEffortSideEffectsNeverFail(t *testing.T) {
	f := newFixture(t, 30)
	f.dir.fail = errors.New("directory down")
	f.sink.fail = errors.New("sink down")

	res, rej, err := f.pipeline.Submit(context.Background(), validRequest("tok-1"))
	if err != nil || rej != nil {
		t.Fatalf("best-effort failures broke the submission: rej=%+v err=%v", rej, err)
	}
	if res.Response["outputIndex"] != 0 {
		t.Errorf("outputIndex = %v", res.Response["outputIndex"])
	}
}

func TestSubmitOutputEvictionKeepsIndexAtCap(t *testing.T) {
	f := newFixture(t, 10000)
	ctx := context.Background()

	req := validRequest("")
	req.CaseID = "case-2"
	req.Kind = models.OutputDraft
	req.Citations = nil

	var lastIndex any
	for i := 0; i < caselog.OutputsCap+5; i++ {
		res, rej, err := f.pipeline.Submit(ctx, req)
		if err != nil || rej != nil {
			t.Fatalf("Submit %d: rej=%+v err=%v", i, rej, err)
		}
		lastIndex = res.Response["outputIndex"]
	}

	if lastIndex != caselog.OutputsCap-1 {
		t.Errorf("index after eviction = %v, want %d", lastIndex, caselog.OutputsCap-1)
	}
	c, _ := f.cases.GetCase(ctx, "case-2")
	if len(c.Outputs) != caselog.OutputsCap {
		t.Errorf("retained %d outputs, want %d", len(c.Outputs), caselog.OutputsCap)
	}
}

func TestSubmitConcurrentAppendsSameCase(t *testing.T) {
	f := newFixture(t, 10000)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest(fmt.Sprintf("tok-%d", i))
			req.CaseID = "case-2"
			req.Kind = models.OutputDraft
			req.Citations = nil
			if _, rej, err := f.pipeline.Submit(ctx, req); err != nil || rej != nil {
				t.Errorf("Submit %d: rej=%+v err=%v", i, rej, err)
			}
		}(i)
	}
	wg.Wait()

	c, _ := f.cases.GetCase(ctx, "case-2")
	if len(c.Outputs) != n {
		t.Errorf("concurrent appends retained %d outputs, want %d", len(c.Outputs), n)
	}
	if len(c.AuditTrail) != n {
		t.Errorf("concurrent appends retained %d audit entries, want %d", len(c.AuditTrail), n)
	}
}

func TestSubmitReplayDoesNotBypassRateCheck(t *testing.T) {
	// The rate check runs once per inbound call regardless of replay
	// outcome: with capacity 1, the replay of an accepted submission is
	// itself rate limited.
	f := newFixture(t, 1)
	ctx := context.Background()

	if _, rej, err := f.pipeline.Submit(ctx, validRequest("tok-1")); err != nil || rej != nil {
		t.Fatalf("first Submit: rej=%+v err=%v", rej, err)
	}
	_, rej, err := f.pipeline.Submit(ctx, validRequest("tok-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil || rej.Reason != ReasonRateLimited {
		t.Fatalf("rejection = %+v, want rate_limited before idempotency lookup", rej)
	}
}

func TestSubmitTimestampShape(t *testing.T) {
	f := newFixture(t, 30)

	res, _, err := f.pipeline.Submit(context.Background(), validRequest("tok-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ts, ok := res.Response["outputTs"].(string)
	if !ok {
		t.Fatalf("outputTs is %T, want string", res.Response["outputTs"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("outputTs %q is not RFC3339: %v", ts, err)
	}
}
