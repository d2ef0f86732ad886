package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

// fakeProposer scripts per-participant behavior.
type fakeProposer struct {
	delays    map[string]time.Duration
	errs      map[string]error
	malformed map[string]bool
	revised   map[string]string
}

func (f *fakeProposer) Generate(ctx context.Context, prompt string, profile domain.ParticipantProfile, domains []string) (*domain.Proposal, error) {
	if d := f.delays[profile.ID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[profile.ID]; err != nil {
		return nil, err
	}
	if f.malformed[profile.ID] {
		return &domain.Proposal{Recommendation: "bad", Confidence: 3.0}, nil
	}
	return &domain.Proposal{
		Recommendation: "rec-" + profile.ID,
		Confidence:     0.8,
		Relevance:      1.0,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeProposer) Critique(ctx context.Context, profile domain.ParticipantProfile, proposals []domain.Proposal) (*domain.Critique, error) {
	if err := f.errs[profile.ID]; err != nil {
		return nil, err
	}
	return &domain.Critique{Text: "critique from " + profile.ID, CreatedAt: time.Now()}, nil
}

func (f *fakeProposer) Revise(ctx context.Context, profile domain.ParticipantProfile, original domain.Proposal, critiques []domain.Critique) (*domain.Proposal, error) {
	if err := f.errs[profile.ID]; err != nil {
		return nil, err
	}
	rec := original.Recommendation
	if r, ok := f.revised[profile.ID]; ok {
		rec = r
	}
	return &domain.Proposal{Recommendation: rec, Confidence: 0.9, Relevance: 1.0, CreatedAt: time.Now()}, nil
}

func panelOf(ids ...string) []domain.ParticipantProfile {
	panel := make([]domain.ParticipantProfile, len(ids))
	for i, id := range ids {
		panel[i] = domain.ParticipantProfile{ID: id, Role: domain.RoleProposer}
	}
	return panel
}

func TestCollectPanelOrder(t *testing.T) {
	// First panel member is slowest; results must still come back in
	// panel order, not completion order.
	fake := &fakeProposer{delays: map[string]time.Duration{
		"a": 30 * time.Millisecond,
		"b": 10 * time.Millisecond,
	}}
	c := New(fake, Options{MinQuorum: 2, ProposeTimeout: time.Second})

	proposals, err := c.Collect(context.Background(), "s1", "prompt", panelOf("a", "b", "c"), nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(proposals) != 3 {
		t.Fatalf("expected 3 proposals, got %d", len(proposals))
	}
	for i, want := range []string{"a", "b", "c"} {
		if proposals[i].ParticipantID != want {
			t.Fatalf("position %d: got %s, want %s", i, proposals[i].ParticipantID, want)
		}
	}
}

func TestCollectExcludesFailedAndSlow(t *testing.T) {
	fake := &fakeProposer{
		errs:   map[string]error{"b": errors.New("boom")},
		delays: map[string]time.Duration{"c": 200 * time.Millisecond},
	}
	c := New(fake, Options{MinQuorum: 2, ProposeTimeout: 20 * time.Millisecond})

	proposals, err := c.Collect(context.Background(), "s1", "prompt", panelOf("a", "b", "c", "d"), nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(proposals))
	}
	if proposals[0].ParticipantID != "a" || proposals[1].ParticipantID != "d" {
		t.Fatalf("unexpected participants: %+v", proposals)
	}
}

func TestCollectInsufficientQuorum(t *testing.T) {
	fake := &fakeProposer{errs: map[string]error{"b": errors.New("down")}}
	c := New(fake, Options{MinQuorum: 2})

	_, err := c.Collect(context.Background(), "s1", "prompt", panelOf("a", "b"), nil, 0)
	if !errors.Is(err, ErrInsufficientQuorum) {
		t.Fatalf("err = %v, want ErrInsufficientQuorum", err)
	}
}

func TestCollectRejectsMalformedProposal(t *testing.T) {
	fake := &fakeProposer{malformed: map[string]bool{"b": true}}
	c := New(fake, Options{MinQuorum: 2})

	proposals, err := c.Collect(context.Background(), "s1", "prompt", panelOf("a", "b", "c"), nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, p := range proposals {
		if p.ParticipantID == "b" {
			t.Fatalf("malformed proposal was not rejected: %+v", p)
		}
	}
}

func TestCollectSkipsAbstainers(t *testing.T) {
	fake := &fakeProposer{}
	c := New(fake, Options{MinQuorum: 2})

	panel := panelOf("a", "b")
	panel = append(panel, domain.ParticipantProfile{ID: "obs", Role: domain.RoleAbstainer})

	proposals, err := c.Collect(context.Background(), "s1", "prompt", panel, nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, p := range proposals {
		if p.ParticipantID == "obs" {
			t.Fatalf("abstainer proposed: %+v", p)
		}
	}

	// Abstainers do critique.
	critiques, err := c.CollectCritiques(context.Background(), "s1", panel, proposals, 1)
	if err != nil {
		t.Fatalf("CollectCritiques failed: %v", err)
	}
	found := false
	for _, cr := range critiques {
		if cr.ParticipantID == "obs" {
			found = true
		}
	}
	if !found {
		t.Fatalf("abstainer critique missing: %+v", critiques)
	}
}

func TestCollectReviewersSitOutOpeningRound(t *testing.T) {
	fake := &fakeProposer{}
	c := New(fake, Options{MinQuorum: 2})

	panel := panelOf("a", "b")
	panel = append(panel, domain.ParticipantProfile{ID: "rev", Role: domain.RoleReviewer})

	proposals, err := c.Collect(context.Background(), "s1", "prompt", panel, nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, p := range proposals {
		if p.ParticipantID == "rev" {
			t.Fatalf("reviewer proposed in the opening round: %+v", p)
		}
	}

	// Reviewers critique like everyone else.
	critiques, err := c.CollectCritiques(context.Background(), "s1", panel, proposals, 1)
	if err != nil {
		t.Fatalf("CollectCritiques failed: %v", err)
	}
	found := false
	for _, cr := range critiques {
		if cr.ParticipantID == "rev" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reviewer critique missing: %+v", critiques)
	}

	// In later rounds a reviewer may propose.
	proposals, err = c.Collect(context.Background(), "s1", "prompt", panel, nil, 1)
	if err != nil {
		t.Fatalf("Collect round 1 failed: %v", err)
	}
	found = false
	for _, p := range proposals {
		if p.ParticipantID == "rev" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reviewer missing from later round: %+v", proposals)
	}
}

func TestCollectRevisionsKeepPriorOnFailure(t *testing.T) {
	fake := &fakeProposer{
		errs:    map[string]error{"b": errors.New("revise down")},
		revised: map[string]string{"a": "rec-a-v2"},
	}
	c := New(fake, Options{MinQuorum: 2})

	prior := []domain.Proposal{
		{ParticipantID: "a", Recommendation: "rec-a", Confidence: 0.7, Relevance: 1, Round: 0},
		{ParticipantID: "b", Recommendation: "rec-b", Confidence: 0.6, Relevance: 1, Round: 0},
	}
	revisions, err := c.CollectRevisions(context.Background(), "s1", panelOf("a", "b"), prior, nil, 1)
	if err != nil {
		t.Fatalf("CollectRevisions failed: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].Recommendation != "rec-a-v2" || revisions[0].Round != 1 {
		t.Fatalf("revision for a not applied: %+v", revisions[0])
	}
	if revisions[1].Recommendation != "rec-b" || revisions[1].Round != 1 {
		t.Fatalf("prior proposal for b not kept: %+v", revisions[1])
	}
}

func TestCollectHonorsCancellation(t *testing.T) {
	fake := &fakeProposer{delays: map[string]time.Duration{
		"a": 500 * time.Millisecond,
		"b": 500 * time.Millisecond,
	}}
	c := New(fake, Options{MinQuorum: 2, ProposeTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Collect(ctx, "s1", "prompt", panelOf("a", "b"), nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("cancellation took too long: %v", elapsed)
	}
}

func TestCollectConcurrencyCap(t *testing.T) {
	// With a cap of 1 and per-call delays, calls serialize.
	fake := &fakeProposer{delays: map[string]time.Duration{
		"a": 20 * time.Millisecond,
		"b": 20 * time.Millisecond,
		"c": 20 * time.Millisecond,
	}}
	c := New(fake, Options{MaxConcurrent: 1, MinQuorum: 2, ProposeTimeout: time.Second})

	start := time.Now()
	proposals, err := c.Collect(context.Background(), "s1", "prompt", panelOf("a", "b", "c"), nil, 0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(proposals) != 3 {
		t.Fatalf("expected 3 proposals, got %d", len(proposals))
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("calls overlapped despite cap: %v", elapsed)
	}
}
