package debate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/conclave/internal/collector"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/voting"
)

// debateProposer converges or keeps disagreeing depending on the script.
type debateProposer struct {
	mu          sync.Mutex
	converge    bool
	critiqueErr error
	rounds      int
}

func (d *debateProposer) Generate(ctx context.Context, prompt string, profile domain.ParticipantProfile, domains []string) (*domain.Proposal, error) {
	return &domain.Proposal{Recommendation: "rec-" + profile.ID, Confidence: 0.5, Relevance: 1, CreatedAt: time.Now()}, nil
}

func (d *debateProposer) Critique(ctx context.Context, profile domain.ParticipantProfile, proposals []domain.Proposal) (*domain.Critique, error) {
	if d.critiqueErr != nil {
		return nil, d.critiqueErr
	}
	return &domain.Critique{Text: "from " + profile.ID, CreatedAt: time.Now()}, nil
}

func (d *debateProposer) Revise(ctx context.Context, profile domain.ParticipantProfile, original domain.Proposal, critiques []domain.Critique) (*domain.Proposal, error) {
	d.mu.Lock()
	d.rounds++
	d.mu.Unlock()
	rec := original.Recommendation
	conf := original.Confidence
	if d.converge {
		rec = "consensus"
		conf = 0.95
	}
	return &domain.Proposal{Recommendation: rec, Confidence: conf, Relevance: 1, CreatedAt: time.Now()}, nil
}

func weightsOne(string) float64 { return 1.0 }

func panelOf(ids ...string) []domain.ParticipantProfile {
	panel := make([]domain.ParticipantProfile, len(ids))
	for i, id := range ids {
		panel[i] = domain.ParticipantProfile{ID: id, Role: domain.RoleProposer}
	}
	return panel
}

func initialSplit(ids ...string) []domain.Proposal {
	proposals := make([]domain.Proposal, len(ids))
	for i, id := range ids {
		proposals[i] = domain.Proposal{ParticipantID: id, Recommendation: "rec-" + id, Confidence: 0.5, Relevance: 1}
	}
	return proposals
}

func newOrchestrator(p collector.Proposer, maxRounds int) *Orchestrator {
	c := collector.New(p, collector.Options{MinQuorum: 2, ProposeTimeout: time.Second})
	return New(c, voting.NewAggregator(0), Options{MaxRounds: maxRounds})
}

func TestNoDebateOnStrongConsensus(t *testing.T) {
	fake := &debateProposer{}
	o := newOrchestrator(fake, 2)

	// Five participants, one recommendation: HHI=1.0, confidence=1.0.
	initial := []domain.Proposal{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		initial = append(initial, domain.Proposal{ParticipantID: id, Recommendation: "A", Confidence: 0.8, Relevance: 1})
	}

	rounds, provisional, err := o.Run(context.Background(), "s1", panelOf("a", "b", "c", "d", "e"), initial, weightsOne)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("expected no debate rounds, got %d rounds", len(rounds))
	}
	if fake.rounds != 0 {
		t.Fatalf("revise was called %d times", fake.rounds)
	}
	if provisional.AggregateConfidence != 1.0 || provisional.ConcentrationIndex != 1.0 {
		t.Fatalf("unexpected provisional: %+v", provisional)
	}
}

func TestDebateConvergesAndStops(t *testing.T) {
	fake := &debateProposer{converge: true}
	o := newOrchestrator(fake, 2)

	rounds, provisional, err := o.Run(context.Background(), "s1", panelOf("a", "b", "c"), initialSplit("a", "b", "c"), weightsOne)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// One debate round produces full consensus; no second round runs.
	if len(rounds) != 2 {
		t.Fatalf("expected round 0 + 1 debate round, got %d", len(rounds))
	}
	if provisional.Winner != "consensus" {
		t.Fatalf("winner = %q, want consensus", provisional.Winner)
	}
	if len(rounds[1].Critiques) != 3 {
		t.Fatalf("expected 3 critiques recorded, got %d", len(rounds[1].Critiques))
	}
}

func TestDebateTerminatesAtMaxRounds(t *testing.T) {
	// Participants never converge; the orchestrator must still stop.
	fake := &debateProposer{}
	o := newOrchestrator(fake, 2)

	rounds, provisional, err := o.Run(context.Background(), "s1", panelOf("a", "b", "c"), initialSplit("a", "b", "c"), weightsOne)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rounds) != 3 {
		t.Fatalf("expected round 0 + 2 debate rounds, got %d", len(rounds))
	}
	if provisional == nil || provisional.Winner == "" {
		t.Fatalf("expected a provisional result, got %+v", provisional)
	}
}

func TestDebateRoundsAreSequential(t *testing.T) {
	fake := &debateProposer{}
	o := newOrchestrator(fake, 2)

	rounds, _, err := o.Run(context.Background(), "s1", panelOf("a", "b", "c"), initialSplit("a", "b", "c"), weightsOne)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, r := range rounds {
		if r.Number != i {
			t.Fatalf("round %d has number %d", i, r.Number)
		}
		for _, p := range r.Proposals {
			if p.Round != i {
				t.Fatalf("round %d proposal tagged with round %d", i, p.Round)
			}
		}
	}
}

func TestDebateAbortsOnCritiqueShortfall(t *testing.T) {
	fake := &debateProposer{critiqueErr: errors.New("critics offline")}
	o := newOrchestrator(fake, 2)

	rounds, provisional, err := o.Run(context.Background(), "s1", panelOf("a", "b", "c"), initialSplit("a", "b", "c"), weightsOne)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Critique quorum shortfall ends debate; voting proceeds on round 0.
	if len(rounds) != 1 {
		t.Fatalf("expected only round 0, got %d rounds", len(rounds))
	}
	if provisional.Winner == "" {
		t.Fatalf("expected provisional winner from round 0")
	}
}
