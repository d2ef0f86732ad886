// Package collector dispatches concurrent collaborator calls to a panel
// and reassembles results in panel order.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xiaot623/conclave/internal/domain"
)

// ErrInsufficientQuorum is returned when too few participants responded
// to proceed to voting.
var ErrInsufficientQuorum = errors.New("insufficient_quorum")

// Proposer is the capability interface for one participant's generator.
type Proposer interface {
	Generate(ctx context.Context, prompt string, profile domain.ParticipantProfile, domains []string) (*domain.Proposal, error)
	Critique(ctx context.Context, profile domain.ParticipantProfile, proposals []domain.Proposal) (*domain.Critique, error)
	Revise(ctx context.Context, profile domain.ParticipantProfile, original domain.Proposal, critiques []domain.Critique) (*domain.Proposal, error)
}

// Options configures a Collector.
type Options struct {
	MaxConcurrent   int
	MinQuorum       int
	ProposeTimeout  time.Duration
	CritiqueTimeout time.Duration
	ReviseTimeout   time.Duration
}

func (o *Options) fill() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 8
	}
	if o.MinQuorum <= 0 {
		o.MinQuorum = 2
	}
	if o.ProposeTimeout <= 0 {
		o.ProposeTimeout = 60 * time.Second
	}
	if o.CritiqueTimeout <= 0 {
		o.CritiqueTimeout = o.ProposeTimeout
	}
	if o.ReviseTimeout <= 0 {
		o.ReviseTimeout = o.ProposeTimeout
	}
}

// Collector fans collaborator calls out over a panel. The concurrency
// cap is global: sessions sharing a Collector share its slots.
type Collector struct {
	proposer Proposer
	sem      *semaphore.Weighted
	opts     Options
}

// New creates a collector around the given proposer capability.
func New(proposer Proposer, opts Options) *Collector {
	opts.fill()
	return &Collector{
		proposer: proposer,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:     opts,
	}
}

// MinQuorum exposes the configured quorum.
func (c *Collector) MinQuorum() int { return c.opts.MinQuorum }

// Collect requests one proposal from every voting participant on the
// panel. Reviewers sit out the opening round and only abstainers never
// propose. A slow or failing participant is excluded and logged, never
// blocking the rest. Results come back in panel order. Fewer than
// MinQuorum responses is ErrInsufficientQuorum.
func (c *Collector) Collect(ctx context.Context, sessionID, prompt string, panel []domain.ParticipantProfile, domains []string, round int) ([]domain.Proposal, error) {
	results := make([]*domain.Proposal, len(panel))
	var wg sync.WaitGroup

	for i, profile := range panel {
		if profile.Role == domain.RoleAbstainer {
			continue
		}
		if round == 0 && profile.Role == domain.RoleReviewer {
			continue
		}
		wg.Add(1)
		go func(i int, profile domain.ParticipantProfile) {
			defer wg.Done()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)

			callCtx, cancel := context.WithTimeout(ctx, c.opts.ProposeTimeout)
			defer cancel()

			proposal, err := c.proposer.Generate(callCtx, prompt, profile, domains)
			if err != nil {
				log.Printf("WARN: session %s round %d: participant %s failed to propose: %v", sessionID, round, profile.ID, err)
				return
			}
			if err := validateProposal(proposal); err != nil {
				log.Printf("WARN: session %s round %d: participant %s returned malformed proposal: %v", sessionID, round, profile.ID, err)
				return
			}
			proposal.ParticipantID = profile.ID
			proposal.Round = round
			results[i] = proposal
		}(i, profile)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proposals := compactProposals(results)
	if len(proposals) < c.opts.MinQuorum {
		return proposals, fmt.Errorf("session %s round %d: %d of %d participants responded: %w",
			sessionID, round, len(proposals), len(panel), ErrInsufficientQuorum)
	}
	return proposals, nil
}

// CollectCritiques asks every panel participant, abstainers included,
// to critique the round's proposal set. Shortfalls are not fatal; the
// caller decides whether the critique set is usable.
func (c *Collector) CollectCritiques(ctx context.Context, sessionID string, panel []domain.ParticipantProfile, proposals []domain.Proposal, round int) ([]domain.Critique, error) {
	results := make([]*domain.Critique, len(panel))
	var wg sync.WaitGroup

	for i, profile := range panel {
		wg.Add(1)
		go func(i int, profile domain.ParticipantProfile) {
			defer wg.Done()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)

			callCtx, cancel := context.WithTimeout(ctx, c.opts.CritiqueTimeout)
			defer cancel()

			critique, err := c.proposer.Critique(callCtx, profile, proposals)
			if err != nil {
				log.Printf("WARN: session %s round %d: participant %s failed to critique: %v", sessionID, round, profile.ID, err)
				return
			}
			if critique == nil || critique.Text == "" {
				log.Printf("WARN: session %s round %d: participant %s returned empty critique", sessionID, round, profile.ID)
				return
			}
			critique.ParticipantID = profile.ID
			critique.Round = round
			results[i] = critique
		}(i, profile)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	critiques := make([]domain.Critique, 0, len(panel))
	for _, c := range results {
		if c != nil {
			critiques = append(critiques, *c)
		}
	}
	return critiques, nil
}

// CollectRevisions gives every participant with a standing proposal its
// own critiques and collects revised proposals. A participant that fails
// to revise keeps its prior proposal. Results come back in panel order.
func (c *Collector) CollectRevisions(ctx context.Context, sessionID string, panel []domain.ParticipantProfile, prior []domain.Proposal, critiques []domain.Critique, round int) ([]domain.Proposal, error) {
	priorByID := make(map[string]domain.Proposal, len(prior))
	for _, p := range prior {
		priorByID[p.ParticipantID] = p
	}

	results := make([]*domain.Proposal, len(panel))
	var wg sync.WaitGroup

	for i, profile := range panel {
		original, ok := priorByID[profile.ID]
		if !ok || profile.Role == domain.RoleAbstainer {
			continue
		}
		relevant := critiquesFor(critiques, profile.ID)

		wg.Add(1)
		go func(i int, profile domain.ParticipantProfile, original domain.Proposal, relevant []domain.Critique) {
			defer wg.Done()

			// Keep the prior proposal whenever revision fails.
			keep := original
			keep.Round = round
			results[i] = &keep

			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)

			callCtx, cancel := context.WithTimeout(ctx, c.opts.ReviseTimeout)
			defer cancel()

			revised, err := c.proposer.Revise(callCtx, profile, original, relevant)
			if err != nil {
				log.Printf("WARN: session %s round %d: participant %s failed to revise, keeping prior proposal: %v", sessionID, round, profile.ID, err)
				return
			}
			if err := validateProposal(revised); err != nil {
				log.Printf("WARN: session %s round %d: participant %s returned malformed revision: %v", sessionID, round, profile.ID, err)
				return
			}
			revised.ParticipantID = profile.ID
			revised.Round = round
			results[i] = revised
		}(i, profile, original, relevant)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return compactProposals(results), nil
}

// critiquesFor selects the critiques addressed to a participant,
// including untargeted critiques of the whole set.
func critiquesFor(critiques []domain.Critique, participantID string) []domain.Critique {
	var relevant []domain.Critique
	for _, c := range critiques {
		if c.TargetID == "" || c.TargetID == participantID {
			relevant = append(relevant, c)
		}
	}
	return relevant
}

func validateProposal(p *domain.Proposal) error {
	if p == nil {
		return fmt.Errorf("nil proposal")
	}
	if p.Recommendation == "" {
		return fmt.Errorf("empty recommendation")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %v", p.Confidence)
	}
	if p.Relevance < 0 || p.Relevance > 1 {
		return fmt.Errorf("relevance out of range: %v", p.Relevance)
	}
	return nil
}

func compactProposals(results []*domain.Proposal) []domain.Proposal {
	proposals := make([]domain.Proposal, 0, len(results))
	for _, p := range results {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}
	return proposals
}
