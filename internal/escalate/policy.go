// Package escalate decides when a session consults the external arbiter
// and merges the arbiter's answer into the vote.
package escalate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/voting"
)

// Arbiter is the escalation oracle capability.
type Arbiter interface {
	Consult(ctx context.Context, summary domain.EscalationSummary, preferredClass string) (*domain.ArbiterResponse, error)
}

// Preferred arbiter classes derived from session domains.
const (
	ClassCritical = "critical"
	ClassDefault  = "default"
	ClassAuto     = "auto"
)

// criticalDomains route to the highest arbiter class.
var criticalDomains = map[string]bool{
	domain.DomainSecurity: true,
	domain.DomainEthics:   true,
}

// Options configures the escalation thresholds.
type Options struct {
	ConfidenceThreshold float64
	TieThreshold        float64
	HHIThreshold        float64
	ArbiterWeight       float64
	Timeout             time.Duration
}

func (o *Options) fill() {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.70
	}
	if o.TieThreshold <= 0 {
		o.TieThreshold = 0.05
	}
	if o.HHIThreshold <= 0 {
		o.HHIThreshold = 0.30
	}
	if o.ArbiterWeight <= 0 {
		o.ArbiterWeight = 1.0
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// Policy evaluates escalation conditions and performs at most one
// arbiter consultation per session.
type Policy struct {
	arbiter    Arbiter
	aggregator *voting.Aggregator
	opts       Options
}

// New creates an escalation policy. A nil arbiter degrades every
// escalation to a low-confidence finalize.
func New(arbiter Arbiter, aggregator *voting.Aggregator, opts Options) *Policy {
	opts.fill()
	return &Policy{arbiter: arbiter, aggregator: aggregator, opts: opts}
}

// ShouldEscalate reports whether the result is weak enough to consult
// the arbiter, with the triggering reason.
func (p *Policy) ShouldEscalate(result *domain.VotingResult) (bool, string) {
	switch {
	case result.InsufficientData:
		return false, ""
	case result.AggregateConfidence < p.opts.ConfidenceThreshold:
		return true, fmt.Sprintf("aggregate confidence %.3f below %.2f", result.AggregateConfidence, p.opts.ConfidenceThreshold)
	case result.TopShareGap < p.opts.TieThreshold:
		return true, fmt.Sprintf("top-two share gap %.3f below %.2f", result.TopShareGap, p.opts.TieThreshold)
	case result.ConcentrationIndex < p.opts.HHIThreshold:
		return true, fmt.Sprintf("vote concentration %.3f below %.2f", result.ConcentrationIndex, p.opts.HHIThreshold)
	}
	return false, ""
}

// PreferredClass derives the arbiter class from session domains:
// critical domains demand the critical class, other known domains the
// default class, and an unmapped domain set lets the arbiter choose.
func PreferredClass(domains []string) string {
	known := false
	for _, d := range domains {
		if criticalDomains[d] {
			return ClassCritical
		}
		if d != "" && d != domain.DomainGeneral {
			known = true
		}
	}
	if known {
		return ClassDefault
	}
	return ClassAuto
}

// Apply consults the arbiter for an escalated session and re-runs
// aggregation exactly once with the arbiter's proposal included. An
// unreachable arbiter is never fatal: the pre-escalation result is
// finalized with LowConfidence set. The returned proposal, when non-nil,
// belongs in the session's final round.
func (p *Policy) Apply(ctx context.Context, sessionID, operation string, domains []string, rounds []domain.Round, provisional *domain.VotingResult, weightOf voting.WeightFn, reason string) (*domain.VotingResult, *domain.Escalation, *domain.Proposal) {
	escalation := &domain.Escalation{
		Reason:         reason,
		PreferredClass: PreferredClass(domains),
		StartedAt:      time.Now(),
	}

	degraded := func(err error) (*domain.VotingResult, *domain.Escalation, *domain.Proposal) {
		log.Printf("WARN: session %s: arbiter consultation failed, finalizing pre-escalation winner: %v", sessionID, err)
		escalation.Error = err.Error()
		result := *provisional
		result.Escalated = true
		result.EscalationReason = reason
		result.LowConfidence = true
		return &result, escalation, nil
	}

	if p.arbiter == nil {
		return degraded(fmt.Errorf("no arbiter configured"))
	}

	summary := domain.EscalationSummary{
		SessionID:   sessionID,
		Operation:   operation,
		Domains:     domains,
		Reason:      reason,
		Rounds:      rounds,
		Provisional: provisional,
	}

	consultCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	response, err := p.arbiter.Consult(consultCtx, summary, escalation.PreferredClass)
	if err != nil {
		return degraded(err)
	}
	if response == nil || response.Recommendation == "" {
		return degraded(fmt.Errorf("arbiter returned empty recommendation"))
	}
	if response.Confidence < 0 || response.Confidence > 1 {
		return degraded(fmt.Errorf("arbiter confidence out of range: %v", response.Confidence))
	}

	escalation.Consulted = true
	escalation.Recommendation = response.Recommendation
	escalation.Confidence = response.Confidence
	escalation.Reasoning = response.Reasoning

	finalRound := 0
	var proposals []domain.Proposal
	if len(rounds) > 0 {
		last := rounds[len(rounds)-1]
		finalRound = last.Number
		proposals = append(proposals, last.Proposals...)
	}
	arbiterProposal := domain.Proposal{
		ProposalID:     "prop_" + uuid.New().String()[:8],
		ParticipantID:  domain.ArbiterParticipantID,
		Recommendation: response.Recommendation,
		Reasoning:      response.Reasoning,
		Confidence:     response.Confidence,
		Relevance:      1.0,
		Round:          finalRound,
		CreatedAt:      time.Now(),
	}
	proposals = append(proposals, arbiterProposal)

	// One re-aggregation, never a recursive re-escalation.
	merged := p.aggregator.Aggregate(proposals, func(id string) float64 {
		if id == domain.ArbiterParticipantID {
			return p.opts.ArbiterWeight
		}
		return weightOf(id)
	})
	merged.Escalated = true
	merged.EscalationReason = reason

	return merged, escalation, &arbiterProposal
}
