// Package debate runs bounded critique/revise rounds when the initial
// proposal set lacks consensus.
package debate

import (
	"context"
	"log"

	"github.com/xiaot623/conclave/internal/collector"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/voting"
)

// Options configures the orchestrator's stop condition.
type Options struct {
	MaxRounds              int
	ConfidenceThreshold    float64
	ConcentrationThreshold float64
}

func (o *Options) fill() {
	if o.MaxRounds <= 0 {
		o.MaxRounds = 2
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.85
	}
	if o.ConcentrationThreshold <= 0 {
		o.ConcentrationThreshold = 0.80
	}
}

// Orchestrator decides whether refinement is needed and runs debate
// rounds, strictly one after another: a round's revisions depend on its
// complete critique set.
type Orchestrator struct {
	collector  *collector.Collector
	aggregator *voting.Aggregator
	opts       Options
}

// New creates a debate orchestrator.
func New(c *collector.Collector, a *voting.Aggregator, opts Options) *Orchestrator {
	opts.fill()
	return &Orchestrator{collector: c, aggregator: a, opts: opts}
}

// NeedsDebate evaluates the stop condition on a provisional result.
func (o *Orchestrator) NeedsDebate(provisional *domain.VotingResult) bool {
	if provisional.InsufficientData {
		return false
	}
	return provisional.AggregateConfidence < o.opts.ConfidenceThreshold ||
		provisional.ConcentrationIndex < o.opts.ConcentrationThreshold
}

// Run starts from the round-0 proposals and debates until the stop
// condition holds or MaxRounds is exhausted. It returns every round
// (round 0 included) and the provisional result of the last one.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, panel []domain.ParticipantProfile, initial []domain.Proposal, weightOf voting.WeightFn) ([]domain.Round, *domain.VotingResult, error) {
	rounds := []domain.Round{{Number: 0, Proposals: initial}}
	current := initial
	provisional := o.aggregator.Aggregate(current, weightOf)

	for roundNum := 1; roundNum <= o.opts.MaxRounds && o.NeedsDebate(provisional); roundNum++ {
		log.Printf("session %s: debate round %d (confidence=%.3f hhi=%.3f)",
			sessionID, roundNum, provisional.AggregateConfidence, provisional.ConcentrationIndex)

		critiques, err := o.collector.CollectCritiques(ctx, sessionID, panel, current, roundNum)
		if err != nil {
			return rounds, provisional, err
		}
		if len(critiques) < o.collector.MinQuorum() {
			// Not enough critics to refine anything; voting proceeds on
			// the standing proposals.
			log.Printf("WARN: session %s: debate round %d aborted, %d critiques below quorum", sessionID, roundNum, len(critiques))
			break
		}

		revised, err := o.collector.CollectRevisions(ctx, sessionID, panel, current, critiques, roundNum)
		if err != nil {
			return rounds, provisional, err
		}

		rounds = append(rounds, domain.Round{Number: roundNum, Proposals: revised, Critiques: critiques})
		current = revised
		provisional = o.aggregator.Aggregate(current, weightOf)
	}

	return rounds, provisional, nil
}
