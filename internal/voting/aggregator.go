// Package voting implements debate-weighted aggregation (DWA) over a
// round's proposals.
package voting

import (
	"sort"

	"github.com/xiaot623/conclave/internal/domain"
)

// DefaultEpsilon is the score distance under which two options count as tied.
const DefaultEpsilon = 0.0001

// WeightFn resolves a participant's effective expertise weight.
type WeightFn func(participantID string) float64

// Aggregator computes weighted scores, the winner, aggregate confidence
// and the concentration index for a proposal set.
type Aggregator struct {
	epsilon float64
}

// NewAggregator creates an aggregator. A non-positive epsilon falls back
// to DefaultEpsilon.
func NewAggregator(epsilon float64) *Aggregator {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Aggregator{epsilon: epsilon}
}

// Aggregate applies the DWA formula to the given proposals:
//
//	Score(o) = Σ over proposals recommending o of (confidence × weight)
//
// Shares normalize scores by the total; the winner is the argmax option
// (lexicographic tiebreak for determinism). Aggregate confidence is the
// winner's share, and the concentration index is the Herfindahl-
// Hirschman Index over shares. A zero total yields InsufficientData and
// no winner.
func (a *Aggregator) Aggregate(proposals []domain.Proposal, weightOf WeightFn) *domain.VotingResult {
	result := &domain.VotingResult{
		Scores: make(map[string]float64),
		Shares: make(map[string]float64),
	}

	total := 0.0
	for _, p := range proposals {
		if p.Recommendation == "" {
			continue
		}
		w := weightOf(p.ParticipantID)
		contribution := clamp01(p.Confidence) * clamp01(w)
		result.Scores[p.Recommendation] += contribution
		total += contribution
	}

	if total <= 0 {
		result.InsufficientData = true
		result.TopShareGap = 1.0
		return result
	}

	options := make([]string, 0, len(result.Scores))
	for o := range result.Scores {
		options = append(options, o)
	}
	// Descending score, ascending option text for deterministic argmax.
	sort.Slice(options, func(i, j int) bool {
		si, sj := result.Scores[options[i]], result.Scores[options[j]]
		if si != sj {
			return si > sj
		}
		return options[i] < options[j]
	})

	hhi := 0.0
	for _, o := range options {
		share := result.Scores[o] / total
		result.Shares[o] = share
		hhi += share * share
	}

	result.Winner = options[0]
	result.AggregateConfidence = result.Shares[options[0]]
	result.ConcentrationIndex = hhi

	if len(options) > 1 {
		result.TopShareGap = result.Shares[options[0]] - result.Shares[options[1]]
		result.Tie = result.Scores[options[0]]-result.Scores[options[1]] <= a.epsilon
	} else {
		result.TopShareGap = 1.0
	}

	return result
}

// RelevantWeight resolves a participant's weight for a requested domain
// set: the weight for the single most relevant requested domain. Domains
// tied for most relevant carry equal weights, so averaging them reduces
// to the max.
func RelevantWeight(profile domain.ParticipantProfile, domains []string) float64 {
	best := 0.0
	for _, d := range domains {
		if w := profile.Weight(d); w > best {
			best = w
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
