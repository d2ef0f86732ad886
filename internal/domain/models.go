package domain

import (
	"time"
)

// ParticipantProfile describes a panel participant. Profiles are
// immutable once loaded; a registry reload replaces the whole set.
type ParticipantProfile struct {
	ID            string             `json:"id" yaml:"id"`
	DomainWeights map[string]float64 `json:"domain_weights" yaml:"domain_weights"`
	Role          Role               `json:"role" yaml:"role"`
	Endpoint      string             `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Description   string             `json:"description,omitempty" yaml:"description,omitempty"`
}

// Weight returns the participant's weight for a domain, zero if untagged.
func (p ParticipantProfile) Weight(domain string) float64 {
	return p.DomainWeights[domain]
}

// Proposal is a single recommendation from a participant. Proposals are
// never mutated after creation; revisions produce new records that
// supersede prior ones for the same participant within a session.
type Proposal struct {
	ProposalID     string    `json:"proposal_id"`
	ParticipantID  string    `json:"participant_id"`
	Recommendation string    `json:"recommendation"`
	Reasoning      []string  `json:"reasoning,omitempty"`
	Confidence     float64   `json:"confidence"`
	Relevance      float64   `json:"relevance"`
	Round          int       `json:"round"`
	CreatedAt      time.Time `json:"created_at"`
}

// Critique is one participant's critique of the current proposal set.
type Critique struct {
	CritiqueID    string    `json:"critique_id"`
	ParticipantID string    `json:"participant_id"`
	TargetID      string    `json:"target_participant_id"`
	Text          string    `json:"text"`
	Suggestions   []string  `json:"suggestions,omitempty"`
	Severity      string    `json:"severity,omitempty"` // minor, moderate, critical
	Round         int       `json:"round"`
	CreatedAt     time.Time `json:"created_at"`
}

// OperationDescriptor is the input to trigger detection.
type OperationDescriptor struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TriggerResult is the outcome of trigger classification.
type TriggerResult struct {
	ShouldConvene   bool             `json:"should_convene"`
	Condition       TriggerCondition `json:"condition,omitempty"`
	Domains         []string         `json:"domains,omitempty"`
	MatchedEvidence []string         `json:"matched_evidence,omitempty"`
	RiskLevel       string           `json:"risk_level,omitempty"`
}

// Round is a snapshot of one deliberation round. Round 0 holds the
// initial proposals and no critiques.
type Round struct {
	Number    int        `json:"number"`
	Proposals []Proposal `json:"proposals"`
	Critiques []Critique `json:"critiques,omitempty"`
}

// VotingResult is the aggregated outcome over the final round's proposals.
type VotingResult struct {
	Scores              map[string]float64 `json:"scores"`
	Shares              map[string]float64 `json:"shares"`
	Winner              string             `json:"winner,omitempty"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	ConcentrationIndex  float64            `json:"concentration_index"`
	TopShareGap         float64            `json:"top_share_gap"`
	Tie                 bool               `json:"tie"`
	InsufficientData    bool               `json:"insufficient_data,omitempty"`
	Escalated           bool               `json:"escalated,omitempty"`
	EscalationReason    string             `json:"escalation_reason,omitempty"`
	LowConfidence       bool               `json:"low_confidence,omitempty"`
}

// Escalation records an arbiter consultation.
type Escalation struct {
	Reason         string    `json:"reason"`
	PreferredClass string    `json:"preferred_class"`
	Consulted      bool      `json:"consulted"`
	Recommendation string    `json:"recommendation,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Reasoning      []string  `json:"reasoning,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// Session is one full arbitration lifecycle. It is owned exclusively by
// the engine until it reaches a terminal status.
type Session struct {
	SessionID     string              `json:"session_id"`
	Operation     OperationDescriptor `json:"operation"`
	Trigger       TriggerResult       `json:"trigger"`
	Panel         []string            `json:"panel,omitempty"`
	Rounds        []Round             `json:"rounds,omitempty"`
	VotingResult  *VotingResult       `json:"voting_result,omitempty"`
	Escalation    *Escalation         `json:"escalation,omitempty"`
	Status        SessionStatus       `json:"status"`
	FailureReason string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	FinalizedAt   *time.Time          `json:"finalized_at,omitempty"`
}

// FinalRound returns the last round, or nil if none were recorded.
func (s *Session) FinalRound() *Round {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// ArbiterResponse is the validated reply from the escalation oracle.
type ArbiterResponse struct {
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Reasoning      []string `json:"reasoning,omitempty"`
}

// EscalationSummary is the context handed to the arbiter.
type EscalationSummary struct {
	SessionID   string        `json:"session_id"`
	Operation   string        `json:"operation"`
	Domains     []string      `json:"domains"`
	Reason      string        `json:"reason"`
	Rounds      []Round       `json:"rounds"`
	Provisional *VotingResult `json:"provisional"`
}
