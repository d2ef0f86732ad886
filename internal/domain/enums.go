// Package domain defines the core domain models for the arbitration engine.
package domain

// SessionStatus represents the status of an arbitration session.
type SessionStatus string

const (
	SessionStatusCollecting SessionStatus = "COLLECTING"
	SessionStatusDebating   SessionStatus = "DEBATING"
	SessionStatusVoting     SessionStatus = "VOTING"
	SessionStatusEscalating SessionStatus = "ESCALATING"
	SessionStatusFinalized  SessionStatus = "FINALIZED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusFinalized || s == SessionStatusCancelled || s == SessionStatusFailed
}

// Role represents a participant's role in deliberation.
type Role string

const (
	RoleProposer  Role = "proposer"  // generates proposals and votes
	RoleReviewer  Role = "reviewer"  // critiques every round, never proposes first
	RoleAbstainer Role = "abstainer" // critiques only, never votes
)

// TriggerCondition represents a condition that convenes a panel.
// Order of declaration is the fixed evaluation priority.
type TriggerCondition string

const (
	ConditionSecurity           TriggerCondition = "security_risk"
	ConditionArchitectural      TriggerCondition = "architectural"
	ConditionDisagreement       TriggerCondition = "agent_disagreement"
	ConditionQualityGateFailure TriggerCondition = "quality_gate_failure"
	ConditionEthical            TriggerCondition = "ethical_concern"
	ConditionLowConfidence      TriggerCondition = "low_confidence"
	ConditionExternalCommitment TriggerCondition = "external_commitment"
	ConditionNovelQuery         TriggerCondition = "novel_query"
)

// Known domains. Domain inference tags any subset of these.
const (
	DomainSecurity     = "security"
	DomainArchitecture = "architecture"
	DomainAPIDesign    = "api-design"
	DomainDatabase     = "database"
	DomainTesting      = "testing"
	DomainPerformance  = "performance"
	DomainDevops       = "devops"
	DomainFrontend     = "frontend"
	DomainBackend      = "backend"
	DomainEthics       = "ethics"
	DomainDeployment   = "deployment"
	DomainQuality      = "quality"
	DomainGeneral      = "general"
)

// ArbiterParticipantID is the synthetic participant credited with the
// arbiter's proposal on escalation.
const ArbiterParticipantID = "arbiter"
