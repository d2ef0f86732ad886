package domain

import (
	"encoding/json"
	"time"
)

// SessionRecord is one append-only audit entry for a session transition.
type SessionRecord struct {
	RecordID   string          `json:"record_id"`
	SessionID  string          `json:"session_id"`
	Seq        int64           `json:"seq"`
	Status     SessionStatus   `json:"status"`
	Domains    []string        `json:"domains,omitempty"`
	Confidence float64         `json:"confidence"`
	Escalated  bool            `json:"escalated"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RecordFilter selects audit records. Zero-valued fields are ignored.
type RecordFilter struct {
	SessionID     string         `json:"session_id,omitempty"`
	Domain        string         `json:"domain,omitempty"`
	Status        SessionStatus  `json:"status,omitempty"`
	MinConfidence *float64       `json:"min_confidence,omitempty"`
	MaxConfidence *float64       `json:"max_confidence,omitempty"`
	Since         *time.Time     `json:"since,omitempty"`
	Until         *time.Time     `json:"until,omitempty"`
	Escalated     *bool          `json:"escalated,omitempty"`
	LatestOnly    bool           `json:"latest_only,omitempty"`
	Limit         int            `json:"limit,omitempty"`
}

// DomainStats are per-domain aggregates over finalized sessions.
type DomainStats struct {
	Domain         string  `json:"domain"`
	Sessions       int     `json:"sessions"`
	MeanConfidence float64 `json:"mean_confidence"`
	EscalationRate float64 `json:"escalation_rate"`
}
