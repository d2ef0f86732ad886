// Package engine runs the full arbitration lifecycle: trigger, panel
// selection, collection, debate, voting, escalation and finalization.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/conclave/internal/bus"
	"github.com/xiaot623/conclave/internal/collector"
	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/debate"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/escalate"
	"github.com/xiaot623/conclave/internal/policy"
	"github.com/xiaot623/conclave/internal/registry"
	"github.com/xiaot623/conclave/internal/store"
	"github.com/xiaot623/conclave/internal/trigger"
	"github.com/xiaot623/conclave/internal/voting"
)

// Failure reasons recorded on sessions that never finalize.
const (
	FailureInsufficientQuorum = "insufficient_quorum"
	FailureAuditWrite         = "audit_write_failed"
	FailureCancelled          = "cancelled"
)

// ErrSessionTerminal guards against transitions out of a terminal
// status.
var ErrSessionTerminal = errors.New("session already terminal")

// Engine owns sessions from convocation to a terminal status. All
// collaborators are injected; the engine itself holds no network or
// storage logic.
type Engine struct {
	detector     *trigger.Detector
	policyEngine *policy.Engine
	registry     *registry.Registry
	collector    *collector.Collector
	debate       *debate.Orchestrator
	aggregator   *voting.Aggregator
	escalation   *escalate.Policy
	store        store.Store
	bus          *bus.Bus
	cfg          *config.Config
}

// New wires an engine from its collaborators. policyEngine may be nil,
// in which case convocation is decided by pattern matching alone.
func New(detector *trigger.Detector, policyEngine *policy.Engine, reg *registry.Registry,
	coll *collector.Collector, deb *debate.Orchestrator, agg *voting.Aggregator,
	esc *escalate.Policy, st store.Store, b *bus.Bus, cfg *config.Config) *Engine {
	return &Engine{
		detector:     detector,
		policyEngine: policyEngine,
		registry:     reg,
		collector:    coll,
		debate:       deb,
		aggregator:   agg,
		escalation:   esc,
		store:        st,
		bus:          b,
		cfg:          cfg,
	}
}

// Evaluate classifies an operation without convening anything. The
// policy overlay runs first: it can force or suppress convocation, but
// a suppression never overrides a declared high or critical risk.
func (e *Engine) Evaluate(ctx context.Context, op domain.OperationDescriptor) domain.TriggerResult {
	result := e.detector.Detect(op)

	if e.policyEngine == nil {
		return result
	}
	decision, err := e.policyEngine.Evaluate(ctx, map[string]interface{}{
		"text":     op.Text,
		"metadata": op.Metadata,
	})
	if err != nil {
		log.Printf("WARN: convene policy evaluation failed, falling back to pattern matching: %v", err)
		return result
	}

	switch decision {
	case policy.DecisionSkip:
		if declaredRisk(op) {
			log.Printf("WARN: convene policy skip ignored for declared %s risk", op.Metadata[trigger.MetaRiskLevel])
			return result
		}
		result.ShouldConvene = false
	case policy.DecisionConvene:
		if !result.ShouldConvene {
			result.ShouldConvene = true
			result.Condition = domain.ConditionNovelQuery
			result.MatchedEvidence = append(result.MatchedEvidence, "convene policy decision")
		}
		if len(result.Domains) == 0 {
			result.Domains = []string{domain.DomainGeneral}
		}
	}
	return result
}

// Decide runs one arbitration session end to end. When the operation
// does not warrant a panel, the returned session carries only the
// trigger result and no session id. A returned error means the engine
// itself failed; sessions that fail deliberation come back with status
// FAILED and a nil error.
func (e *Engine) Decide(ctx context.Context, op domain.OperationDescriptor) (*domain.Session, error) {
	result := e.Evaluate(ctx, op)
	if !result.ShouldConvene {
		return &domain.Session{Operation: op, Trigger: result}, nil
	}

	session := &domain.Session{
		SessionID: "ses_" + uuid.New().String()[:8],
		Operation: op,
		Trigger:   result,
		Status:    domain.SessionStatusCollecting,
		CreatedAt: time.Now(),
	}

	panel := e.registry.SelectPanel(result.Domains, e.cfg.MinWeight)
	for _, p := range panel {
		session.Panel = append(session.Panel, p.ID)
	}
	if len(panel) < e.collector.MinQuorum() {
		return e.fail(ctx, session, FailureInsufficientQuorum,
			fmt.Errorf("panel of %d below quorum %d for domains %v", len(panel), e.collector.MinQuorum(), result.Domains))
	}

	if err := e.record(ctx, session, nil); err != nil {
		return e.fail(ctx, session, FailureAuditWrite, err)
	}
	e.publish(ctx, domain.ChannelPanel, domain.MessageTypeEvent, domain.PanelSelectedPayload{
		SessionID: session.SessionID,
		Condition: result.Condition,
		Domains:   result.Domains,
		Panel:     session.Panel,
	})

	weightOf := panelWeights(panel, result.Domains)

	initial, err := e.collector.Collect(ctx, session.SessionID, op.Text, panel, result.Domains, 0)
	if err != nil {
		if cancelled(ctx, err) {
			return e.cancel(ctx, session)
		}
		if errors.Is(err, collector.ErrInsufficientQuorum) {
			return e.fail(ctx, session, FailureInsufficientQuorum, err)
		}
		return e.fail(ctx, session, "collection_failed", err)
	}

	provisional := e.aggregator.Aggregate(initial, weightOf)
	if e.debate.NeedsDebate(provisional) {
		if err := e.transition(ctx, session, domain.SessionStatusDebating, provisional); err != nil {
			return e.fail(ctx, session, FailureAuditWrite, err)
		}
	}

	rounds, provisional, err := e.debate.Run(ctx, session.SessionID, panel, initial, weightOf)
	session.Rounds = rounds
	if err != nil {
		if cancelled(ctx, err) {
			return e.cancel(ctx, session)
		}
		return e.fail(ctx, session, "debate_failed", err)
	}

	if err := e.transition(ctx, session, domain.SessionStatusVoting, provisional); err != nil {
		return e.fail(ctx, session, FailureAuditWrite, err)
	}

	final := provisional
	if ok, reason := e.escalation.ShouldEscalate(provisional); ok {
		if err := e.transition(ctx, session, domain.SessionStatusEscalating, provisional); err != nil {
			return e.fail(ctx, session, FailureAuditWrite, err)
		}
		e.publish(ctx, domain.ChannelEscalation, domain.MessageTypeEvent, domain.EscalationPayload{
			SessionID:      session.SessionID,
			Reason:         reason,
			PreferredClass: escalate.PreferredClass(result.Domains),
		})

		merged, escalation, arbiterProposal := e.escalation.Apply(
			ctx, session.SessionID, op.Text, result.Domains, rounds, provisional, weightOf, reason)
		session.Escalation = escalation
		if arbiterProposal != nil && len(session.Rounds) > 0 {
			last := &session.Rounds[len(session.Rounds)-1]
			last.Proposals = append(last.Proposals, *arbiterProposal)
		}
		final = merged
	}
	if cancelled(ctx, nil) {
		return e.cancel(ctx, session)
	}

	// The finalized record must be durable before the decision is
	// reported anywhere.
	session.VotingResult = final
	now := time.Now()
	session.FinalizedAt = &now
	session.Status = domain.SessionStatusFinalized
	if err := e.record(ctx, session, final); err != nil {
		session.FinalizedAt = nil
		return e.fail(ctx, session, FailureAuditWrite, err)
	}

	e.publish(ctx, domain.ChannelDecisions, domain.MessageTypeBroadcast, domain.DecisionPayload{
		SessionID:           session.SessionID,
		Winner:              final.Winner,
		AggregateConfidence: final.AggregateConfidence,
		Escalated:           final.Escalated,
		LowConfidence:       final.LowConfidence,
		Summary:             summarize(session, final),
	})
	log.Printf("session %s finalized: winner=%q confidence=%.3f escalated=%v",
		session.SessionID, final.Winner, final.AggregateConfidence, final.Escalated)
	return session, nil
}

// GetSession reconstructs a session from its latest audit record.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	records, err := e.store.Query(ctx, domain.RecordFilter{SessionID: sessionID, LatestOnly: true})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	r := records[0]
	if len(r.Snapshot) > 0 {
		var session domain.Session
		if err := json.Unmarshal(r.Snapshot, &session); err != nil {
			return nil, fmt.Errorf("corrupt snapshot for %s: %w", sessionID, err)
		}
		return &session, nil
	}
	return &domain.Session{
		SessionID: r.SessionID,
		Status:    r.Status,
		Trigger:   domain.TriggerResult{Domains: r.Domains},
		CreatedAt: r.CreatedAt,
	}, nil
}

// QueryRecords exposes the audit trail with filtering.
func (e *Engine) QueryRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.SessionRecord, error) {
	return e.store.Query(ctx, filter)
}

// Stats returns per-domain aggregates over finalized sessions.
func (e *Engine) Stats(ctx context.Context) ([]domain.DomainStats, error) {
	return e.store.Stats(ctx)
}

// ReloadRegistry refreshes the participant profile set.
func (e *Engine) ReloadRegistry(ctx context.Context) error {
	return e.registry.Reload(ctx)
}

// PollBus reads bus messages for external observers.
func (e *Engine) PollBus(ctx context.Context, channel string, since time.Time, limit int, filter bus.Filter) ([]domain.Message, error) {
	return e.bus.Poll(ctx, channel, since, limit, filter)
}

// record appends an audit record for the session's current status. For
// terminal statuses the record carries a full session snapshot.
func (e *Engine) record(ctx context.Context, session *domain.Session, result *domain.VotingResult) error {
	rec := &domain.SessionRecord{
		RecordID:  "rec_" + uuid.New().String()[:8],
		SessionID: session.SessionID,
		Status:    session.Status,
		Domains:   session.Trigger.Domains,
		CreatedAt: time.Now(),
	}
	if result != nil {
		rec.Confidence = result.AggregateConfidence
		rec.Escalated = result.Escalated
	}
	if session.Status.Terminal() {
		snapshot, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session snapshot: %w", err)
		}
		rec.Snapshot = snapshot
	}
	return e.store.Append(ctx, rec)
}

func (e *Engine) transition(ctx context.Context, session *domain.Session, status domain.SessionStatus, result *domain.VotingResult) error {
	if session.Status.Terminal() {
		return ErrSessionTerminal
	}
	session.Status = status
	return e.record(ctx, session, result)
}

// fail marks the session FAILED and writes a best-effort terminal
// record. The session is returned with a nil error so callers can
// report the failure reason.
func (e *Engine) fail(ctx context.Context, session *domain.Session, reason string, cause error) (*domain.Session, error) {
	// A session counts as finalized only once its record is durable, so
	// a lost finalize write still lands here.
	if session.Status == domain.SessionStatusFailed || session.Status == domain.SessionStatusCancelled {
		return session, nil
	}
	log.Printf("ERROR: session %s failed (%s): %v", session.SessionID, reason, cause)
	session.Status = domain.SessionStatusFailed
	session.FailureReason = reason
	if err := e.record(context.WithoutCancel(ctx), session, session.VotingResult); err != nil {
		log.Printf("ERROR: session %s: failure record not written: %v", session.SessionID, err)
	}
	return session, nil
}

// cancel marks the session CANCELLED. A cancelled session is never
// finalized.
func (e *Engine) cancel(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	if session.Status.Terminal() {
		return session, nil
	}
	log.Printf("session %s cancelled", session.SessionID)
	session.Status = domain.SessionStatusCancelled
	session.FailureReason = FailureCancelled
	if err := e.record(context.WithoutCancel(ctx), session, session.VotingResult); err != nil {
		log.Printf("ERROR: session %s: cancellation record not written: %v", session.SessionID, err)
	}
	return session, nil
}

func (e *Engine) publish(ctx context.Context, channel string, msgType domain.MessageType, payload interface{}) {
	if _, err := e.bus.Publish(ctx, channel, msgType, payload); err != nil {
		log.Printf("WARN: publish to %s failed: %v", channel, err)
	}
}

// panelWeights resolves participant weights against the session's
// domains. Unknown ids weigh nothing.
func panelWeights(panel []domain.ParticipantProfile, domains []string) voting.WeightFn {
	byID := make(map[string]domain.ParticipantProfile, len(panel))
	for _, p := range panel {
		byID[p.ID] = p
	}
	return func(id string) float64 {
		p, ok := byID[id]
		if !ok {
			return 0
		}
		return voting.RelevantWeight(p, domains)
	}
}

func declaredRisk(op domain.OperationDescriptor) bool {
	level := strings.ToLower(op.Metadata[trigger.MetaRiskLevel])
	return level == "high" || level == "critical"
}

func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func summarize(session *domain.Session, result *domain.VotingResult) string {
	if result.InsufficientData {
		return fmt.Sprintf("session %s ended with no scoreable proposals", session.SessionID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "panel of %d decided %q with confidence %.2f over %d round(s)",
		len(session.Panel), result.Winner, result.AggregateConfidence, len(session.Rounds))
	if result.Escalated {
		if session.Escalation != nil && session.Escalation.Consulted {
			b.WriteString(", arbiter consulted")
		} else {
			b.WriteString(", degraded after failed escalation")
		}
	}
	if result.Tie {
		b.WriteString(", tie broken deterministically")
	}
	return b.String()
}
