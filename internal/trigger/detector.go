// Package trigger classifies operation descriptors into convocation
// decisions: whether a panel should convene, under which condition, and
// for which domains.
package trigger

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xiaot623/conclave/internal/domain"
)

// Metadata keys consumed by the detector.
const (
	MetaRiskLevel    = "risk_level"
	MetaFailure      = "failure"
	MetaDisagreement = "disagreement"
	MetaConfidence   = "confidence"
)

// lowConfidenceThreshold marks declared upstream confidence as a
// convocation condition on its own.
const lowConfidenceThreshold = 0.75

// evidenceLimit caps stored match evidence per entry.
const evidenceLimit = 500

type conditionRule struct {
	pattern   *regexp.Regexp
	condition domain.TriggerCondition
}

type domainRule struct {
	pattern *regexp.Regexp
	domain  string
}

// Condition tiers in fixed priority order. The first matching tier wins
// even when lower-priority tiers also match.
var conditionRules = []conditionRule{
	// security risk
	{regexp.MustCompile(`(?i)(auth|authentication|authorization|oauth|jwt|access.?token)`), domain.ConditionSecurity},
	{regexp.MustCompile(`(?i)(secret|credential|password|api.?key|private.?key|certificate)`), domain.ConditionSecurity},
	{regexp.MustCompile(`(?i)(vulnerabilit|exploit|injection|xss|csrf|security.?audit)`), domain.ConditionSecurity},
	{regexp.MustCompile(`(?i)(encrypt|decrypt|hash|sign|verify).*(data|password|token)`), domain.ConditionSecurity},
	// architectural
	{regexp.MustCompile(`(?i)(design|architect|structure).*(api|service|system|database|schema|migration)`), domain.ConditionArchitectural},
	{regexp.MustCompile(`(?i)(refactor|restructure|redesign).*(codebase|architecture|system)`), domain.ConditionArchitectural},
	{regexp.MustCompile(`(?i)(choose|select|decide).*(framework|library|stack|technology|database)`), domain.ConditionArchitectural},
	{regexp.MustCompile(`(?i)(migration|migrate).*(database|schema|api)`), domain.ConditionArchitectural},
	// agent disagreement
	{regexp.MustCompile(`(?i)(conflict|disagree|contradict).*(proposal|agent|recommendation)`), domain.ConditionDisagreement},
	// quality gate failure
	{regexp.MustCompile(`(?i)(test|lint|build|quality.?gate|tdd).*(fail|violat|error)`), domain.ConditionQualityGateFailure},
	// ethical concern
	{regexp.MustCompile(`(?i)(privacy|gdpr|pii|personal.?data|data.?protection)`), domain.ConditionEthical},
	{regexp.MustCompile(`(?i)(bias|fairness|discriminat|ethical)`), domain.ConditionEthical},
	{regexp.MustCompile(`(?i)(misinformation|fake|manipulat).*(content|data|user)`), domain.ConditionEthical},
	// low confidence
	{regexp.MustCompile(`(?i)(low.?confidence|uncertain|not.?sure.?how)`), domain.ConditionLowConfidence},
	// external commitment
	{regexp.MustCompile(`(?i)git.*(push|deploy|publish)`), domain.ConditionExternalCommitment},
	{regexp.MustCompile(`(?i)(deploy|publish|release).*(production|prod|live)`), domain.ConditionExternalCommitment},
	{regexp.MustCompile(`(?i)(npm|pypi|docker).*(publish|push|release)`), domain.ConditionExternalCommitment},
	// novel / out-of-distribution
	{regexp.MustCompile(`(?i)(unfamiliar|novel|never.?seen|unknown).*(technology|framework|pattern)`), domain.ConditionNovelQuery},
	{regexp.MustCompile(`(?i)(how.?do.?i|what.?is.?the.?best.?way).*(implement|design|build)`), domain.ConditionNovelQuery},
	{regexp.MustCompile(`(?i)(should.?we.?use|choose.?between|which.?is.?better)`), domain.ConditionNovelQuery},
}

// Domain inference is independent of condition matching; any number of
// domains may be tagged for one operation.
var domainRules = []domainRule{
	{regexp.MustCompile(`(?i)(auth|secret|credential|password|token|vulnerabilit|encrypt|certificate|api.?key)`), domain.DomainSecurity},
	{regexp.MustCompile(`(?i)(architect|redesign|refactor|tech.?stack|design.*(system|service))`), domain.DomainArchitecture},
	{regexp.MustCompile(`(?i)(endpoint|\brest\b|graphql|openapi|api.?design|api.?contract)`), domain.DomainAPIDesign},
	{regexp.MustCompile(`(?i)(database|\bschema\b|\bsql\b|migration|\bindex\b)`), domain.DomainDatabase},
	{regexp.MustCompile(`(?i)(\btest(s|ing)?\b|coverage|pytest|unit.?test)`), domain.DomainTesting},
	{regexp.MustCompile(`(?i)(performance|optimi[sz]|\bcache\b|latency|throughput)`), domain.DomainPerformance},
	{regexp.MustCompile(`(?i)(docker|kubernetes|ci/?cd|pipeline|terraform)`), domain.DomainDevops},
	{regexp.MustCompile(`(?i)(frontend|react|vue|angular|svelte|\bcss\b|\bui\b)`), domain.DomainFrontend},
	{regexp.MustCompile(`(?i)(backend|\bserver\b|fastapi|django|grpc)`), domain.DomainBackend},
	{regexp.MustCompile(`(?i)(privacy|gdpr|pii|bias|ethic)`), domain.DomainEthics},
	{regexp.MustCompile(`(?i)(deploy|publish|release|rollout)`), domain.DomainDeployment},
	{regexp.MustCompile(`(?i)(quality.?gate|lint|tdd)`), domain.DomainQuality},
}

// Detector classifies operations. Construct with NewDetector; the
// pattern tables are fixed, matching rules for domains are the
// configurable part upstream of this type.
type Detector struct {
	conditions []conditionRule
	domains    []domainRule
}

// NewDetector creates a detector with the built-in rule tables.
func NewDetector() *Detector {
	return &Detector{conditions: conditionRules, domains: domainRules}
}

// Detect classifies an operation descriptor. Declared HIGH/CRITICAL risk
// always convenes, regardless of text matches.
func (d *Detector) Detect(op domain.OperationDescriptor) domain.TriggerResult {
	result := domain.TriggerResult{
		RiskLevel: strings.ToLower(op.Metadata[MetaRiskLevel]),
	}

	condition, evidence := d.classify(op)
	result.Domains = d.inferDomains(op.Text)
	result.MatchedEvidence = evidence

	forced := result.RiskLevel == "high" || result.RiskLevel == "critical"
	if condition == "" && forced {
		// High-risk operations with no textual match default to a
		// security condition, mirroring the declared risk.
		condition = domain.ConditionSecurity
		if len(result.Domains) == 0 {
			result.Domains = []string{domain.DomainSecurity}
		}
		result.MatchedEvidence = append(result.MatchedEvidence, "risk_level="+result.RiskLevel)
	}

	if condition == "" {
		return result
	}

	result.ShouldConvene = true
	result.Condition = condition
	if len(result.Domains) == 0 {
		result.Domains = []string{domain.DomainGeneral}
	}
	return result
}

// conditionRank is the fixed priority order; lower wins.
var conditionRank = map[domain.TriggerCondition]int{
	domain.ConditionSecurity:           0,
	domain.ConditionArchitectural:      1,
	domain.ConditionDisagreement:       2,
	domain.ConditionQualityGateFailure: 3,
	domain.ConditionEthical:            4,
	domain.ConditionLowConfidence:      5,
	domain.ConditionExternalCommitment: 6,
	domain.ConditionNovelQuery:         7,
}

// classify resolves the trigger condition from text patterns and the
// structured metadata routes, honoring the fixed priority order across
// both sources.
func (d *Detector) classify(op domain.OperationDescriptor) (domain.TriggerCondition, []string) {
	cond, evidence := d.matchConditions(op.Text)

	consider := func(c domain.TriggerCondition, ev string) {
		if cond == "" || conditionRank[c] < conditionRank[cond] {
			cond = c
			evidence = append(evidence, truncate(ev))
		}
	}

	// Conditions detected programmatically rather than from prose.
	if v, ok := op.Metadata[MetaDisagreement]; ok && v != "" {
		consider(domain.ConditionDisagreement, "disagreement: "+v)
	}
	if v, ok := op.Metadata[MetaFailure]; ok && v != "" {
		consider(domain.ConditionQualityGateFailure, "failure: "+v)
	}
	if v, ok := op.Metadata[MetaConfidence]; ok {
		if conf, err := strconv.ParseFloat(v, 64); err == nil && conf < lowConfidenceThreshold {
			consider(domain.ConditionLowConfidence, "confidence="+v)
		}
	}

	return cond, evidence
}

func (d *Detector) matchConditions(text string) (domain.TriggerCondition, []string) {
	var matched domain.TriggerCondition
	var evidence []string
	for _, rule := range d.conditions {
		m := rule.pattern.FindString(text)
		if m == "" {
			continue
		}
		if matched == "" {
			matched = rule.condition
			evidence = append(evidence, truncate(m))
		} else if rule.condition == matched {
			evidence = append(evidence, truncate(m))
		}
	}
	return matched, evidence
}

func (d *Detector) inferDomains(text string) []string {
	var domains []string
	seen := make(map[string]bool)
	for _, rule := range d.domains {
		if seen[rule.domain] {
			continue
		}
		if rule.pattern.MatchString(text) {
			seen[rule.domain] = true
			domains = append(domains, rule.domain)
		}
	}
	return domains
}

func truncate(s string) string {
	if len(s) > evidenceLimit {
		return s[:evidenceLimit]
	}
	return s
}
