package trigger

import (
	"reflect"
	"testing"

	"github.com/xiaot623/conclave/internal/domain"
)

func detect(t *testing.T, text string, metadata map[string]string) domain.TriggerResult {
	t.Helper()
	d := NewDetector()
	return d.Detect(domain.OperationDescriptor{Text: text, Metadata: metadata})
}

func TestDetectSecurityBeatsArchitectural(t *testing.T) {
	result := detect(t, "rotate the API secret as part of our architecture redesign", nil)

	if !result.ShouldConvene {
		t.Fatalf("expected convocation")
	}
	if result.Condition != domain.ConditionSecurity {
		t.Fatalf("condition = %s, want %s", result.Condition, domain.ConditionSecurity)
	}
	want := []string{domain.DomainSecurity, domain.DomainArchitecture}
	if !reflect.DeepEqual(result.Domains, want) {
		t.Fatalf("domains = %v, want %v", result.Domains, want)
	}
	if len(result.MatchedEvidence) == 0 {
		t.Fatalf("expected matched evidence for audit")
	}
}

func TestDetectNoMatchNoConvene(t *testing.T) {
	result := detect(t, "rename the readme heading", nil)

	if result.ShouldConvene {
		t.Fatalf("expected no convocation, got %+v", result)
	}
	if result.Condition != "" {
		t.Fatalf("condition = %s, want empty", result.Condition)
	}
}

func TestDetectDeclaredRiskForcesConvene(t *testing.T) {
	for _, level := range []string{"high", "HIGH", "critical"} {
		result := detect(t, "touch a file nobody cares about", map[string]string{MetaRiskLevel: level})
		if !result.ShouldConvene {
			t.Fatalf("risk_level=%s: expected forced convocation", level)
		}
		if result.Condition != domain.ConditionSecurity {
			t.Fatalf("risk_level=%s: condition = %s, want security fallback", level, result.Condition)
		}
	}

	result := detect(t, "touch a file nobody cares about", map[string]string{MetaRiskLevel: "low"})
	if result.ShouldConvene {
		t.Fatalf("risk_level=low must not force convocation")
	}
}

func TestDetectConditionPriorityOrder(t *testing.T) {
	cases := []struct {
		text string
		want domain.TriggerCondition
	}{
		{"design the service api surface", domain.ConditionArchitectural},
		{"agents disagree about the proposal", domain.ConditionDisagreement},
		{"the quality gate test failed on main", domain.ConditionQualityGateFailure},
		{"handling of pii and gdpr consent", domain.ConditionEthical},
		{"low confidence in this approach", domain.ConditionLowConfidence},
		{"git push and deploy to production", domain.ConditionExternalCommitment},
		{"should we use postgres or dynamo", domain.ConditionNovelQuery},
	}
	for _, tc := range cases {
		result := detect(t, tc.text, nil)
		if !result.ShouldConvene || result.Condition != tc.want {
			t.Fatalf("%q: condition = %s (convene=%v), want %s", tc.text, result.Condition, result.ShouldConvene, tc.want)
		}
	}
}

func TestDetectMetadataRoutes(t *testing.T) {
	result := detect(t, "", map[string]string{MetaFailure: "lint: unused import"})
	if result.Condition != domain.ConditionQualityGateFailure {
		t.Fatalf("condition = %s, want quality gate failure", result.Condition)
	}

	result = detect(t, "", map[string]string{MetaDisagreement: "planner vs reviewer"})
	if result.Condition != domain.ConditionDisagreement {
		t.Fatalf("condition = %s, want disagreement", result.Condition)
	}

	result = detect(t, "", map[string]string{MetaConfidence: "0.42"})
	if result.Condition != domain.ConditionLowConfidence {
		t.Fatalf("condition = %s, want low confidence", result.Condition)
	}

	// Declared confidence above the threshold is not a trigger.
	result = detect(t, "", map[string]string{MetaConfidence: "0.9"})
	if result.ShouldConvene {
		t.Fatalf("confidence=0.9 must not convene")
	}

	// Text security match outranks a metadata disagreement.
	result = detect(t, "rotate the oauth secret", map[string]string{MetaDisagreement: "yes"})
	if result.Condition != domain.ConditionSecurity {
		t.Fatalf("condition = %s, want security over metadata disagreement", result.Condition)
	}
}

func TestDetectMultipleDomains(t *testing.T) {
	result := detect(t, "migrate the database schema and add endpoint tests", nil)

	got := map[string]bool{}
	for _, d := range result.Domains {
		got[d] = true
	}
	for _, want := range []string{domain.DomainDatabase, domain.DomainAPIDesign, domain.DomainTesting} {
		if !got[want] {
			t.Fatalf("domains = %v, missing %s", result.Domains, want)
		}
	}
}

func TestDetectDomainFallbackGeneral(t *testing.T) {
	result := detect(t, "which is better for this odd job", nil)
	if !result.ShouldConvene {
		t.Fatalf("expected novel-query convocation")
	}
	if !reflect.DeepEqual(result.Domains, []string{domain.DomainGeneral}) {
		t.Fatalf("domains = %v, want [general]", result.Domains)
	}
}

func TestDetectDeterministicDomainOrder(t *testing.T) {
	first := detect(t, "rotate the API secret as part of our architecture redesign", nil)
	for i := 0; i < 20; i++ {
		again := detect(t, "rotate the API secret as part of our architecture redesign", nil)
		if !reflect.DeepEqual(first.Domains, again.Domains) {
			t.Fatalf("domain order unstable: %v vs %v", first.Domains, again.Domains)
		}
	}
}
