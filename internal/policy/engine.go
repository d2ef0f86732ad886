package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the convene policy.
const (
	DecisionConvene = "convene"
	DecisionSkip    = "skip"
	DecisionDefault = "default"
)

// Engine evaluates the convene policy. The policy can force a panel to
// convene or suppress one before pattern matching runs.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.convene_policy.decision"),
		rego.Module("convene_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the convene policy for an operation.
// Input is a map with keys: text, metadata.
// Returns one of convene, skip, default.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDefault, nil
	}

	val := results[0].Expressions[0].Value
	if s, ok := val.(string); ok {
		return s, nil
	}
	return DecisionDefault, nil
}

// DefaultPolicy is the default policy content. It defers everything to
// pattern matching.
const DefaultPolicy = `
package convene_policy

default decision = "default"

# Operations marked as exempt never convene a panel.
decision = "skip" {
	input.metadata.policy_exempt == "true"
}

# Operations marked as mandatory always convene one.
decision = "convene" {
	input.metadata.policy_review == "required"
}
`
