// Package policy evaluates built-in Rego policies against a manifest
// before a run touches the container host.
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/piwi3910/searchbench/pkg/config"
	"github.com/piwi3910/searchbench/pkg/telemetry"
)

// builtinPolicy guards against misconfigured environments: the well-known
// test credential escaping the test environment, and missing resource
// limits on the shared profile.
const builtinPolicy = `
package searchbench.guard

import rego.v1

deny contains msg if {
	input.environment != "test"
	input.admin_password == "RandomShit1!"
	msg := "the well-known test credential must not be used outside the test environment"
}

deny contains msg if {
	input.profile.cpu <= 0
	msg := "profile must set a cpu limit"
}

deny contains msg if {
	input.profile.memory == ""
	msg := "profile must set a memory limit"
}

warn contains msg if {
	not startswith(input.base_image, "ubuntu:")
	msg := sprintf("base image %q is not an ubuntu release; the recipes assume apt", [input.base_image])
}
`

// Result is the outcome of a policy evaluation.
type Result struct {
	// Denials block the run.
	Denials []string

	// Warnings are reported but do not block.
	Warnings []string
}

// Allowed reports whether the manifest passed all deny rules.
func (r *Result) Allowed() bool {
	return len(r.Denials) == 0
}

// Gate evaluates the built-in policies against a manifest.
type Gate struct {
	query  rego.PreparedEvalQuery
	logger *telemetry.Logger
}

// NewGate compiles the built-in policies.
func NewGate(ctx context.Context, logger *telemetry.Logger) (*Gate, error) {
	query, err := rego.New(
		rego.Query("data.searchbench.guard"),
		rego.Module("builtin.rego", builtinPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot compile built-in policies: %w", err)
	}
	return &Gate{
		query:  query,
		logger: logger.NewComponentLogger("policy"),
	}, nil
}

// Evaluate runs the deny and warn rules against the manifest.
func (g *Gate) Evaluate(ctx context.Context, m *config.Manifest) (*Result, error) {
	input, err := toInput(m)
	if err != nil {
		return nil, err
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	result := &Result{}
	for _, r := range rs {
		for _, expr := range r.Expressions {
			doc, ok := expr.Value.(map[string]interface{})
			if !ok {
				continue
			}
			result.Denials = append(result.Denials, toStrings(doc["deny"])...)
			result.Warnings = append(result.Warnings, toStrings(doc["warn"])...)
		}
	}

	for _, d := range result.Denials {
		g.logger.Errorf("policy denial: %s", d)
	}
	for _, w := range result.Warnings {
		g.logger.Warnf("policy warning: %s", w)
	}
	return result, nil
}

// toInput converts the manifest to the generic document OPA evaluates.
func toInput(m *config.Manifest) (map[string]interface{}, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("cannot encode manifest for policy input: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("cannot decode manifest for policy input: %w", err)
	}
	return input, nil
}

func toStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
