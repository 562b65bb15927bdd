package tools

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// GuardrailDecision is the outcome of evaluating one guardrail rule.
type GuardrailDecision int

const (
	// DecisionPass means this rule has no opinion; evaluation continues to
	// the next rule.
	DecisionPass GuardrailDecision = iota
	// DecisionAllow short-circuits evaluation and allows the call.
	DecisionAllow
	// DecisionBlock short-circuits evaluation and blocks the call.
	DecisionBlock
)

// Guardrail is one synchronous, priority-ordered rule. Rules are evaluated
// in ascending Priority order; the first rule to return a non-Pass
// decision wins ("first-blocking-rule-wins").
type Guardrail struct {
	Name     string
	Priority int
	Check    func(toolName string, tc ToolContext, argsJSON string) GuardrailDecision
}

// PathGlobGuardrail builds a Guardrail that blocks calls whose argsJSON
// appears to reference a path matching one of the deny globs, using the
// same glob engine as the context assembler's rule activation.
func PathGlobGuardrail(name string, priority int, denyGlobs []string, pathExtractor func(argsJSON string) (string, bool)) Guardrail {
	return Guardrail{
		Name:     name,
		Priority: priority,
		Check: func(_ string, _ ToolContext, argsJSON string) GuardrailDecision {
			path, ok := pathExtractor(argsJSON)
			if !ok {
				return DecisionPass
			}
			for _, pattern := range denyGlobs {
				if matched, _ := doublestar.Match(pattern, path); matched {
					return DecisionBlock
				}
			}
			return DecisionPass
		},
	}
}

// DangerousToolGuardrail blocks a fixed set of tool names unless the
// session has been granted permission, mirroring the reference runtime's
// accept-all / per-tool approval model.
func DangerousToolGuardrail(name string, priority int, dangerous map[string]bool, isAllowed func(sessionID, toolName string) bool) Guardrail {
	return Guardrail{
		Name:     name,
		Priority: priority,
		Check: func(toolName string, tc ToolContext, _ string) GuardrailDecision {
			if !dangerous[toolName] {
				return DecisionPass
			}
			if isAllowed(tc.SessionID, toolName) {
				return DecisionAllow
			}
			return DecisionBlock
		},
	}
}

// GuardrailSet evaluates an ordered collection of Guardrails.
type GuardrailSet struct {
	rules []Guardrail
}

// NewGuardrailSet sorts rules by Priority ascending once, up front.
func NewGuardrailSet(rules ...Guardrail) *GuardrailSet {
	sorted := append([]Guardrail(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &GuardrailSet{rules: sorted}
}

// Evaluate runs every rule in priority order, stopping at the first
// non-Pass decision. Returns (blocked, ruleName).
func (g *GuardrailSet) Evaluate(toolName string, tc ToolContext, argsJSON string) (decision GuardrailDecision, ruleName string) {
	for _, rule := range g.rules {
		switch rule.Check(toolName, tc, argsJSON) {
		case DecisionAllow:
			return DecisionAllow, rule.Name
		case DecisionBlock:
			return DecisionBlock, rule.Name
		}
	}
	return DecisionPass, ""
}
