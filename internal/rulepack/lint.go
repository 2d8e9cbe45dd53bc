package rulepack

import (
	"fmt"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Warning flags a rule that compiles and validates but probably does
// not do what the author intended. Warnings never block an import.
type Warning struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
	Level   string `json:"level"` // "warning" or "info"
}

// Lint runs static checks over a compiled pack.
//
// It flags rules that stop evaluation unconditionally (no conditions
// plus stop_on_match) and any later rules in the same scope they
// shadow. Shadowing is a warning, not an error, because a pack may
// stage rules ahead of activating them.
func Lint(pack *Pack) []Warning {
	var warnings []Warning

	// Scope key: entity type + trigger. StopOnMatch only cuts off
	// rules that would have been evaluated after the stopper.
	type scope struct {
		entity  workflow.EntityType
		trigger workflow.TriggerType
	}
	stoppers := make(map[scope]workflow.Rule)

	for _, rule := range pack.Rules {
		if !rule.IsActive {
			continue
		}
		if rule.StopOnMatch && len(rule.Conditions) == 0 {
			warnings = append(warnings, Warning{
				RuleID:  rule.ID,
				Message: "rule has stop_on_match and no conditions, so it always matches and stops evaluation",
				Level:   "warning",
			})
			key := scope{rule.EntityType, rule.Trigger}
			if existing, ok := stoppers[key]; !ok || rule.ExecutionOrder < existing.ExecutionOrder {
				stoppers[key] = rule
			}
		}
	}

	for _, rule := range pack.Rules {
		if !rule.IsActive {
			continue
		}
		stopper, ok := stoppers[scope{rule.EntityType, rule.Trigger}]
		if !ok || rule.ID == stopper.ID {
			continue
		}
		if rule.ExecutionOrder > stopper.ExecutionOrder ||
			(rule.ExecutionOrder == stopper.ExecutionOrder && rule.ID > stopper.ID) {
			warnings = append(warnings, Warning{
				RuleID:  rule.ID,
				Message: fmt.Sprintf("rule is unreachable: %q always matches first and stops evaluation", stopper.ID),
				Level:   "warning",
			})
		}
	}

	// Duplicate execution orders make rule precedence depend on rule
	// IDs, which is rarely intended.
	orderKey := func(r workflow.Rule) string {
		return fmt.Sprintf("%s/%s/%d", r.EntityType, r.Trigger, r.ExecutionOrder)
	}
	counts := make(map[string]int)
	for _, rule := range pack.Rules {
		counts[orderKey(rule)]++
	}
	for _, rule := range pack.Rules {
		if n := counts[orderKey(rule)]; n > 1 {
			warnings = append(warnings, Warning{
				RuleID:  rule.ID,
				Message: fmt.Sprintf("execution order shared with %d other rule(s); ties break by rule ID", n-1),
				Level:   "info",
			})
		}
	}

	return warnings
}
