package simulate

import (
	"fmt"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// EvaluateAssertions checks every assertion against the result and
// returns a failure message per miss. All assertions are evaluated;
// there is no fail-fast.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertResult:
			err = assertResult(result, a)
		case AssertField:
			err = assertField(result, a)
		case AssertComments:
			err = assertCount("comments", len(result.Comments), a.Count)
		case AssertNotifications:
			err = assertCount("notifications", len(result.Notifications), a.Count)
		case AssertRuleFired:
			err = assertRuleFired(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return failures
}

func assertResult(result *Result, a Assertion) error {
	if a.RulesExecuted != nil && result.Execution.RulesExecuted != *a.RulesExecuted {
		return fmt.Errorf("rules_executed = %d, want %d", result.Execution.RulesExecuted, *a.RulesExecuted)
	}
	if a.ActionsExecuted != nil && result.Execution.ActionsExecuted != *a.ActionsExecuted {
		return fmt.Errorf("actions_executed = %d, want %d", result.Execution.ActionsExecuted, *a.ActionsExecuted)
	}
	if a.ErrorCount != nil && len(result.Execution.Errors) != *a.ErrorCount {
		return fmt.Errorf("error count = %d (%v), want %d", len(result.Execution.Errors), result.Execution.Errors, *a.ErrorCount)
	}
	return nil
}

func assertField(result *Result, a Assertion) error {
	want, err := workflow.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("field %s: bad expected value: %w", a.Field, err)
	}

	got := result.FinalState.Get(a.Field)
	if !valueEqual(got, want) {
		return fmt.Errorf("field %s = %s, want %s", a.Field, renderValue(got), renderValue(want))
	}
	return nil
}

func assertCount(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s count = %d, want %d", what, got, want)
	}
	return nil
}

func assertRuleFired(result *Result, a Assertion) error {
	for _, entry := range result.Log {
		if entry.RuleID == a.Rule && entry.ConditionsMatched {
			return nil
		}
	}
	return fmt.Errorf("rule %q did not fire", a.Rule)
}

// valueEqual compares snapshot values structurally. String lists
// compare element by element; everything else compares directly.
func valueEqual(a, b workflow.Value) bool {
	la, aList := a.(workflow.StringList)
	lb, bList := b.(workflow.StringList)
	if aList || bList {
		if !aList || !bList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if la[i] != lb[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func renderValue(v workflow.Value) string {
	b, err := workflow.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
