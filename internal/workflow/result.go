package workflow

import "time"

// ExecutionResult aggregates one engine invocation.
//
// RulesExecuted counts rules whose conditions matched, ActionsExecuted
// counts actions that succeeded, and Errors lists per-action failures in
// the order they occurred. Callers treat the engine as fire-and-forget
// in most call sites; the result exists for logging and tests.
type ExecutionResult struct {
	RulesExecuted   int      `json:"rules_executed"`
	ActionsExecuted int      `json:"actions_executed"`
	Errors          []string `json:"errors"`
}

// ExecutionEntry is one persisted execution-log record, emitted per
// matched rule. Recording is best-effort: a failure to persist an entry
// never affects the engine's control flow or return value.
type ExecutionEntry struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	RuleID            string        `json:"rule_id"`
	RuleName          string        `json:"rule_name"`
	EntityType        EntityType    `json:"entity_type"`
	EntityID          string        `json:"entity_id"`
	Trigger           TriggerType   `json:"trigger_type"`
	ConditionsMatched bool          `json:"conditions_matched"`
	Actions           []ActionType  `json:"actions"`
	Duration          time.Duration `json:"duration_ns"`

	// Error holds the first per-action failure for the rule, if any.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
