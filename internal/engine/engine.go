package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Engine orchestrates workflow rule execution for entity lifecycle
// events: fetch applicable rules, evaluate condition sets, execute
// matching rules' actions in order, aggregate results, and emit one
// execution-log record per matched rule.
//
// The engine holds no persisted state across invocations; within one
// invocation the only state is the result accumulators and the
// stop-on-match flag. Invocations for different entities are
// independent and may run concurrently. Invocations for the same entity
// are NOT deduplicated or locked here - the calling mutation pipeline
// issues exactly one invocation per logical event.
type Engine struct {
	rules    RuleSource
	executor *Executor
	logs     ExecutionLog
	ids      IDGenerator
	now      func() time.Time
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithIDGenerator overrides the execution-log ID generator.
// Use NewFixedGenerator in tests for deterministic log entries.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		e.ids = gen
	}
}

// WithClock overrides the wall clock used for durations and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over the given collaborators.
//
// The rule source must return rules already scoped to (tenant, entity
// type, trigger) and ordered ascending by ExecutionOrder - typically
// store.Rules wrapped in a store.RuleCache.
func New(rules RuleSource, entities EntityStore, notifier Notifier, logs ExecutionLog, opts ...Option) *Engine {
	e := &Engine{
		rules:    rules,
		executor: NewExecutor(entities, notifier),
		logs:     logs,
		ids:      UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWorkflows runs every applicable rule against a snapshot of the
// entity and returns the aggregate result.
//
// Callers invoke this AFTER committing their own primary write. The
// snapshot is the entity as of that commit; the engine never mutates it
// and never re-reads the entity for condition evaluation.
//
// The only error returned is a failure to fetch the rule list; since
// the triggering mutation has already committed, callers must log and
// continue, never roll back. Per-action failures are aggregated into
// the result's Errors and do not halt the rule's remaining actions or
// subsequent rules. Execution is strictly sequential - later actions
// may depend on side effects committed by earlier ones.
func (e *Engine) ExecuteWorkflows(
	ctx context.Context,
	tenant string,
	entityType workflow.EntityType,
	entityID string,
	trigger workflow.TriggerType,
	snap workflow.Snapshot,
) (workflow.ExecutionResult, error) {
	result := workflow.ExecutionResult{Errors: []string{}}

	rules, err := e.rules.ListActiveRules(ctx, tenant, entityType, trigger)
	if err != nil {
		return result, fmt.Errorf("list active rules for %s/%s/%s: %w", tenant, entityType, trigger, err)
	}

	for _, rule := range rules {
		if !EvalConditions(rule.Conditions, snap) {
			// Non-matching rules leave no trace: no count, no log record.
			continue
		}

		result.RulesExecuted++
		start := e.now()

		slog.Debug("workflow rule matched",
			"tenant", tenant,
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"entity_type", entityType,
			"entity_id", entityID,
			"trigger", trigger,
		)

		attempted, firstErr := e.runActions(ctx, tenant, rule, entityType, entityID, snap, &result)

		e.recordExecution(ctx, workflow.ExecutionEntry{
			ID:                e.ids.Generate(),
			TenantID:          tenant,
			RuleID:            rule.ID,
			RuleName:          rule.Name,
			EntityType:        entityType,
			EntityID:          entityID,
			Trigger:           trigger,
			ConditionsMatched: true,
			Actions:           attempted,
			Duration:          e.now().Sub(start),
			Error:             firstErr,
			CreatedAt:         e.now(),
		})

		if rule.StopOnMatch {
			slog.Debug("stop-on-match rule halted evaluation",
				"tenant", tenant,
				"rule_id", rule.ID,
				"entity_id", entityID,
			)
			break
		}
	}

	return result, nil
}

// runActions attempts every action of a matched rule exactly once, in
// ascending Order, irrespective of earlier actions' outcomes. Returns
// the attempted action types and the first failure message, if any.
func (e *Engine) runActions(
	ctx context.Context,
	tenant string,
	rule workflow.Rule,
	entityType workflow.EntityType,
	entityID string,
	snap workflow.Snapshot,
	result *workflow.ExecutionResult,
) ([]workflow.ActionType, string) {
	actions := sortedActions(rule.Actions)

	attempted := make([]workflow.ActionType, 0, len(actions))
	var firstErr string

	for _, action := range actions {
		attempted = append(attempted, action.Type)

		if err := e.executor.Execute(ctx, tenant, action, entityType, entityID, snap); err != nil {
			msg := fmt.Sprintf("%s: %s failed: %v", rule.Name, action.Type, err)
			result.Errors = append(result.Errors, msg)
			if firstErr == "" {
				firstErr = msg
			}
			continue
		}
		result.ActionsExecuted++
	}

	return attempted, firstErr
}

// recordExecution persists one execution-log record. Best-effort: a
// failure to log is warned about and swallowed, never aborting the
// rule loop or changing the return value.
func (e *Engine) recordExecution(ctx context.Context, entry workflow.ExecutionEntry) {
	if err := e.logs.RecordExecution(ctx, entry); err != nil {
		slog.Warn("execution log write failed",
			"error", err,
			"tenant", entry.TenantID,
			"rule_id", entry.RuleID,
			"entity_id", entry.EntityID,
		)
	}
}

// sortedActions returns the rule's actions in ascending execution
// order. Stable sort preserves definition order for equal Order values.
// The input slice is never mutated - rules are shared, read-only data.
func sortedActions(actions []workflow.Action) []workflow.Action {
	sorted := make([]workflow.Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}
