package engine

import (
	"context"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// RuleSource supplies the active rules for one engine invocation.
//
// Implementations own persistence, scoping, and caching; the engine
// treats the returned slice as already filtered to active rules and
// ordered ascending by ExecutionOrder. Implemented by store.Rules and
// the store.RuleCache wrapper.
type RuleSource interface {
	ListActiveRules(ctx context.Context, tenant string, entityType workflow.EntityType, trigger workflow.TriggerType) ([]workflow.Rule, error)
}

// EntityStore performs entity writes on behalf of actions.
//
// UpdateFields applies every change in one atomic write - the combined
// assign-and-promote side effect of assign_to_user depends on this.
// AddComment inserts into the entity-type-specific comment store.
type EntityStore interface {
	UpdateFields(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string, changes map[string]workflow.Value) error
	AddComment(ctx context.Context, tenant string, entityType workflow.EntityType, entityID string, body string, internal bool) error
}

// Notifier enqueues notification jobs.
//
// Enqueue is a non-blocking submit: it acknowledges acceptance into the
// queue, never delivery. The engine fans out one call per recipient and
// treats each independently.
type Notifier interface {
	Enqueue(jobType string, payload workflow.Params) error
}

// ExecutionLog persists structured execution history.
//
// RecordExecution is best-effort from the engine's point of view: a
// returned error is logged at warning level and swallowed.
type ExecutionLog interface {
	RecordExecution(ctx context.Context, entry workflow.ExecutionEntry) error
}
