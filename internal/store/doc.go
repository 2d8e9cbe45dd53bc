// Package store provides SQLite-backed persistence for the workflow
// automation subsystem.
//
// One database holds:
//   - workflow_rules: tenant rule definitions (conditions and actions
//     serialized as JSON documents)
//   - entities: flat field documents the engine's actions write to
//   - comments: per-entity comment streams
//   - execution_logs: one record per matched rule per invocation
//   - notification_jobs: the outbox the notify queue drains into
//
// The Store implements every collaborator port the engine consumes
// (RuleSource, EntityStore, ExecutionLog); RuleCache wraps the rule
// listing with an explicitly-invalidated per-scope cache.
//
// Rule CRUD lives here too. It is outside the engine's scope - the
// engine only reads rules - but the CLI import surface and the cache
// invalidation hooks need it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All list queries order deterministically (execution_order or
// created_at, with id COLLATE BINARY as tiebreak) so simulation traces
// and golden files are stable.
package store
