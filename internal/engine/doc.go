// Package engine implements the workflow automation engine.
//
// The engine is the only part of the service desk with non-trivial
// control flow: it reacts to entity lifecycle events by evaluating
// tenant-configured rules against a snapshot of the entity and
// performing side-effecting actions.
//
// ARCHITECTURE:
//
// Four components, leaves first:
//   - EvalCondition: pure evaluation of one condition against a snapshot
//   - EvalConditions: left-fold of an ordered condition list via AND/OR
//   - Executor: per-kind action dispatch through injected collaborators
//   - Engine.ExecuteWorkflows: ordered multi-rule orchestration
//
// Execution Flow:
//  1. An entity-mutation handler commits its primary write, then calls
//     ExecuteWorkflows with a read-only snapshot of the entity.
//  2. The engine fetches active rules for (tenant, entity type,
//     trigger), pre-ordered by execution order.
//  3. Each matching rule's actions run once each, in ascending order,
//     with partial-failure semantics: one failing action never blocks
//     its siblings or subsequent rules.
//  4. One execution-log record is emitted per matched rule; a rule with
//     stop-on-match set halts evaluation of lower-priority rules.
//
// Execution within one invocation is strictly sequential - later
// actions may depend on side effects committed by earlier ones. The
// only asynchronous boundary is the notification fan-out, which awaits
// enqueue acknowledgment, never delivery.
//
// ERROR MODEL:
//
// Condition evaluation never fails: malformed conditions degrade to
// operator-specific booleans. Action failures are caught, recorded in
// the aggregate result, and never propagate. Execution-log failures are
// swallowed. Only a rule-list fetch failure reaches the caller - and
// because the triggering mutation has already committed, callers log
// and continue rather than roll back.
package engine
