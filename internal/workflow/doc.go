// Package workflow defines the domain model for the workflow automation
// engine: entity snapshots built from a closed value variant set, tenant
// rules (ordered conditions plus ordered actions), and the execution
// result and log record types.
//
// Snapshot values are constrained to five variants: String, Number,
// Bool, StringList, and Null. There are no nested objects - an entity
// snapshot is a flat field document captured by the caller at trigger
// time. Condition and action logic pattern-matches the variant rather
// than coercing interface{} values.
//
// Rules are data, not code. They are authored in CUE packs (see
// internal/rulepack), persisted by internal/store, and executed by
// internal/engine. This package owns only their shape and structural
// validation.
package workflow
