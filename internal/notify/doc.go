// Package notify implements the notification fan-out boundary.
//
// The workflow engine's only asynchronous edge is notification
// delivery: the engine awaits successful enqueue, never delivery. This
// package provides that queue - an unbounded, thread-safe FIFO whose
// Run loop drains jobs into a sink (the SQLite notification outbox in
// production). One failing job never affects its siblings.
package notify
