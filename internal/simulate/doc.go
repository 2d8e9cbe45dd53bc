// Package simulate executes workflow scenarios end to end.
//
// A scenario pairs a CUE rule pack with a seed entity and a trigger.
// Each run gets a fresh in-memory SQLite database, a fixed clock, and
// sequential execution-log ids, so two runs of the same scenario
// produce byte-identical traces. The real engine, store, and
// notification queue are exercised; nothing is stubbed.
//
// Scenarios drive both the `deskflow simulate` CLI command and the
// golden-file tests in this package.
package simulate
