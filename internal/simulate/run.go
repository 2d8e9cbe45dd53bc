package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/deskflow/internal/engine"
	"github.com/opsdeck/deskflow/internal/notify"
	"github.com/opsdeck/deskflow/internal/rulepack"
	"github.com/opsdeck/deskflow/internal/store"
	"github.com/opsdeck/deskflow/internal/workflow"
)

// simClock is the fixed wall time every simulation runs at. A fixed
// clock keeps timestamps and durations identical across runs so traces
// can be compared byte for byte.
var simClock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

// Result is the outcome of a simulation run.
type Result struct {
	// Pass is false if any assertion failed.
	Pass bool `json:"pass"`

	// Execution is the engine's aggregate result.
	Execution workflow.ExecutionResult `json:"execution"`

	// Log holds one entry per matched rule, in execution order.
	Log []workflow.ExecutionEntry `json:"log"`

	// FinalState is the entity snapshot after all actions ran.
	FinalState workflow.Snapshot `json:"final_state"`

	// Comments lists comments added during the run, oldest first.
	Comments []store.Comment `json:"comments,omitempty"`

	// Notifications lists the notification jobs drained to the outbox.
	Notifications []notify.Job `json:"notifications,omitempty"`

	// Errors contains assertion failure messages. Empty if Pass.
	Errors []string `json:"errors,omitempty"`

	// Warnings carries pack lint findings. They never fail a run.
	Warnings []rulepack.Warning `json:"warnings,omitempty"`
}

// seqGenerator issues sequential ids ("exec-0001", "exec-0002", ...)
// so traces stay stable across runs.
type seqGenerator struct {
	prefix string
	n      int
}

func (g *seqGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// recordingLog captures execution entries in order while forwarding
// them to the store.
type recordingLog struct {
	store   *store.Store
	entries []workflow.ExecutionEntry
}

func (l *recordingLog) RecordExecution(ctx context.Context, entry workflow.ExecutionEntry) error {
	l.entries = append(l.entries, entry)
	return l.store.RecordExecution(ctx, entry)
}

// Run executes a scenario against a fresh in-memory store and the real
// engine, then evaluates its assertions.
//
// Execution flow:
//  1. Compile and validate the rule pack
//  2. Open an in-memory database, seed rules and the entity
//  3. Fire the trigger through the engine
//  4. Drain queued notifications to the outbox
//  5. Read back final state and evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	pack, err := rulepack.CompileFile(scenario.Pack)
	if err != nil {
		return nil, fmt.Errorf("compiling rule pack: %w", err)
	}
	for _, rule := range pack.Rules {
		if errs := rule.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("rule %s: %s", rule.ID, errs[0].Error())
		}
	}

	st, err := store.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	defer st.Close()
	st.SetClock(simClock)

	for _, rule := range pack.Rules {
		if err := st.SaveRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("seeding rule %s: %w", rule.ID, err)
		}
	}

	entityType := workflow.EntityType(scenario.Entity.Type)
	snap, err := workflow.SnapshotFromAny(scenario.Entity.Fields)
	if err != nil {
		return nil, fmt.Errorf("entity fields: %w", err)
	}
	if len(snap) > 0 {
		if err := st.UpdateFields(ctx, pack.Tenant, entityType, scenario.Entity.ID, snap); err != nil {
			return nil, fmt.Errorf("seeding entity: %w", err)
		}
	}

	queue := notify.NewQueue()
	logs := &recordingLog{store: st}
	eng := engine.New(st, st, queue, logs,
		engine.WithIDGenerator(&seqGenerator{prefix: "exec"}),
		engine.WithClock(simClock),
	)

	execution, err := eng.ExecuteWorkflows(ctx, pack.Tenant, entityType, scenario.Entity.ID, workflow.TriggerType(scenario.Trigger), snap)
	if err != nil {
		return nil, fmt.Errorf("executing workflows: %w", err)
	}

	queue.Close()
	if err := queue.Drain(ctx, notify.SinkFunc(func(ctx context.Context, job notify.Job) error {
		return st.InsertNotificationJob(ctx, job)
	})); err != nil {
		return nil, fmt.Errorf("draining notifications: %w", err)
	}

	finalState, err := st.GetEntity(ctx, pack.Tenant, entityType, scenario.Entity.ID)
	if err != nil {
		return nil, fmt.Errorf("reading final state: %w", err)
	}
	comments, err := st.ListComments(ctx, pack.Tenant, entityType, scenario.Entity.ID)
	if err != nil {
		return nil, fmt.Errorf("reading comments: %w", err)
	}
	jobs, err := st.ListNotificationJobs(ctx, "pending")
	if err != nil {
		return nil, fmt.Errorf("reading notification outbox: %w", err)
	}

	result := &Result{
		Pass:          true,
		Execution:     execution,
		Log:           logs.entries,
		FinalState:    finalState,
		Comments:      comments,
		Notifications: jobs,
		Warnings:      rulepack.Lint(pack),
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.Errors = append(result.Errors, msg)
		result.Pass = false
	}

	return result, nil
}
