package simulate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// TraceSnapshot is the stable, serializable view of a run used for
// golden-file comparison. Random identifiers (comment and notification
// job IDs) are excluded so the snapshot is byte-identical across runs.
type TraceSnapshot struct {
	ScenarioName string                   `json:"scenario_name"`
	Trigger      string                   `json:"trigger"`
	Execution    workflow.ExecutionResult `json:"execution"`
	Log          []LogEvent               `json:"log"`
	FinalState   workflow.Snapshot        `json:"final_state"`
	Comments     []CommentEvent           `json:"comments,omitempty"`
	Notified     []workflow.Params        `json:"notifications,omitempty"`
	Failures     []string                 `json:"assertion_failures,omitempty"`
}

// LogEvent is one execution-log entry with volatile fields stripped.
type LogEvent struct {
	RuleID  string                `json:"rule_id"`
	Rule    string                `json:"rule_name"`
	Matched bool                  `json:"matched"`
	Actions []workflow.ActionType `json:"actions"`
	Error   string                `json:"error,omitempty"`
}

// CommentEvent is a comment body plus its visibility.
type CommentEvent struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// Snapshot converts a result into its golden-comparable form.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	snap := TraceSnapshot{
		ScenarioName: scenario.Name,
		Trigger:      scenario.Trigger,
		Execution:    result.Execution,
		Log:          []LogEvent{},
		FinalState:   result.FinalState,
		Failures:     result.Errors,
	}
	for _, entry := range result.Log {
		snap.Log = append(snap.Log, LogEvent{
			RuleID:  entry.RuleID,
			Rule:    entry.RuleName,
			Matched: entry.ConditionsMatched,
			Actions: entry.Actions,
			Error:   entry.Error,
		})
	}
	for _, c := range result.Comments {
		snap.Comments = append(snap.Comments, CommentEvent{Body: c.Body, Internal: c.Internal})
	}
	for _, job := range result.Notifications {
		snap.Notified = append(snap.Notified, job.Payload)
	}
	return snap
}

// RunWithGolden executes a scenario and compares the trace snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/simulate -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(Snapshot(scenario, result), "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
