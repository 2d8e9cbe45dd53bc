package rulepack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLintVacuousStopper(t *testing.T) {
	pack, err := CompileSource("pack.cue", `
		tenant: "acme"
		rule: "catch-all": {
			entity:  "issue"
			trigger: "on_create"
			order:   1
			stop_on_match: true
			then: [{action: "escalate"}]
		}
		rule: "never-runs": {
			entity:  "issue"
			trigger: "on_create"
			order:   2
			then: [{action: "escalate"}]
		}
	`)
	require.NoError(t, err)

	warnings := Lint(pack)
	require.Len(t, warnings, 2)

	assert.Equal(t, "catch-all", warnings[0].RuleID)
	assert.Contains(t, warnings[0].Message, "always matches and stops evaluation")
	assert.Equal(t, "warning", warnings[0].Level)

	assert.Equal(t, "never-runs", warnings[1].RuleID)
	assert.Contains(t, warnings[1].Message, "unreachable")
}

func TestLintScopeIsolation(t *testing.T) {
	// A stopper on one trigger does not shadow rules on another.
	pack, err := CompileSource("pack.cue", `
		tenant: "acme"
		rule: "catch-all": {
			entity:  "issue"
			trigger: "on_create"
			stop_on_match: true
			then: [{action: "escalate"}]
		}
		rule: "update-rule": {
			entity:  "issue"
			trigger: "on_update"
			then: [{action: "escalate"}]
		}
	`)
	require.NoError(t, err)

	warnings := Lint(pack)
	require.Len(t, warnings, 1)
	assert.Equal(t, "catch-all", warnings[0].RuleID)
}

func TestLintInactiveStopperIgnored(t *testing.T) {
	pack, err := CompileSource("pack.cue", `
		tenant: "acme"
		rule: "staged": {
			entity:  "issue"
			trigger: "on_create"
			active:  false
			stop_on_match: true
			then: [{action: "escalate"}]
		}
		rule: "live": {
			entity:  "issue"
			trigger: "on_create"
			order:   5
			when: [{field: "status", op: "equals", value: "new"}]
			then: [{action: "escalate"}]
		}
	`)
	require.NoError(t, err)

	assert.Empty(t, Lint(pack))
}

func TestLintSharedExecutionOrder(t *testing.T) {
	pack, err := CompileSource("pack.cue", `
		tenant: "acme"
		rule: "a": {
			entity:  "issue"
			trigger: "on_create"
			order:   1
			when: [{field: "status", op: "equals", value: "new"}]
			then: [{action: "escalate"}]
		}
		rule: "b": {
			entity:  "issue"
			trigger: "on_create"
			order:   1
			when: [{field: "status", op: "equals", value: "open"}]
			then: [{action: "escalate"}]
		}
	`)
	require.NoError(t, err)

	warnings := Lint(pack)
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.Equal(t, "info", w.Level)
		assert.Contains(t, w.Message, "execution order shared")
	}
}

func TestLintCleanPack(t *testing.T) {
	pack, err := CompileSource("pack.cue", `
		tenant: "acme"
		rule: "r1": {
			entity:  "issue"
			trigger: "on_create"
			order:   1
			stop_on_match: true
			when: [{field: "priority", op: "equals", value: "critical"}]
			then: [{action: "escalate"}]
		}
		rule: "r2": {
			entity:  "issue"
			trigger: "on_create"
			order:   2
			then: [{action: "add_comment", params: {comment: "triaged"}}]
		}
	`)
	require.NoError(t, err)

	assert.Empty(t, Lint(pack))
}
