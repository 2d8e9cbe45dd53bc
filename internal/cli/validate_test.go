package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPack = `
tenant: "acme"

rule: "vip-escalation": {
	name:          "VIP escalation"
	entity:        "issue"
	trigger:       "on_create"
	order:         10
	stop_on_match: true
	when: [
		{field: "priority", op: "equals", value: "critical"},
	]
	then: [
		{action: "assign_to_group", params: {group_id: "sev1"}},
	]
}
`

func writePack(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestValidateValidPack(t *testing.T) {
	path := writePack(t, validPack)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ pack valid: 1 rule(s) for tenant acme")
}

func TestValidateValidPackJSON(t *testing.T) {
	path := writePack(t, validPack)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, "acme", data["tenant"])
}

func TestValidateMissingFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/pack.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "E003")
}

func TestValidateCompileError(t *testing.T) {
	// Pack without a tenant fails compilation, not validation.
	path := writePack(t, `rule: "r": {entity: "issue", trigger: "on_create", then: [{action: "add_comment"}]}`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "tenant")
}

func TestValidateInvalidRule(t *testing.T) {
	// Unknown operator compiles but fails semantic validation.
	path := writePack(t, `
tenant: "acme"

rule: "bad-op": {
	entity:  "issue"
	trigger: "on_create"
	when: [
		{field: "priority", op: "matches", value: "crit.*"},
	]
	then: [
		{action: "add_comment", params: {comment: "hi"}},
	]
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "bad-op")
	assert.Contains(t, output, "E111")
}

func TestValidateInvalidRuleJSON(t *testing.T) {
	path := writePack(t, `
tenant: "acme"

rule: "bad-action": {
	entity:  "issue"
	trigger: "on_create"
	then: [
		{action: "escalate_priority"},
	]
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E120", resp.Error.Code)
}

func TestValidateReportsWarnings(t *testing.T) {
	// Stopper with no conditions shadows everything behind it.
	path := writePack(t, `
tenant: "acme"

rule: "catch-all": {
	entity:        "issue"
	trigger:       "on_create"
	order:         1
	stop_on_match: true
	then: [
		{action: "add_comment", params: {comment: "handled"}},
	]
}

rule: "never-runs": {
	entity:  "issue"
	trigger: "on_create"
	order:   2
	then: [
		{action: "change_status", params: {status: "triaged"}},
	]
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	// Warnings alone exit 0.
	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ pack valid")
	assert.Contains(t, output, "⚠ catch-all")
	assert.Contains(t, output, "⚠ never-runs")
}

func TestValidateVerboseOutput(t *testing.T) {
	path := writePack(t, validPack)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	// Verbose logs go to stderr to avoid corrupting JSON output
	verboseOutput := stderrBuf.String()
	assert.Contains(t, verboseOutput, "Compiled 1 rule(s) for tenant acme")
	assert.Contains(t, verboseOutput, "Validating rule: vip-escalation")
}
