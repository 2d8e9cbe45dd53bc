package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/deskflow/internal/store"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "deskflow.db")
}

func runRulesCmd(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewRulesCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestRulesImportAndList(t *testing.T) {
	packPath := writePack(t, validPack)
	dbPath := tempDBPath(t)

	buf, err := runRulesCmd(t, "text", "import", packPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ imported 1 rule(s) for tenant acme")

	buf, err = runRulesCmd(t, "text", "list", "--db", dbPath, "--tenant", "acme")
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "vip-escalation")
	assert.Contains(t, output, "on_create")
	assert.Contains(t, output, "[stop]")
}

func TestRulesImportIsUpsert(t *testing.T) {
	packPath := writePack(t, validPack)
	dbPath := tempDBPath(t)

	_, err := runRulesCmd(t, "text", "import", packPath, "--db", dbPath)
	require.NoError(t, err)
	_, err = runRulesCmd(t, "text", "import", packPath, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	rules, err := st.ListRules(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, rules, 1, "re-import must replace, not duplicate")
}

func TestRulesImportInvalidPackImportsNothing(t *testing.T) {
	packPath := writePack(t, `
tenant: "acme"

rule: "good": {
	entity:  "issue"
	trigger: "on_create"
	then: [
		{action: "add_comment", params: {comment: "ok"}},
	]
}

rule: "unknown-action": {
	entity:  "issue"
	trigger: "on_create"
	then: [
		{action: "explode"},
	]
}
`)
	dbPath := tempDBPath(t)

	buf, err := runRulesCmd(t, "text", "import", packPath, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "unknown-action")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	rules, err := st.ListRules(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, rules, "a pack with any invalid rule imports nothing")
}

func TestRulesImportJSON(t *testing.T) {
	packPath := writePack(t, validPack)
	dbPath := tempDBPath(t)

	buf, err := runRulesCmd(t, "json", "import", packPath, "--db", dbPath)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme", data["tenant"])
	assert.Equal(t, float64(1), data["imported"])
}

func TestRulesListEmptyTenant(t *testing.T) {
	dbPath := tempDBPath(t)

	// Opening creates the schema, so list sees an empty table.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf, err := runRulesCmd(t, "text", "list", "--db", dbPath, "--tenant", "ghost")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no rules for tenant ghost")
}

func TestRulesListJSON(t *testing.T) {
	packPath := writePack(t, validPack)
	dbPath := tempDBPath(t)

	_, err := runRulesCmd(t, "json", "import", packPath, "--db", dbPath)
	require.NoError(t, err)

	buf, err := runRulesCmd(t, "json", "list", "--db", dbPath, "--tenant", "acme")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	summaries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, summaries, 1)
	first, ok := summaries[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "vip-escalation", first["id"])
	assert.Equal(t, true, first["stop_on_match"])
}

func TestRulesImportMissingDBFlag(t *testing.T) {
	packPath := writePack(t, validPack)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRulesCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"import", packPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
