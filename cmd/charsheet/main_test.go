package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dlovans/charsheet/pkg/ruleset"
)

const cliSchema = `
boxes:
  - id: xp
    fieldType: number
    isXpPool: true
    editableBy: dm
  - id: str
    fieldType: number
    defaultValue: 9
    xpUpgradable: true
    xpCost: 4
  - id: mod
    fieldType: computed
    formula:
      op: floor
      args:
        - op: div
          args: [{op: field, fieldId: str}, {op: literal, value: 2}]
  - id: notes
    fieldType: text
    hidden: true
    editableBy: dm
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNormalizeCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hero.yaml", cliSchema)

	out, err := execute(t, "normalize", path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["boxes"], 4)

	out, err = execute(t, "normalize", path, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "fieldType: computed")

	_, err = execute(t, "normalize", path, "--format", "xml")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", cliSchema)
	bad := writeFile(t, dir, "bad.json", `{"boxes": [{"id": "a"}, {"id": "a"}]}`)

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Equal(t, "✓ "+good+"\n", out)

	out, err = execute(t, "validate", good, bad)
	assert.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "boxes[1].id: duplicate id 'a' (first used at boxes[0])")

	_, err = execute(t, "validate", filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read")
}

func TestLintCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lint.json", `{"boxes": [
		{"id": "a", "fieldType": "computed", "formula": {"op": "field", "fieldId": "ghost"}}
	]}`)

	out, err := execute(t, "lint", path)
	assert.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "✗ error [field: a]: undefined field 'ghost' in formula")

	clean := writeFile(t, dir, "clean.yaml", cliSchema)
	out, err = execute(t, "lint", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found")
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hero.yaml", cliSchema)

	out, err := execute(t, "resolve", "--schema", path, "--set", "str=14", "--set", "notes=secret")
	require.NoError(t, err)

	var result struct {
		Values map[string]any `json:"values"`
		Errors []string       `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, float64(7), result.Values["mod"])
	assert.NotContains(t, result.Values, "notes", "hidden from players")

	out, err = execute(t, "resolve", "--schema", path, "--role", "dm", "--set", "notes=secret")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "secret", result.Values["notes"])
}

func TestStoreWorkflow(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "charsheet.db")
	schema := writeFile(t, dir, "hero.yaml", cliSchema)
	dm := []string{"--db", db, "--role", "dm", "--actor", "gm"}
	player := []string{"--db", db, "--role", "player", "--actor", "ana"}
	run := func(base []string, args ...string) string {
		t.Helper()
		out, err := execute(t, append(append([]string{}, args...), base...)...)
		require.NoError(t, err, "charsheet %v", args)
		return out
	}

	run(dm, "ruleset", "draft", "core", schema)
	assert.Equal(t, "published core version 1\n", run(dm, "ruleset", "publish", "core"))
	run(dm, "character", "create", "hero", "--ruleset", "core")

	_, err := execute(t, append([]string{"character", "set", "hero", "notes", "x"}, player...)...)
	assert.ErrorContains(t, err, "only be edited by the DM")
	_, err = execute(t, append([]string{"character", "set", "hero", "str", "20"}, player...)...)
	assert.ErrorContains(t, err, "use 'xp spend'")
	assert.Equal(t, "hero.str = 10\n", run(dm, "character", "set", "hero", "str", "10"))

	var op struct {
		Affected []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"affected"`
		Summary struct {
			XPLeftover float64 `json:"xp_leftover"`
		} `json:"xp_summary"`
		Values map[string]any `json:"values"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(dm, "xp", "award", "hero", "8", "--session", "s1")), &op))
	require.Len(t, op.Affected, 1)
	awardID := op.Affected[0].ID

	require.NoError(t, json.Unmarshal([]byte(run(dm, "xp", "confirm", "hero", awardID)), &op))
	assert.Equal(t, "confirmed", op.Affected[0].Status)
	assert.Equal(t, float64(8), op.Summary.XPLeftover)

	_, err = execute(t, append([]string{"xp", "award", "hero", "5"}, player...)...)
	assert.ErrorContains(t, err, "only the DM")

	require.NoError(t, json.Unmarshal([]byte(run(player, "xp", "spend", "hero", "str")), &op))
	assert.Equal(t, "pending", op.Affected[0].Status)
	assert.Equal(t, float64(4), op.Summary.XPLeftover)
	assert.Equal(t, float64(11), op.Values["str"])
	assert.Equal(t, float64(5), op.Values["mod"])
	spendID := op.Affected[0].ID

	require.NoError(t, json.Unmarshal([]byte(run(dm, "xp", "confirm", "hero", spendID)), &op))
	assert.Equal(t, "confirmed", op.Affected[0].Status)

	var shown struct {
		Sheet struct {
			Values map[string]any `json:"values"`
		} `json:"sheet"`
		Summary struct {
			XPUsedConfirmed float64 `json:"xp_used_confirmed"`
		} `json:"xp_summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(player, "character", "show", "hero")), &shown))
	assert.Equal(t, float64(11), shown.Sheet.Values["str"])
	assert.Equal(t, float64(4), shown.Sheet.Values["xp"])
	assert.Equal(t, float64(4), shown.Summary.XPUsedConfirmed)
	assert.NotContains(t, shown.Sheet.Values, "notes")
}

func TestSetField(t *testing.T) {
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(cliSchema), &raw))
	schema := ruleset.Normalize(raw)
	values := map[string]any{"str": float64(9)}

	tests := []struct {
		name    string
		field   string
		value   any
		role    ruleset.Role
		want    any
		wantErr string
	}{
		{name: "dm sets upgradable field", field: "str", value: "12", role: ruleset.RoleDM, want: float64(12)},
		{name: "player cannot bypass xp spend", field: "str", value: "20", role: ruleset.RolePlayer, wantErr: "use 'xp spend'"},
		{name: "xp pool is ledger owned", field: "xp", value: "100", role: ruleset.RoleDM, wantErr: "XP pool"},
		{name: "computed field", field: "mod", value: "1", role: ruleset.RoleDM, wantErr: "is computed"},
		{name: "dm only field", field: "notes", value: "x", role: ruleset.RolePlayer, wantErr: "only be edited by the DM"},
		{name: "unknown field", field: "ghost", value: "1", role: ruleset.RoleDM, wantErr: "unknown field"},
		{name: "bad number", field: "str", value: "lots", role: ruleset.RoleDM, wantErr: "invalid number value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := setField(schema, values, tt.field, tt.value, tt.role)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[tt.field])
			assert.Equal(t, float64(9), values["str"], "input not mutated")
		})
	}
}
