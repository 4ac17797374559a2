package lint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, doc string) *Result {
	t.Helper()
	var raw any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return Run(raw)
}

func messages(r *Result, severity string) []string {
	var out []string
	for _, is := range r.Issues {
		if is.Severity == severity {
			out = append(out, is.Message)
		}
	}
	return out
}

func TestLintCleanSchema(t *testing.T) {
	r := run(t, `{
		"boxes": [
			{"id": "str", "fieldType": "number", "defaultValue": 10},
			{"id": "mod", "fieldType": "computed", "formula": {"op": "sub", "args": [{"op": "field", "fieldId": "str"}, {"op": "literal", "value": 10}]}},
			{"id": "class", "fieldType": "single_select", "options": ["fighter"]}
		]
	}`)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Issues)
}

func TestLintUndefinedField(t *testing.T) {
	r := run(t, `{
		"boxes": [{"id": "a", "fieldType": "number"}],
		"rules": [{"id": "r1", "condition": {"op": "field", "fieldId": "ghost"},
		           "effects": [{"type": "enable", "targetBoxId": "a"}]}]
	}`)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, Issue{Severity: "error", Rule: "r1", Message: "undefined field 'ghost' in rule condition"}, r.Issues[0])
}

func TestLintGroupReference(t *testing.T) {
	r := run(t, `{
		"boxes": [
			{"id": "stats", "type": "group"},
			{"id": "c", "fieldType": "computed", "formula": {"op": "field", "fieldId": "stats"}}
		]
	}`)
	assert.True(t, r.Valid)
	assert.Equal(t, []string{"formula references group 'stats', which has no value"}, messages(r, "warning"))
}

func TestLintForwardComputedReference(t *testing.T) {
	r := run(t, `{
		"boxes": [
			{"id": "a", "fieldType": "computed", "formula": {"op": "field", "fieldId": "b"}},
			{"id": "b", "fieldType": "computed", "formula": {"op": "literal", "value": 1}},
			{"id": "c", "fieldType": "computed", "formula": {"op": "add", "args": [{"op": "field", "fieldId": "c"}, {"op": "field", "fieldId": "b"}]}}
		]
	}`)
	assert.Equal(t, []string{
		"computed field 'a' reads 'b', which is declared later; it will see a stale value",
		"computed field 'c' references itself and reads its previous value",
	}, messages(r, "warning"))
}

func TestLintMultipleWriters(t *testing.T) {
	r := run(t, `{
		"boxes": [{"id": "hp", "fieldType": "number"}, {"id": "con", "fieldType": "number"}],
		"relations": [{"id": "rel", "type": "modifies", "sourceBoxId": "con", "targetBoxId": "hp", "modifier": 2}],
		"rules": [
			{"id": "r1", "condition": {"op": "literal", "value": true}, "effects": [
				{"type": "add", "targetBoxId": "hp", "value": {"op": "literal", "value": 1}},
				{"type": "multiply", "targetBoxId": "hp", "value": {"op": "literal", "value": 2}},
				{"type": "set", "targetBoxId": "con", "value": {"op": "literal", "value": 3}}
			]}
		]
	}`)
	assert.Equal(t, []string{
		"field 'hp' is written by relation rel, rule r1; the result depends on their order",
	}, messages(r, "warning"))
}

func TestLintFieldConfiguration(t *testing.T) {
	r := run(t, `{
		"boxes": [
			{"id": "tags", "fieldType": "multi_select"},
			{"id": "secret", "fieldType": "text", "hidden": true},
			{"id": "str", "fieldType": "number", "defaultValue": 12, "xpUpgradable": true, "xpMax": 12}
		]
	}`)
	assert.Equal(t, []string{"select field 'tags' has no options and accepts any value"}, messages(r, "info"))
	assert.Equal(t, []string{
		"hidden field 'secret' is editable by players who cannot see it",
		"XP-upgradable field 'str' costs nothing to upgrade",
		"XP-upgradable field 'str' starts at or above its maximum of 12",
	}, messages(r, "warning"))
}
