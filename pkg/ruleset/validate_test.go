package ruleset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedSchema(t *testing.T) {
	result := Validate(decode(t, fighterSchema))
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Schema)
	assert.Len(t, result.Schema.Boxes, 7)
}

func TestValidateReportsErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   string
	}{
		{
			name:   "duplicate box id",
			schema: `{"boxes": [{"id": "a", "fieldType": "number"}, {"id": "a", "fieldType": "text"}]}`,
			want:   "boxes[1].id: duplicate id 'a' (first used at boxes[0])",
		},
		{
			name:   "dangling parent with suggestion",
			schema: `{"boxes": [{"id": "stats", "type": "group"}, {"id": "str", "parentId": "stat"}]}`,
			want:   "boxes[1].parentId: unknown box 'stat' (did you mean 'stats'?)",
		},
		{
			name:   "parent is a field",
			schema: `{"boxes": [{"id": "a"}, {"id": "b", "parentId": "a"}]}`,
			want:   "boxes[1].parentId: parent 'a' is a field, not a group",
		},
		{
			name: "parent cycle",
			schema: `{"boxes": [
				{"id": "g1", "type": "group", "parentId": "g2"},
				{"id": "g2", "type": "group", "parentId": "g1"}]}`,
			want: "boxes[0].parentId: parent chain of 'g1' forms a cycle",
		},
		{
			name:   "unknown category",
			schema: `{"boxes": [{"id": "a", "categoryId": "nope"}]}`,
			want:   "boxes[0].categoryId: unknown category 'nope'",
		},
		{
			name:   "unknown enum is reported",
			schema: `{"boxes": [{"id": "a", "fieldType": "slider"}]}`,
			want:   "boxes[0].fieldType: invalid value 'slider', defaulted to 'text'",
		},
		{
			name:   "invalid operator in formula",
			schema: `{"boxes": [{"id": "c", "fieldType": "computed", "formula": {"op": "xyz", "args": []}}]}`,
			want:   "boxes[0].formula: invalid operator 'xyz'",
		},
		{
			name:   "computed without formula",
			schema: `{"boxes": [{"id": "c", "fieldType": "computed"}]}`,
			want:   "boxes[0].formula: computed field requires a formula",
		},
		{
			name:   "formula references unknown field",
			schema: `{"boxes": [{"id": "c", "fieldType": "computed", "formula": {"op": "field", "fieldId": "ghost"}}]}`,
			want:   "boxes[0].formula: reference to unknown field 'ghost'",
		},
		{
			name: "two xp pools",
			schema: `{"boxes": [
				{"id": "xp1", "fieldType": "number", "isXpPool": true},
				{"id": "xp2", "fieldType": "number", "isXpPool": true}]}`,
			want: "boxes[1].isXpPool: only one field may be the XP pool",
		},
		{
			name:   "pool and upgradable",
			schema: `{"boxes": [{"id": "xp", "fieldType": "number", "isXpPool": true, "xpUpgradable": true}]}`,
			want:   "boxes[0]: a field cannot be both the XP pool and XP-upgradable",
		},
		{
			name:   "upgradable text field",
			schema: `{"boxes": [{"id": "t", "fieldType": "text", "xpUpgradable": true}]}`,
			want:   "boxes[0].xpUpgradable: only number fields can be XP-upgradable",
		},
		{
			name:   "negative xp cost",
			schema: `{"boxes": [{"id": "a", "fieldType": "number", "xpUpgradable": true, "xpCost": -5}]}`,
			want:   "boxes[0].xpCost: xpCost must not be negative, defaulted to 0",
		},
		{
			name:   "zero xp step",
			schema: `{"boxes": [{"id": "a", "fieldType": "number", "xpUpgradable": true, "xpStep": 0}]}`,
			want:   "boxes[0].xpStep: xpStep must be positive, defaulted to 1",
		},
		{
			name:   "non-numeric xp step",
			schema: `{"boxes": [{"id": "a", "fieldType": "number", "xpUpgradable": true, "xpStep": "lots"}]}`,
			want:   "boxes[0].xpStep: xpStep 'lots' is not a number, defaulted to 1",
		},
		{
			name:   "negative xp max",
			schema: `{"boxes": [{"id": "a", "fieldType": "number", "xpUpgradable": true, "xpMax": -1}]}`,
			want:   "boxes[0].xpMax: xpMax must not be negative, ignored",
		},
		{
			name:   "repeat limit below one",
			schema: `{"boxes": [{"id": "g", "type": "repeatable_group", "repeatLimit": -2}]}`,
			want:   "boxes[0].repeatLimit: repeatLimit must be at least 1, ignored",
		},
		{
			name:   "select default outside options",
			schema: `{"boxes": [{"id": "cls", "fieldType": "single_select", "options": ["fighter"], "defaultValue": "rogue"}]}`,
			want:   "boxes[0].defaultValue: default value 'rogue' is not a valid single_select, defaulted to ''",
		},
		{
			name:   "non-numeric number default",
			schema: `{"boxes": [{"id": "n", "fieldType": "number", "defaultValue": "abc"}]}`,
			want:   "boxes[0].defaultValue: default value 'abc' is not a valid number, defaulted to '0'",
		},
		{
			name:   "dangling bonus field",
			schema: `{"boxes": [{"id": "str", "fieldType": "number", "bonusFieldId": "strBonus"}]}`,
			want:   "boxes[0].bonusFieldId: unknown box 'strBonus'",
		},
		{
			name:   "bonus field of wrong kind",
			schema: `{"boxes": [{"id": "str", "fieldType": "number", "bonusFieldId": "n"}, {"id": "n", "fieldType": "text"}]}`,
			want:   "boxes[0].bonusFieldId: bonus field 'n' must be a number or computed field",
		},
		{
			name:   "dangling relation target",
			schema: `{"boxes": [{"id": "a"}], "relations": [{"sourceBoxId": "a", "targetBoxId": "b", "type": "requires"}]}`,
			want:   "relations[0].targetBoxId: unknown box 'b' (did you mean 'a'?)",
		},
		{
			name:   "modifies non-numeric target",
			schema: `{"boxes": [{"id": "a"}, {"id": "b"}], "relations": [{"sourceBoxId": "a", "targetBoxId": "b", "type": "modifies"}]}`,
			want:   "relations[0].targetBoxId: modifies relation target 'b' must be a number or computed field",
		},
		{
			name:   "rule effect target missing",
			schema: `{"boxes": [{"id": "a"}], "rules": [{"condition": {"op": "literal", "value": true}, "effects": [{"type": "enable"}]}]}`,
			want:   "rules[0].effects[0].targetBoxId: box reference is required",
		},
		{
			name:   "rule without condition",
			schema: `{"boxes": [{"id": "a"}], "rules": [{"effects": [{"type": "enable", "targetBoxId": "a"}]}]}`,
			want:   "rules[0].condition: rule requires a condition",
		},
		{
			name: "add effect on text",
			schema: `{"boxes": [{"id": "a"}], "rules": [{"condition": {"op": "literal", "value": true},
				"effects": [{"type": "add", "targetBoxId": "a", "value": {"op": "literal", "value": 1}}]}]}`,
			want: "rules[0].effects[0].targetBoxId: add effect target 'a' must be a number or computed field",
		},
		{
			name:   "progression must start at level 1",
			schema: `{"xpProgression": [{"levels": [{"level": 2, "cumulative": 0}]}]}`,
			want:   "xpProgression[0].levels[0].level: first level must be 1, got 2",
		},
		{
			name:   "progression levels strictly increase",
			schema: `{"xpProgression": [{"levels": [{"level": 1, "cumulative": 0}, {"level": 1, "cumulative": 5}]}]}`,
			want:   "xpProgression[0].levels[1].level: levels must strictly increase (1 after 1)",
		},
		{
			name:   "progression cumulative non-decreasing",
			schema: `{"xpProgression": [{"levels": [{"level": 1, "cumulative": 10}, {"level": 2, "cumulative": 5}]}]}`,
			want:   "xpProgression[0].levels[1].cumulative: cumulative XP must not decrease (5 after 10)",
		},
		{
			name:   "opposing group is self",
			schema: `{"spellGroups": [{"id": "fire", "opposingGroupIds": ["fire"]}]}`,
			want:   "spellGroups[0].opposingGroupIds: group cannot oppose itself",
		},
		{
			name:   "opposing group unknown",
			schema: `{"spellGroups": [{"id": "fire", "opposingGroupIds": ["ice"]}]}`,
			want:   "spellGroups[0].opposingGroupIds: unknown spell group 'ice'",
		},
		{
			name: "spell levels not contiguous",
			schema: `{"spellGroups": [{"id": "fire"}], "spells": [
				{"id": "s1", "groupId": "fire", "level": 1},
				{"id": "s3", "groupId": "fire", "level": 3}]}`,
			want: "spells: spell levels in group 'fire' must be contiguous from 1 (missing level 2)",
		},
		{
			name:   "spell tier unknown",
			schema: `{"spellGroups": [{"id": "fire"}], "spells": [{"id": "s", "groupId": "fire", "tierId": "t9"}]}`,
			want:   "spells[0].tierId: unknown power tier 't9'",
		},
		{
			name: "single target mode needs one target",
			schema: `{"boxes": [{"id": "hp", "fieldType": "number"}, {"id": "mp", "fieldType": "number"}],
				"spellGroups": [{"id": "g"}],
				"spells": [{"id": "s", "groupId": "g", "effects": [{"targetMode": "single", "targetFieldIds": ["hp", "mp"]}]}]}`,
			want: "spells[0].effects[0].targetFieldIds: target mode 'single' needs exactly one target, got 2",
		},
		{
			name: "or target mode needs two targets",
			schema: `{"boxes": [{"id": "hp", "fieldType": "number"}], "spellGroups": [{"id": "g"}],
				"spells": [{"id": "s", "groupId": "g", "effects": [{"targetMode": "or", "targetFieldIds": ["hp"]}]}]}`,
			want: "spells[0].effects[0].targetFieldIds: target mode 'or' needs at least two targets, got 1",
		},
		{
			name: "spell target must be numeric",
			schema: `{"boxes": [{"id": "name"}], "spellGroups": [{"id": "g"}],
				"spells": [{"id": "s", "groupId": "g", "effects": [{"targetFieldIds": ["name"]}]}]}`,
			want: "spells[0].effects[0].targetFieldIds: spell target 'name' must be a number or computed field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(decode(t, tt.schema))
			assert.False(t, result.Valid)
			assert.Contains(t, result.Errors, tt.want, "errors: %s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestValidateReportsEveryRepairedValue(t *testing.T) {
	result := Validate(decode(t, `{"boxes": [
		{"id": "a", "fieldType": "number", "xpUpgradable": true, "xpCost": -5, "xpStep": 0, "xpMax": -1},
		{"id": "cls", "fieldType": "single_select", "options": ["fighter"], "defaultValue": "rogue"},
		{"id": "n", "fieldType": "number", "defaultValue": "abc"},
		{"id": "g", "type": "repeatable_group", "repeatLimit": -2}]}`))

	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 6, "errors: %s", strings.Join(result.Errors, "\n"))

	a := result.Schema.Boxes[0]
	assert.Equal(t, float64(0), a.XPCost)
	assert.Equal(t, float64(1), a.XPStep)
	assert.Nil(t, a.XPMax)
	assert.Nil(t, result.Schema.Boxes[3].RepeatLimit)

	// The repaired schema itself is clean.
	again := Validate(result.Schema)
	assert.True(t, again.Valid, "errors: %v", again.Errors)
}

func TestValidateChecksNormalizedSchema(t *testing.T) {
	result := Validate("not a schema")
	assert.True(t, result.Valid)
	assert.Equal(t, EmptySchema(), result.Schema)

	result = Validate(Normalize(decode(t, fighterSchema)))
	assert.True(t, result.Valid, "errors: %v", result.Errors)
}

// Every id a valid schema refers to must resolve inside boxes.
func TestValidateSoundness(t *testing.T) {
	result := Validate(decode(t, fighterSchema))
	require.True(t, result.Valid)

	s := result.Schema
	boxes := s.BoxByID()
	for _, b := range s.Boxes {
		if b.ParentID != nil {
			assert.Contains(t, boxes, *b.ParentID)
		}
		if b.BonusFieldID != nil {
			assert.Contains(t, boxes, *b.BonusFieldID)
		}
	}
	for _, r := range s.Relations {
		assert.Contains(t, boxes, r.SourceBoxID)
		assert.Contains(t, boxes, r.TargetBoxID)
	}
	for _, r := range s.Rules {
		for _, e := range r.Effects {
			assert.Contains(t, boxes, e.TargetBoxID)
		}
	}
}

func TestLevelFor(t *testing.T) {
	table := &XPProgression{Levels: []*XPLevel{
		{Level: 1, Cumulative: 0},
		{Level: 2, Cumulative: 10},
		{Level: 3, Cumulative: 25},
	}}

	tests := []struct {
		xp      float64
		level   int
		nextAt  float64
		hasNext bool
	}{
		{0, 1, 10, true},
		{9, 1, 10, true},
		{10, 2, 25, true},
		{30, 3, 0, false},
	}
	for _, tt := range tests {
		level, next := LevelFor(table, tt.xp)
		assert.Equal(t, tt.level, level, "LevelFor(%v)", tt.xp)
		if tt.hasNext {
			require.NotNil(t, next)
			assert.Equal(t, tt.nextAt, *next)
		} else {
			assert.Nil(t, next)
		}
	}

	level, next := LevelFor(nil, 100)
	assert.Equal(t, 1, level)
	assert.Nil(t, next)
}
