// Package ruleset defines the character-sheet schema a game master authors:
// boxes (groups and fields), relations, rules, the XP progression and the
// spell/power catalogue. Normalize turns arbitrary decoded input into a
// canonical Schema; Validate checks its structural and referential integrity.
package ruleset

import "github.com/dlovans/charsheet/pkg/expr"

// SchemaVersion is the only schema layout currently defined.
const SchemaVersion = 1

// Schema is the root container for a ruleset.
type Schema struct {
	SchemaVersion int              `json:"schemaVersion"`
	Categories    []*Category      `json:"categories"`
	Boxes         []*Box           `json:"boxes"`
	Relations     []*Relation      `json:"relations"`
	Rules         []*Rule          `json:"rules"`
	XPProgression []*XPProgression `json:"xpProgression"`
	PowerConfig   PowerConfig      `json:"powerConfig"`
	PowerTiers    []*PowerTier     `json:"powerTiers"`
	SpellGroups   []*SpellGroup    `json:"spellGroups"`
	Spells        []*Spell         `json:"spells"`
}

// Category groups boxes into sheet tabs or sections.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// BoxType distinguishes structural boxes from value-carrying fields.
type BoxType string

const (
	BoxGroup           BoxType = "group"
	BoxField           BoxType = "field"
	BoxRepeatableGroup BoxType = "repeatable_group"
)

// FieldType is the value type of a field box.
type FieldType string

const (
	FieldNumber       FieldType = "number"
	FieldText         FieldType = "text"
	FieldBoolean      FieldType = "boolean"
	FieldSingleSelect FieldType = "single_select"
	FieldMultiSelect  FieldType = "multi_select"
	FieldComputed     FieldType = "computed"
)

// Role is who is acting on a sheet.
type Role string

const (
	RolePlayer Role = "player"
	RoleDM     Role = "dm"
)

// ParseRole maps anything other than "dm" to RolePlayer.
func ParseRole(s string) Role {
	if Role(s) == RoleDM {
		return RoleDM
	}
	return RolePlayer
}

// Width and Height are layout hints for the sheet renderer.
type (
	Width  string
	Height string
)

const (
	WidthAuto    Width = "auto"
	WidthQuarter Width = "quarter"
	WidthThird   Width = "third"
	WidthHalf    Width = "half"
	WidthFull    Width = "full"

	HeightAuto   Height = "auto"
	HeightSmall  Height = "small"
	HeightMedium Height = "medium"
	HeightLarge  Height = "large"
)

// Layout places a box on the rendered sheet.
type Layout struct {
	Width  Width  `json:"width"`
	Height Height `json:"height"`
}

// Box is a node of the sheet tree. Field-only properties are zero for
// groups; RepeatLimit is only meaningful for repeatable groups.
type Box struct {
	ID         string  `json:"id"`
	Type       BoxType `json:"type"`
	Label      string  `json:"label"`
	ParentID   *string `json:"parentId"`
	CategoryID *string `json:"categoryId"`
	Order      int     `json:"order"`
	Layout     Layout  `json:"layout"`

	FieldType    FieldType `json:"fieldType,omitempty"`
	EditableBy   Role      `json:"editableBy,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty"`
	Options      []string  `json:"options,omitempty"`
	Formula      expr.Node `json:"formula,omitempty"`
	Hidden       bool      `json:"hidden,omitempty"`

	IsXPPool     bool     `json:"isXpPool,omitempty"`
	XPUpgradable bool     `json:"xpUpgradable,omitempty"`
	XPCost       float64  `json:"xpCost,omitempty"`
	XPStep       float64  `json:"xpStep,omitempty"`
	XPMax        *float64 `json:"xpMax,omitempty"`
	BonusFieldID *string  `json:"bonusFieldId,omitempty"`

	RepeatLimit *int `json:"repeatLimit,omitempty"`
}

// IsField reports whether b carries a value.
func (b *Box) IsField() bool { return b != nil && b.Type == BoxField }

// IsNumeric reports whether b is a number or computed field.
func (b *Box) IsNumeric() bool {
	return b.IsField() && (b.FieldType == FieldNumber || b.FieldType == FieldComputed)
}

// RelationType is the kind of cross-field relation.
type RelationType string

const (
	RelationRequires RelationType = "requires"
	RelationExcludes RelationType = "excludes"
	RelationModifies RelationType = "modifies"
	RelationGrants   RelationType = "grants"
)

// Relation links a source box to a target box.
type Relation struct {
	ID          string       `json:"id"`
	SourceBoxID string       `json:"sourceBoxId"`
	TargetBoxID string       `json:"targetBoxId"`
	Type        RelationType `json:"type"`
	Modifier    float64      `json:"modifier"`
	ValueExpr   expr.Node    `json:"valueExpr,omitempty"`
}

// EffectType is what a rule effect does to its target.
type EffectType string

const (
	EffectSet      EffectType = "set"
	EffectAdd      EffectType = "add"
	EffectMultiply EffectType = "multiply"
	EffectEnable   EffectType = "enable"
	EffectDisable  EffectType = "disable"
)

// Rule applies Effects in order when Condition is truthy.
type Rule struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Condition expr.Node `json:"condition"`
	Effects   []*Effect `json:"effects"`
}

// Effect is one action of a rule. Value is used by set/add/multiply.
type Effect struct {
	ID          string     `json:"id"`
	Type        EffectType `json:"type"`
	TargetBoxID string     `json:"targetBoxId"`
	Value       expr.Node  `json:"value,omitempty"`
}

// XPProgression is a level table. An empty CategoryID is the global table.
type XPProgression struct {
	CategoryID string     `json:"categoryId"`
	Levels     []*XPLevel `json:"levels"`
}

// XPLevel is the cumulative XP required to reach Level.
type XPLevel struct {
	Level      int     `json:"level"`
	Cumulative float64 `json:"cumulative"`
}

// PowerConfig toggles the spell/power catalogue features.
type PowerConfig struct {
	UseTiers  bool `json:"useTiers"`
	UsePowers bool `json:"usePowers"`
}

// PowerTier is a rank spells can belong to.
type PowerTier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// SpellGroup is a school of spells; opposing groups exclude each other.
type SpellGroup struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	OpposingGroupIDs []string `json:"opposingGroupIds"`
}

// SpellEffectType classifies a spell effect for display.
type SpellEffectType string

const (
	SpellDamage SpellEffectType = "damage"
	SpellHeal   SpellEffectType = "heal"
	SpellModify SpellEffectType = "modify"
	SpellSet    SpellEffectType = "set"
)

// TargetMode says how many target fields a spell effect addresses.
type TargetMode string

const (
	TargetSingle TargetMode = "single"
	TargetAnd    TargetMode = "and"
	TargetOr     TargetMode = "or"
)

// Spell is catalogue data. Casting is not modelled; only its references
// are checked.
type Spell struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	GroupID     string         `json:"groupId"`
	TierID      string         `json:"tierId,omitempty"`
	Level       int            `json:"level"`
	Effects     []*SpellEffect `json:"effects"`
}

// SpellEffect targets one or more number/computed fields.
type SpellEffect struct {
	Type           SpellEffectType `json:"type"`
	TargetMode     TargetMode      `json:"targetMode"`
	TargetFieldIDs []string        `json:"targetFieldIds"`
	Value          expr.Node       `json:"value,omitempty"`
}

// BoxByID indexes the boxes of s. Later duplicates do not replace earlier ones.
func (s *Schema) BoxByID() map[string]*Box {
	idx := make(map[string]*Box, len(s.Boxes))
	for _, b := range s.Boxes {
		if _, dup := idx[b.ID]; !dup {
			idx[b.ID] = b
		}
	}
	return idx
}

// XPPoolField returns the first field flagged as the XP pool, or nil.
func (s *Schema) XPPoolField() *Box {
	for _, b := range s.Boxes {
		if b.IsField() && b.IsXPPool {
			return b
		}
	}
	return nil
}

// GlobalProgression returns the table with an empty CategoryID, falling
// back to the first table.
func (s *Schema) GlobalProgression() *XPProgression {
	for _, p := range s.XPProgression {
		if p.CategoryID == "" {
			return p
		}
	}
	if len(s.XPProgression) > 0 {
		return s.XPProgression[0]
	}
	return nil
}
