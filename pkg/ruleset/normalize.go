package ruleset

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dlovans/charsheet/pkg/expr"
)

// Normalize coerces any decoded value into a canonical Schema. It never
// fails: malformed entries are dropped, unknown enum values are replaced by
// their defaults and missing ids get positional placeholders ("box_3").
// Normalize(Normalize(x)) equals Normalize(x).
func Normalize(input any) *Schema {
	n := &normalizer{}
	return n.schema(input)
}

// normalizer records what it had to substitute so Validate can report it.
type normalizer struct {
	notes []Issue
}

func (n *normalizer) note(path, format string, args ...any) {
	n.notes = append(n.notes, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// EmptySchema is the canonical schema for input that is not an object.
func EmptySchema() *Schema {
	return &Schema{
		SchemaVersion: SchemaVersion,
		Categories:    []*Category{},
		Boxes:         []*Box{},
		Relations:     []*Relation{},
		Rules:         []*Rule{},
		XPProgression: []*XPProgression{defaultProgression("")},
		PowerConfig:   PowerConfig{UseTiers: true, UsePowers: true},
		PowerTiers:    []*PowerTier{},
		SpellGroups:   []*SpellGroup{},
		Spells:        []*Spell{},
	}
}

func defaultProgression(categoryID string) *XPProgression {
	return &XPProgression{
		CategoryID: categoryID,
		Levels:     []*XPLevel{{Level: 1, Cumulative: 0}},
	}
}

func (n *normalizer) schema(input any) *Schema {
	raw, ok := toObject(input)
	if !ok {
		return EmptySchema()
	}

	s := EmptySchema()
	if v, present := raw["schemaVersion"]; present {
		if f, ok := number(v); !ok || f != SchemaVersion {
			n.note("schemaVersion", "unsupported schema version %v, using %d", v, SchemaVersion)
		}
	}

	for i, item := range list(raw["categories"]) {
		if m, ok := expr.AsMap(item); ok {
			s.Categories = append(s.Categories, n.category(m, i))
		}
	}
	for i, item := range list(raw["boxes"]) {
		if m, ok := expr.AsMap(item); ok {
			s.Boxes = append(s.Boxes, n.box(m, i))
		}
	}
	for i, item := range list(raw["relations"]) {
		if m, ok := expr.AsMap(item); ok {
			s.Relations = append(s.Relations, n.relation(m, i))
		}
	}
	for i, item := range list(raw["rules"]) {
		if m, ok := expr.AsMap(item); ok {
			s.Rules = append(s.Rules, n.rule(m, i))
		}
	}

	s.XPProgression = n.progression(raw["xpProgression"], s.Categories)

	if m, ok := expr.AsMap(raw["powerConfig"]); ok {
		s.PowerConfig.UseTiers = boolOr(m["useTiers"], true)
		s.PowerConfig.UsePowers = boolOr(m["usePowers"], true)
	}
	for i, item := range list(raw["powerTiers"]) {
		if m, ok := expr.AsMap(item); ok {
			s.PowerTiers = append(s.PowerTiers, &PowerTier{
				ID:    idOr(m["id"], "tier", i),
				Name:  str(m["name"]),
				Order: intOr(m["order"], i),
			})
		}
	}
	for i, item := range list(raw["spellGroups"]) {
		if m, ok := expr.AsMap(item); ok {
			s.SpellGroups = append(s.SpellGroups, &SpellGroup{
				ID:               idOr(m["id"], "group", i),
				Name:             str(m["name"]),
				OpposingGroupIDs: strList(m["opposingGroupIds"]),
			})
		}
	}
	for i, item := range list(raw["spells"]) {
		if m, ok := expr.AsMap(item); ok {
			s.Spells = append(s.Spells, n.spell(m, i))
		}
	}
	return s
}

func (n *normalizer) category(m map[string]any, i int) *Category {
	return &Category{
		ID:    idOr(m["id"], "category", i),
		Name:  str(m["name"]),
		Order: intOr(m["order"], i),
	}
}

var (
	boxTypes      = []BoxType{BoxGroup, BoxField, BoxRepeatableGroup}
	fieldTypes    = []FieldType{FieldNumber, FieldText, FieldBoolean, FieldSingleSelect, FieldMultiSelect, FieldComputed}
	roles         = []Role{RolePlayer, RoleDM}
	widths        = []Width{WidthAuto, WidthQuarter, WidthThird, WidthHalf, WidthFull}
	heights       = []Height{HeightAuto, HeightSmall, HeightMedium, HeightLarge}
	relationTypes = []RelationType{RelationRequires, RelationExcludes, RelationModifies, RelationGrants}
	effectTypes   = []EffectType{EffectSet, EffectAdd, EffectMultiply, EffectEnable, EffectDisable}
	spellEffects  = []SpellEffectType{SpellDamage, SpellHeal, SpellModify, SpellSet}
	targetModes   = []TargetMode{TargetSingle, TargetAnd, TargetOr}
)

func (n *normalizer) box(m map[string]any, i int) *Box {
	path := fmt.Sprintf("boxes[%d]", i)
	b := &Box{
		ID:         idOr(m["id"], "box", i),
		Type:       enumOr(n, path+".type", m["type"], boxTypes, BoxField),
		Label:      str(m["label"]),
		ParentID:   optID(m["parentId"]),
		CategoryID: optID(m["categoryId"]),
		Order:      intOr(m["order"], i),
		Layout:     Layout{Width: WidthFull, Height: HeightAuto},
	}
	if lm, ok := expr.AsMap(m["layout"]); ok {
		b.Layout.Width = enumOr(n, path+".layout.width", lm["width"], widths, WidthFull)
		b.Layout.Height = enumOr(n, path+".layout.height", lm["height"], heights, HeightAuto)
	}

	switch b.Type {
	case BoxRepeatableGroup:
		if f, ok := n.bounded(path+".repeatLimit", m["repeatLimit"], atLeastOne, "must be at least 1", "ignored"); ok {
			limit := int(f)
			b.RepeatLimit = &limit
		}
	case BoxField:
		n.field(b, m, path)
	}
	return b
}

func (n *normalizer) field(b *Box, m map[string]any, path string) {
	b.FieldType = enumOr(n, path+".fieldType", m["fieldType"], fieldTypes, FieldText)
	b.EditableBy = enumOr(n, path+".editableBy", m["editableBy"], roles, RolePlayer)
	b.Hidden = expr.ToBool(m["hidden"])
	b.Options = []string{}
	if b.FieldType == FieldSingleSelect || b.FieldType == FieldMultiSelect {
		b.Options = strList(m["options"])
	}

	if b.FieldType == FieldComputed {
		b.Formula = expr.Parse(m["formula"])
	}
	b.DefaultValue = ZeroValue(b.FieldType)
	if raw := m["defaultValue"]; raw != nil {
		if v, ok := CoerceValue(b, raw); ok {
			b.DefaultValue = v
		} else {
			n.note(path+".defaultValue", "default value '%v' is not a valid %s, defaulted to '%v'", raw, b.FieldType, b.DefaultValue)
		}
	}

	b.IsXPPool = expr.ToBool(m["isXpPool"])
	b.XPUpgradable = expr.ToBool(m["xpUpgradable"])
	if f, ok := n.bounded(path+".xpCost", m["xpCost"], nonNegative, "must not be negative", "defaulted to 0"); ok {
		b.XPCost = f
	}
	b.XPStep = 1
	if f, ok := n.bounded(path+".xpStep", m["xpStep"], positive, "must be positive", "defaulted to 1"); ok {
		b.XPStep = f
	}
	if f, ok := n.bounded(path+".xpMax", m["xpMax"], nonNegative, "must not be negative", "ignored"); ok {
		b.XPMax = &f
	}
	b.BonusFieldID = optID(m["bonusFieldId"])
}

func (n *normalizer) relation(m map[string]any, i int) *Relation {
	r := &Relation{
		ID:          idOr(m["id"], "relation", i),
		SourceBoxID: idString(m["sourceBoxId"]),
		TargetBoxID: idString(m["targetBoxId"]),
		Type:        enumOr(n, fmt.Sprintf("relations[%d].type", i), m["type"], relationTypes, RelationRequires),
		ValueExpr:   expr.Parse(m["valueExpr"]),
	}
	if f, ok := number(m["modifier"]); ok {
		r.Modifier = f
	}
	return r
}

func (n *normalizer) rule(m map[string]any, i int) *Rule {
	r := &Rule{
		ID:        idOr(m["id"], "rule", i),
		Label:     str(m["label"]),
		Condition: expr.Parse(m["condition"]),
		Effects:   []*Effect{},
	}
	for j, item := range list(m["effects"]) {
		em, ok := expr.AsMap(item)
		if !ok {
			continue
		}
		r.Effects = append(r.Effects, &Effect{
			ID:          idOr(em["id"], "effect", j),
			Type:        enumOr(n, fmt.Sprintf("rules[%d].effects[%d].type", i, j), em["type"], effectTypes, EffectSet),
			TargetBoxID: idString(em["targetBoxId"]),
			Value:       expr.Parse(em["value"]),
		})
	}
	return r
}

// progression accepts either a list of tables or a flat list of levels
// (read as the global table).
func (n *normalizer) progression(v any, categories []*Category) []*XPProgression {
	items := list(v)
	var tables []*XPProgression
	var flat []*XPLevel

	for _, item := range items {
		m, ok := expr.AsMap(item)
		if !ok {
			continue
		}
		if levels, isTable := m["levels"]; isTable {
			tables = append(tables, &XPProgression{
				CategoryID: idString(m["categoryId"]),
				Levels:     levelList(levels),
			})
			continue
		}
		if lvl, ok := level(m); ok {
			flat = append(flat, lvl)
		}
	}
	if len(flat) > 0 {
		tables = append([]*XPProgression{{Levels: flat}}, tables...)
	}
	if len(tables) > 0 {
		return tables
	}

	tables = []*XPProgression{defaultProgression("")}
	for _, c := range categories {
		tables = append(tables, defaultProgression(c.ID))
	}
	return tables
}

func levelList(v any) []*XPLevel {
	levels := []*XPLevel{}
	for _, item := range list(v) {
		if m, ok := expr.AsMap(item); ok {
			if lvl, ok := level(m); ok {
				levels = append(levels, lvl)
			}
		}
	}
	return levels
}

func level(m map[string]any) (*XPLevel, bool) {
	l, ok := number(m["level"])
	if !ok {
		return nil, false
	}
	c, ok := number(m["cumulative"])
	if !ok {
		c = 0
	}
	return &XPLevel{Level: int(l), Cumulative: c}, true
}

func (n *normalizer) spell(m map[string]any, i int) *Spell {
	sp := &Spell{
		ID:          idOr(m["id"], "spell", i),
		Name:        str(m["name"]),
		Description: str(m["description"]),
		GroupID:     idString(m["groupId"]),
		TierID:      idString(m["tierId"]),
		Level:       intOr(m["level"], 1),
		Effects:     []*SpellEffect{},
	}
	for j, item := range list(m["effects"]) {
		em, ok := expr.AsMap(item)
		if !ok {
			continue
		}
		path := fmt.Sprintf("spells[%d].effects[%d]", i, j)
		sp.Effects = append(sp.Effects, &SpellEffect{
			Type:           enumOr(n, path+".type", em["type"], spellEffects, SpellModify),
			TargetMode:     enumOr(n, path+".targetMode", em["targetMode"], targetModes, TargetSingle),
			TargetFieldIDs: strList(em["targetFieldIds"]),
			Value:          expr.Parse(em["value"]),
		})
	}
	return sp
}

// === Value helpers ===

// toObject returns the object view of input. Typed schemas are round-tripped
// through JSON so that Normalize can be applied to its own output.
func toObject(input any) (map[string]any, bool) {
	switch v := input.(type) {
	case *Schema:
		if v == nil {
			return nil, false
		}
		return roundTrip(v)
	case Schema:
		return roundTrip(&v)
	case json.RawMessage:
		return decodeJSON(v)
	case []byte:
		return decodeJSON(v)
	}
	return expr.AsMap(input)
}

func roundTrip(s *Schema) (map[string]any, bool) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	return decodeJSON(b)
}

func decodeJSON(b []byte) (map[string]any, bool) {
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return expr.AsMap(out)
}

func list(v any) []any {
	items, _ := expr.AsSlice(v)
	return items
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// idString accepts string ids and, since YAML decodes bare numbers, numeric ones.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil, bool:
		return ""
	}
	if _, ok := number(v); ok {
		return expr.ToString(v)
	}
	return ""
}

func idOr(v any, kind string, i int) string {
	if id := idString(v); id != "" {
		return id
	}
	return fmt.Sprintf("%s_%d", kind, i+1)
}

func optID(v any) *string {
	id := idString(v)
	if id == "" {
		return nil
	}
	return &id
}

func strList(v any) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, item := range list(v) {
		s := idString(item)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// number reads numeric values and numeric strings; nil, booleans and lists
// are not numbers here.
func number(v any) (float64, bool) {
	switch v.(type) {
	case nil, bool, []any, map[string]any:
		return 0, false
	case string:
		if strings.TrimSpace(v.(string)) == "" {
			return 0, false
		}
	}
	f, ok := expr.ParseNumber(v)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func intOr(v any, fallback int) int {
	if f, ok := number(v); ok {
		return int(math.Round(f))
	}
	return fallback
}

func boolOr(v any, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return expr.ToBool(v)
}

func nonNegative(f float64) bool { return f >= 0 }
func positive(f float64) bool { return f > 0 }
func atLeastOne(f float64) bool { return f >= 1 }

// bounded reads an optional numeric setting. A present value that is not a
// number or fails inRange is noted under path and treated as absent.
func (n *normalizer) bounded(path string, v any, inRange func(float64) bool, rule, fallback string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	name := path[strings.LastIndex(path, ".")+1:]
	f, ok := number(v)
	switch {
	case !ok:
		n.note(path, "%s '%v' is not a number, %s", name, v, fallback)
		return 0, false
	case !inRange(f):
		n.note(path, "%s %s, %s", name, rule, fallback)
		return 0, false
	}
	return f, true
}

func enumOr[T ~string](n *normalizer, path string, v any, allowed []T, fallback T) T {
	s, _ := v.(string)
	for _, a := range allowed {
		if T(s) == a {
			return a
		}
	}
	if v != nil {
		n.note(path, "invalid value '%v', defaulted to '%s'", v, fallback)
	}
	return fallback
}
