package ruleset

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/dlovans/charsheet/pkg/expr"
)

// Issue is a structural problem found in a schema, tied to a path such as
// "boxes[3].formula".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult is the outcome of Validate. Schema is always the
// normalized schema, even when Valid is false.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
	Issues []Issue  `json:"-"`
	Schema *Schema  `json:"normalizedSchema"`
}

// Validate normalizes input and checks the result for duplicate ids,
// dangling references, enum membership, XP invariants, progression
// monotonicity and spell/power integrity. Values the normalizer had to
// replace are reported first, under the path they were read from. It is meant for authoring and
// publishing; the runtime resolver never calls it.
func Validate(input any) ValidationResult {
	n := &normalizer{}
	s := n.schema(input)

	v := &validator{schema: s, issues: append([]Issue(nil), n.notes...)}
	v.run()

	errs := make([]string, len(v.issues))
	for i, issue := range v.issues {
		errs[i] = issue.String()
	}
	return ValidationResult{
		Valid:  len(v.issues) == 0,
		Errors: errs,
		Issues: v.issues,
		Schema: s,
	}
}

type validator struct {
	schema *Schema
	issues []Issue

	boxes      map[string]*Box
	categories map[string]bool
	tiers      map[string]bool
	groups     map[string]bool
}

func (v *validator) add(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) run() {
	s := v.schema
	v.boxes = s.BoxByID()
	v.categories = make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		v.categories[c.ID] = true
	}
	v.tiers = make(map[string]bool, len(s.PowerTiers))
	for _, t := range s.PowerTiers {
		v.tiers[t.ID] = true
	}
	v.groups = make(map[string]bool, len(s.SpellGroups))
	for _, g := range s.SpellGroups {
		v.groups[g.ID] = true
	}

	v.checkUnique("categories", len(s.Categories), func(i int) string { return s.Categories[i].ID })
	v.checkUnique("boxes", len(s.Boxes), func(i int) string { return s.Boxes[i].ID })
	v.checkUnique("relations", len(s.Relations), func(i int) string { return s.Relations[i].ID })
	v.checkUnique("rules", len(s.Rules), func(i int) string { return s.Rules[i].ID })
	v.checkUnique("powerTiers", len(s.PowerTiers), func(i int) string { return s.PowerTiers[i].ID })
	v.checkUnique("spellGroups", len(s.SpellGroups), func(i int) string { return s.SpellGroups[i].ID })
	v.checkUnique("spells", len(s.Spells), func(i int) string { return s.Spells[i].ID })

	v.validateBoxes()
	v.validateRelations()
	v.validateRules()
	for i, p := range s.XPProgression {
		v.validateProgression(i, p)
		if p.CategoryID != "" && !v.categories[p.CategoryID] {
			v.add(fmt.Sprintf("xpProgression[%d].categoryId", i), "unknown category '%s'", p.CategoryID)
		}
	}
	v.checkUnique("xpProgression", len(s.XPProgression), func(i int) string {
		if s.XPProgression[i].CategoryID == "" {
			return "(global)"
		}
		return s.XPProgression[i].CategoryID
	})
	v.validateSpells()
}

func (v *validator) checkUnique(collection string, n int, id func(int) string) {
	seen := make(map[string]int, n)
	for i := 0; i < n; i++ {
		key := id(i)
		if first, dup := seen[key]; dup {
			v.add(fmt.Sprintf("%s[%d].id", collection, i), "duplicate id '%s' (first used at %s[%d])", key, collection, first)
			continue
		}
		seen[key] = i
	}
}

// === Boxes ===

func (v *validator) validateBoxes() {
	pools := 0
	for i, b := range v.schema.Boxes {
		path := fmt.Sprintf("boxes[%d]", i)

		if !member(b.Type, boxTypes) {
			v.add(path+".type", "invalid box type '%s'", b.Type)
		}
		if !member(b.Layout.Width, widths) {
			v.add(path+".layout.width", "invalid width '%s'", b.Layout.Width)
		}
		if !member(b.Layout.Height, heights) {
			v.add(path+".layout.height", "invalid height '%s'", b.Layout.Height)
		}

		if b.ParentID != nil {
			parent, ok := v.boxes[*b.ParentID]
			switch {
			case !ok:
				v.add(path+".parentId", "unknown box '%s'%s", *b.ParentID, v.suggestBox(*b.ParentID))
			case parent.ID == b.ID:
				v.add(path+".parentId", "box cannot be its own parent")
			case parent.Type == BoxField:
				v.add(path+".parentId", "parent '%s' is a field, not a group", parent.ID)
			}
		}
		if b.CategoryID != nil && !v.categories[*b.CategoryID] {
			v.add(path+".categoryId", "unknown category '%s'", *b.CategoryID)
		}

		if !b.IsField() {
			continue
		}
		v.validateField(path, b)
		if b.IsXPPool {
			pools++
			if pools > 1 {
				v.add(path+".isXpPool", "only one field may be the XP pool")
			}
		}
	}
	v.checkParentCycles()
}

func (v *validator) validateField(path string, b *Box) {
	if !member(b.FieldType, fieldTypes) {
		v.add(path+".fieldType", "invalid field type '%s'", b.FieldType)
	}
	if !member(b.EditableBy, roles) {
		v.add(path+".editableBy", "invalid editableBy '%s'", b.EditableBy)
	}

	if b.FieldType == FieldComputed {
		if b.Formula == nil {
			v.add(path+".formula", "computed field requires a formula")
		}
		v.checkExpr(path+".formula", b.Formula)
	}

	if b.IsXPPool && b.XPUpgradable {
		v.add(path, "a field cannot be both the XP pool and XP-upgradable")
	}
	if b.IsXPPool && b.FieldType != FieldNumber {
		v.add(path+".isXpPool", "the XP pool must be a number field")
	}
	if b.XPUpgradable && b.FieldType != FieldNumber {
		v.add(path+".xpUpgradable", "only number fields can be XP-upgradable")
	}

	if b.BonusFieldID != nil {
		bonus, ok := v.boxes[*b.BonusFieldID]
		switch {
		case b.FieldType != FieldNumber:
			v.add(path+".bonusFieldId", "bonus fields are only supported on number fields")
		case !ok:
			v.add(path+".bonusFieldId", "unknown box '%s'%s", *b.BonusFieldID, v.suggestBox(*b.BonusFieldID))
		case bonus.ID == b.ID:
			v.add(path+".bonusFieldId", "field cannot be its own bonus")
		case !bonus.IsNumeric():
			v.add(path+".bonusFieldId", "bonus field '%s' must be a number or computed field", bonus.ID)
		}
	}
}

// checkParentCycles reports boxes whose parent chain loops back on itself.
func (v *validator) checkParentCycles() {
	for i, b := range v.schema.Boxes {
		seen := map[string]bool{b.ID: true}
		for cur := b; cur.ParentID != nil; {
			next, ok := v.boxes[*cur.ParentID]
			if !ok || next.ID == cur.ID {
				break
			}
			if seen[next.ID] {
				v.add(fmt.Sprintf("boxes[%d].parentId", i), "parent chain of '%s' forms a cycle", b.ID)
				break
			}
			seen[next.ID] = true
			cur = next
		}
	}
}

// === Relations and rules ===

func (v *validator) validateRelations() {
	for i, r := range v.schema.Relations {
		path := fmt.Sprintf("relations[%d]", i)
		if !member(r.Type, relationTypes) {
			v.add(path+".type", "invalid relation type '%s'", r.Type)
		}
		v.checkBoxRef(path+".sourceBoxId", r.SourceBoxID)
		target := v.checkBoxRef(path+".targetBoxId", r.TargetBoxID)
		if r.Type == RelationModifies && target != nil && !target.IsNumeric() {
			v.add(path+".targetBoxId", "modifies relation target '%s' must be a number or computed field", target.ID)
		}
		v.checkExpr(path+".valueExpr", r.ValueExpr)
	}
}

func (v *validator) validateRules() {
	for i, r := range v.schema.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		if r.Condition == nil {
			v.add(path+".condition", "rule requires a condition")
		}
		v.checkExpr(path+".condition", r.Condition)

		v.checkUnique(path+".effects", len(r.Effects), func(j int) string { return r.Effects[j].ID })
		for j, e := range r.Effects {
			epath := fmt.Sprintf("%s.effects[%d]", path, j)
			if !member(e.Type, effectTypes) {
				v.add(epath+".type", "invalid effect type '%s'", e.Type)
			}
			target := v.checkBoxRef(epath+".targetBoxId", e.TargetBoxID)

			switch e.Type {
			case EffectSet, EffectAdd, EffectMultiply:
				if e.Value == nil {
					v.add(epath+".value", "%s effect requires a value", e.Type)
				}
				v.checkExpr(epath+".value", e.Value)
				if target == nil {
					continue
				}
				if !target.IsField() {
					v.add(epath+".targetBoxId", "%s effect target '%s' must be a field", e.Type, target.ID)
				} else if e.Type != EffectSet && !target.IsNumeric() {
					v.add(epath+".targetBoxId", "%s effect target '%s' must be a number or computed field", e.Type, target.ID)
				}
			}
		}
	}
}

// checkBoxRef reports a missing or dangling box id and returns the box.
func (v *validator) checkBoxRef(path, id string) *Box {
	if id == "" {
		v.add(path, "box reference is required")
		return nil
	}
	b, ok := v.boxes[id]
	if !ok {
		v.add(path, "unknown box '%s'%s", id, v.suggestBox(id))
		return nil
	}
	return b
}

// checkExpr reports malformed nodes and field references to unknown boxes.
func (v *validator) checkExpr(path string, n expr.Node) {
	if n == nil {
		return
	}
	for _, problem := range expr.Problems(n) {
		v.add(path, "%s", problem)
	}
	for _, ref := range expr.Refs(n) {
		if _, ok := v.boxes[ref]; !ok {
			v.add(path, "reference to unknown field '%s'%s", ref, v.suggestBox(ref))
		}
	}
}

// === Spells and powers ===

func (v *validator) validateSpells() {
	s := v.schema
	for i, g := range s.SpellGroups {
		for _, opp := range g.OpposingGroupIDs {
			path := fmt.Sprintf("spellGroups[%d].opposingGroupIds", i)
			if opp == g.ID {
				v.add(path, "group cannot oppose itself")
			} else if !v.groups[opp] {
				v.add(path, "unknown spell group '%s'", opp)
			}
		}
	}

	levelsByGroup := make(map[string][]int)
	for i, sp := range s.Spells {
		path := fmt.Sprintf("spells[%d]", i)
		if sp.GroupID == "" {
			v.add(path+".groupId", "spell requires a group")
		} else if !v.groups[sp.GroupID] {
			v.add(path+".groupId", "unknown spell group '%s'", sp.GroupID)
		}
		switch {
		case sp.TierID != "" && !v.tiers[sp.TierID]:
			v.add(path+".tierId", "unknown power tier '%s'", sp.TierID)
		case sp.TierID == "" && s.PowerConfig.UseTiers && len(s.PowerTiers) > 0:
			v.add(path+".tierId", "spell requires a tier when tiers are enabled")
		}
		if sp.Level < 1 {
			v.add(path+".level", "spell level must be at least 1")
		} else if sp.GroupID != "" {
			levelsByGroup[sp.GroupID] = append(levelsByGroup[sp.GroupID], sp.Level)
		}

		for j, e := range sp.Effects {
			v.validateSpellEffect(fmt.Sprintf("%s.effects[%d]", path, j), e)
		}
	}

	groupIDs := make([]string, 0, len(levelsByGroup))
	for id := range levelsByGroup {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)
	for _, id := range groupIDs {
		levels := levelsByGroup[id]
		sort.Ints(levels)
		expect := 1
		for _, l := range levels {
			if l == expect-1 {
				continue
			}
			if l != expect {
				v.add("spells", "spell levels in group '%s' must be contiguous from 1 (missing level %d)", id, expect)
				break
			}
			expect++
		}
	}
}

func (v *validator) validateSpellEffect(path string, e *SpellEffect) {
	if !member(e.Type, spellEffects) {
		v.add(path+".type", "invalid spell effect type '%s'", e.Type)
	}
	switch e.TargetMode {
	case TargetSingle:
		if len(e.TargetFieldIDs) != 1 {
			v.add(path+".targetFieldIds", "target mode 'single' needs exactly one target, got %d", len(e.TargetFieldIDs))
		}
	case TargetAnd, TargetOr:
		if len(e.TargetFieldIDs) < 2 {
			v.add(path+".targetFieldIds", "target mode '%s' needs at least two targets, got %d", e.TargetMode, len(e.TargetFieldIDs))
		}
	default:
		v.add(path+".targetMode", "invalid target mode '%s'", e.TargetMode)
	}
	for _, id := range e.TargetFieldIDs {
		b, ok := v.boxes[id]
		if !ok {
			v.add(path+".targetFieldIds", "unknown field '%s'%s", id, v.suggestBox(id))
			continue
		}
		if !b.IsNumeric() {
			v.add(path+".targetFieldIds", "spell target '%s' must be a number or computed field", id)
		}
	}
	v.checkExpr(path+".value", e.Value)
}

// === Helpers ===

func member[T comparable](value T, allowed []T) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// suggestBox returns a " (did you mean 'x'?)" hint for a dangling id, or "".
func (v *validator) suggestBox(id string) string {
	best, bestDist := "", -1
	for _, b := range v.schema.Boxes {
		d := levenshtein.ComputeDistance(id, b.ID)
		if d > levenshteinLimit(len(b.ID)) {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && b.ID < best) {
			best, bestDist = b.ID, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean '%s'?)", best)
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
