// Package runtime resolves a character sheet: given a normalized ruleset
// schema, the persisted field values and the acting role, it computes final
// values, computed-field outputs, enablement and bonus totals.
//
// Resolution is a single ordered pass with no fixed-point iteration and no
// cycle detection. A computed field that reads a computed field declared
// later in the schema sees that field's value from before this pass.
package runtime

import (
	"fmt"

	"github.com/dlovans/charsheet/pkg/expr"
	"github.com/dlovans/charsheet/pkg/ruleset"
)

// Result is the output of Resolve.
type Result struct {
	Values         map[string]any     `json:"values"`
	RawValues      map[string]any     `json:"rawValues"`
	ComputedValues map[string]any     `json:"computedValues"`
	DerivedTotals  map[string]float64 `json:"derivedTotals"`
	XPPoolFieldID  string             `json:"xpPoolFieldId,omitempty"`
	Enabled        map[string]bool    `json:"enabled"`
	Errors         []string           `json:"errors"`
}

// resolution is the mutable state threaded through one Resolve call.
// Relations and rules mutate values and enabled in place, so later steps
// observe earlier ones.
type resolution struct {
	schema *ruleset.Schema
	boxes  map[string]*ruleset.Box
	role   ruleset.Role

	values   map[string]any
	raw      map[string]any
	computed map[string]any
	enabled  map[string]bool
	totals   map[string]float64
	poolID   string
	errors   []string
}

// Resolve computes a sheet. It is a pure function of its inputs: input is
// not modified and identical inputs give identical results. A nil schema
// resolves as the empty schema.
func Resolve(schema *ruleset.Schema, input map[string]any, role ruleset.Role) *Result {
	if schema == nil {
		schema = ruleset.EmptySchema()
	}
	r := &resolution{
		schema:   schema,
		boxes:    schema.BoxByID(),
		role:     role,
		values:   make(map[string]any),
		raw:      make(map[string]any),
		computed: make(map[string]any),
		enabled:  make(map[string]bool, len(schema.Boxes)),
		totals:   make(map[string]float64),
		errors:   make([]string, 0),
	}

	r.initEnabled()
	r.initDefaults()
	r.applyInput(input)
	r.computePass()
	r.applyRelations()
	r.applyRules()
	r.computePass()
	r.deriveTotals()

	return &Result{
		Values:         r.values,
		RawValues:      r.raw,
		ComputedValues: r.computed,
		DerivedTotals:  r.totals,
		XPPoolFieldID:  r.poolID,
		Enabled:        r.enabled,
		Errors:         r.errors,
	}
}

// 1. Every box starts enabled.
func (r *resolution) initEnabled() {
	for _, b := range r.schema.Boxes {
		r.enabled[b.ID] = true
	}
}

// 2. Every field starts at its coerced default; the first XP pool wins.
func (r *resolution) initDefaults() {
	for _, b := range r.schema.Boxes {
		if !b.IsField() {
			continue
		}
		v, ok := ruleset.CoerceValue(b, b.DefaultValue)
		if !ok {
			v = ruleset.ZeroValue(b.FieldType)
		}
		r.values[b.ID] = v
		r.raw[b.ID] = v
		if b.IsXPPool && r.poolID == "" {
			r.poolID = b.ID
		}
	}
}

// 3. Caller input overwrites non-computed fields the role may edit.
// Input is applied in schema order so errors come out deterministically.
func (r *resolution) applyInput(input map[string]any) {
	if len(input) == 0 {
		return
	}
	for _, b := range r.schema.Boxes {
		v, present := input[b.ID]
		if !present || !b.IsField() || b.FieldType == ruleset.FieldComputed {
			continue
		}
		if b.EditableBy == ruleset.RoleDM && r.role != ruleset.RoleDM {
			continue
		}
		coerced, ok := ruleset.CoerceValue(b, v)
		if !ok {
			r.addError("%s: invalid %s value %v", b.ID, b.FieldType, v)
			continue
		}
		r.values[b.ID] = coerced
		r.raw[b.ID] = coerced
	}
}

// 4 and 7. Computed fields are evaluated in declaration order against the
// live values.
func (r *resolution) computePass() {
	for _, b := range r.schema.Boxes {
		if !b.IsField() || b.FieldType != ruleset.FieldComputed {
			continue
		}
		v, _ := ruleset.CoerceValue(b, r.eval(b.Formula))
		r.values[b.ID] = v
		r.computed[b.ID] = v
	}
}

// 5. Relations are applied in array order.
func (r *resolution) applyRelations() {
	for _, rel := range r.schema.Relations {
		switch rel.Type {
		case ruleset.RelationRequires:
			if _, ok := r.boxes[rel.TargetBoxID]; ok {
				r.enabled[rel.TargetBoxID] = r.enabled[rel.TargetBoxID] && expr.Truthy(r.values[rel.SourceBoxID])
			}

		case ruleset.RelationExcludes:
			if _, ok := r.boxes[rel.TargetBoxID]; ok && expr.Truthy(r.values[rel.SourceBoxID]) {
				r.enabled[rel.TargetBoxID] = false
			}

		case ruleset.RelationGrants:
			if _, ok := r.boxes[rel.TargetBoxID]; ok && expr.Truthy(r.values[rel.SourceBoxID]) {
				r.enabled[rel.TargetBoxID] = true
			}

		case ruleset.RelationModifies:
			target, ok := r.boxes[rel.TargetBoxID]
			if !ok || !target.IsNumeric() {
				continue
			}
			amount := rel.Modifier
			if rel.ValueExpr != nil {
				if v := r.eval(rel.ValueExpr); v != nil {
					amount = expr.ToNumber(v)
				}
			}
			r.values[target.ID] = expr.ToNumber(r.values[target.ID]) + amount
		}
	}
}

// 6. Rules are applied in array order with no snapshot between them.
func (r *resolution) applyRules() {
	for _, rule := range r.schema.Rules {
		if !expr.Truthy(r.eval(rule.Condition)) {
			continue
		}
		for _, effect := range rule.Effects {
			r.applyEffect(rule, effect)
		}
	}
}

func (r *resolution) applyEffect(rule *ruleset.Rule, effect *ruleset.Effect) {
	target, ok := r.boxes[effect.TargetBoxID]
	if !ok {
		return
	}

	switch effect.Type {
	case ruleset.EffectEnable:
		r.enabled[target.ID] = true

	case ruleset.EffectDisable:
		r.enabled[target.ID] = false

	case ruleset.EffectSet:
		if !target.IsField() {
			return
		}
		v := r.eval(effect.Value)
		coerced, ok := ruleset.CoerceValue(target, v)
		if !ok {
			r.addError("rule %s: cannot set %s to %v", rule.ID, target.ID, v)
			return
		}
		r.values[target.ID] = coerced

	case ruleset.EffectAdd:
		if !target.IsNumeric() {
			return
		}
		r.values[target.ID] = expr.ToNumber(r.values[target.ID]) + expr.ToNumber(r.eval(effect.Value))

	case ruleset.EffectMultiply:
		if !target.IsNumeric() {
			return
		}
		r.values[target.ID] = expr.ToNumber(r.values[target.ID]) * expr.ToNumber(r.eval(effect.Value))
	}
}

// 8. Number fields with a bonus field get value + bonus.
func (r *resolution) deriveTotals() {
	for _, b := range r.schema.Boxes {
		if !b.IsField() || b.FieldType != ruleset.FieldNumber || b.BonusFieldID == nil {
			continue
		}
		bonus, ok := r.boxes[*b.BonusFieldID]
		if !ok || !bonus.IsField() || bonus.ID == b.ID {
			continue
		}
		r.totals[b.ID] = expr.ToNumber(r.values[b.ID]) + expr.ToNumber(r.values[bonus.ID])
	}
}

func (r *resolution) eval(n expr.Node) any {
	return expr.Eval(n, expr.Context{Values: r.values})
}

func (r *resolution) addError(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}
