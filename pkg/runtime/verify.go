package runtime

import (
	"sort"

	"github.com/dlovans/charsheet/pkg/expr"
	"github.com/dlovans/charsheet/pkg/ruleset"
)

// Mismatch is a claimed value that differs from what Resolve produces.
type Mismatch struct {
	FieldID  string `json:"fieldId"`
	Claimed  any    `json:"claimed"`
	Resolved any    `json:"resolved"`
}

// Verify re-resolves input and checks that every value in claimed matches
// the resolved value. Claimed values are coerced to their field's type
// first, so "3" matches a resolved 3. It is used to audit a sheet computed
// elsewhere (for example by a client running the wasm build).
func Verify(schema *ruleset.Schema, input map[string]any, role ruleset.Role, claimed map[string]any) (bool, []Mismatch) {
	result := Resolve(schema, input, role)
	if schema == nil {
		schema = ruleset.EmptySchema()
	}
	boxes := schema.BoxByID()

	ids := make([]string, 0, len(claimed))
	for id := range claimed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var mismatches []Mismatch
	for _, id := range ids {
		resolved, ok := result.Values[id]
		if ok {
			var claim any
			claim, ok = ruleset.CoerceValue(boxes[id], claimed[id])
			ok = ok && expr.Equal(claim, resolved)
		}
		if !ok {
			mismatches = append(mismatches, Mismatch{FieldID: id, Claimed: claimed[id], Resolved: resolved})
		}
	}
	return len(mismatches) == 0, mismatches
}

// Redact returns a copy of result without hidden fields when role is not
// the DM. Enablement is kept for every box so layouts stay stable.
func Redact(schema *ruleset.Schema, result *Result, role ruleset.Role) *Result {
	if role == ruleset.RoleDM || schema == nil || result == nil {
		return result
	}
	hidden := make(map[string]bool)
	for _, b := range schema.Boxes {
		if b.IsField() && b.Hidden {
			hidden[b.ID] = true
		}
	}

	out := &Result{
		Values:         filterAny(result.Values, hidden),
		RawValues:      filterAny(result.RawValues, hidden),
		ComputedValues: filterAny(result.ComputedValues, hidden),
		DerivedTotals:  make(map[string]float64, len(result.DerivedTotals)),
		XPPoolFieldID:  result.XPPoolFieldID,
		Enabled:        result.Enabled,
		Errors:         result.Errors,
	}
	for id, v := range result.DerivedTotals {
		if !hidden[id] {
			out.DerivedTotals[id] = v
		}
	}
	return out
}

func filterAny(in map[string]any, drop map[string]bool) map[string]any {
	out := make(map[string]any, len(in))
	for id, v := range in {
		if !drop[id] {
			out[id] = v
		}
	}
	return out
}
