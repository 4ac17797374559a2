// Package lint provides static analysis for ruleset schemas.
// It reports authoring hazards that are legal schema but likely mistakes,
// without resolving any sheet.
package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlovans/charsheet/pkg/expr"
	"github.com/dlovans/charsheet/pkg/ruleset"
)

// Issue represents a problem found during static analysis.
type Issue struct {
	Severity string `json:"severity"` // "error", "warning", "info"
	Field    string `json:"field,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
}

// Result contains all issues found by the linter.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Run normalizes input and analyses it. Issues come out in schema order.
func Run(input any) *Result {
	s := ruleset.Normalize(input)
	result := &Result{
		Valid:  true,
		Issues: make([]Issue, 0),
	}

	boxes := s.BoxByID()
	position := make(map[string]int, len(s.Boxes))
	for i, b := range s.Boxes {
		if _, dup := position[b.ID]; !dup {
			position[b.ID] = i
		}
	}

	// Check 1: references inside expressions
	checkRefs := func(field, rule, where string, n expr.Node) {
		for _, ref := range expr.Refs(n) {
			target, ok := boxes[ref]
			switch {
			case !ok:
				result.addError(field, rule, fmt.Sprintf("undefined field '%s' in %s", ref, where))
			case !target.IsField():
				result.addWarning(field, rule, fmt.Sprintf("%s references %s '%s', which has no value", where, target.Type, ref))
			}
		}
	}
	for _, b := range s.Boxes {
		if b.IsField() && b.FieldType == ruleset.FieldComputed {
			checkRefs(b.ID, "", "formula", b.Formula)
		}
	}
	for _, rel := range s.Relations {
		if rel.Type == ruleset.RelationModifies {
			checkRefs(rel.TargetBoxID, rel.ID, "relation value", rel.ValueExpr)
		}
	}
	for _, r := range s.Rules {
		checkRefs("", r.ID, "rule condition", r.Condition)
		for _, e := range r.Effects {
			checkRefs(e.TargetBoxID, r.ID, "effect value", e.Value)
		}
	}

	// Check 2: computed fields reading computed fields declared after them
	for i, b := range s.Boxes {
		if !b.IsField() || b.FieldType != ruleset.FieldComputed {
			continue
		}
		for _, ref := range expr.Refs(b.Formula) {
			target, ok := boxes[ref]
			if !ok || !target.IsField() || target.FieldType != ruleset.FieldComputed {
				continue
			}
			switch {
			case ref == b.ID:
				result.addWarning(b.ID, "", fmt.Sprintf("computed field '%s' references itself and reads its previous value", b.ID))
			case position[ref] > i:
				result.addWarning(b.ID, "", fmt.Sprintf(
					"computed field '%s' reads '%s', which is declared later; it will see a stale value", b.ID, ref))
			}
		}
	}

	// Check 3: fields written from several places
	writers := make(map[string][]string)
	for _, rel := range s.Relations {
		if rel.Type == ruleset.RelationModifies {
			writers[rel.TargetBoxID] = append(writers[rel.TargetBoxID], "relation "+rel.ID)
		}
	}
	for _, r := range s.Rules {
		for _, e := range r.Effects {
			switch e.Type {
			case ruleset.EffectSet, ruleset.EffectAdd, ruleset.EffectMultiply:
				writers[e.TargetBoxID] = append(writers[e.TargetBoxID], "rule "+r.ID)
			}
		}
	}
	targets := make([]string, 0, len(writers))
	for id, from := range writers {
		if len(dedupe(from)) > 1 {
			targets = append(targets, id)
		}
	}
	sort.Strings(targets)
	for _, id := range targets {
		result.addWarning(id, "", fmt.Sprintf(
			"field '%s' is written by %s; the result depends on their order", id, strings.Join(dedupe(writers[id]), ", ")))
	}

	// Check 4: field configuration
	for _, b := range s.Boxes {
		if !b.IsField() {
			continue
		}
		if (b.FieldType == ruleset.FieldSingleSelect || b.FieldType == ruleset.FieldMultiSelect) && len(b.Options) == 0 {
			result.addInfo(b.ID, fmt.Sprintf("select field '%s' has no options and accepts any value", b.ID))
		}
		if b.Hidden && b.EditableBy == ruleset.RolePlayer {
			result.addWarning(b.ID, "", fmt.Sprintf("hidden field '%s' is editable by players who cannot see it", b.ID))
		}
		if b.XPUpgradable && b.XPCost == 0 {
			result.addWarning(b.ID, "", fmt.Sprintf("XP-upgradable field '%s' costs nothing to upgrade", b.ID))
		}
		if b.XPUpgradable && b.XPMax != nil && expr.ToNumber(b.DefaultValue) >= *b.XPMax {
			result.addWarning(b.ID, "", fmt.Sprintf("XP-upgradable field '%s' starts at or above its maximum of %g", b.ID, *b.XPMax))
		}
	}

	return result
}

func (r *Result) addError(field, rule, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{
		Severity: "error",
		Field:    field,
		Rule:     rule,
		Message:  message,
	})
}

func (r *Result) addWarning(field, rule, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "warning",
		Field:    field,
		Rule:     rule,
		Message:  message,
	})
}

func (r *Result) addInfo(field, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "info",
		Field:    field,
		Message:  message,
	})
}

// dedupe keeps the first occurrence of each string.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
