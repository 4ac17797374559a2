// Package expr implements the formula language used by character-sheet
// rulesets: a small JSON-encoded AST of literals, field references and
// boolean, comparison, arithmetic and rounding operators.
//
// Parsing and evaluation are total. Malformed input never panics or returns
// an error; it degrades to an Invalid node that evaluates to nil, so one bad
// formula cannot abort the resolution of a whole sheet.
package expr

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MaxDepth bounds both parsing and evaluation recursion.
const MaxDepth = 40

// Op names an operator in the JSON encoding ({"op": "..."}).
type Op string

const (
	OpLiteral Op = "literal"
	OpField   Op = "field"
	OpNot     Op = "not"
	OpAnd     Op = "and"
	OpOr      Op = "or"
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpAdd     Op = "add"
	OpSub     Op = "sub"
	OpMul     Op = "mul"
	OpDiv     Op = "div"
	OpMin     Op = "min"
	OpMax     Op = "max"
	OpRound   Op = "round"
	OpFloor   Op = "floor"
	OpCeil    Op = "ceil"
	OpClamp   Op = "clamp"
)

// Node is one expression node. The set of implementations is closed:
// Literal, FieldRef, Not, Logical, Compare, In, Arithmetic, Rounding,
// Clamp and Invalid.
type Node interface {
	json.Marshaler
	isNode()
}

// Literal returns its value unchanged.
type Literal struct {
	Value any
}

// FieldRef reads values[FieldID] from the evaluation context.
type FieldRef struct {
	FieldID string
}

// Not negates the truthiness of its argument.
type Not struct {
	Arg Node
}

// Logical is an n-ary and/or. Every argument is evaluated.
type Logical struct {
	Op   Op
	Args []Node
}

// Compare is a binary eq/neq/gt/gte/lt/lte.
type Compare struct {
	Op          Op
	Left, Right Node
}

// In tests membership of Needle in a list or comma-separated string.
type In struct {
	Needle, Haystack Node
}

// Arithmetic is an n-ary add/sub/mul/div/min/max.
type Arithmetic struct {
	Op   Op
	Args []Node
}

// Rounding is a unary round/floor/ceil.
type Rounding struct {
	Op  Op
	Arg Node
}

// Clamp bounds Value to [Min, Max].
type Clamp struct {
	Value, Min, Max Node
}

// Invalid keeps the raw input of a node that could not be parsed.
// It always evaluates to nil and encodes back to Raw.
type Invalid struct {
	Raw    any
	Reason string
}

func (Literal) isNode()    {}
func (FieldRef) isNode()   {}
func (Not) isNode()        {}
func (Logical) isNode()    {}
func (Compare) isNode()    {}
func (In) isNode()         {}
func (Arithmetic) isNode() {}
func (Rounding) isNode()   {}
func (Clamp) isNode()      {}
func (Invalid) isNode()    {}

// Parse converts a decoded JSON/YAML value into a Node. A nil input yields
// nil (no expression); anything malformed yields an Invalid node.
func Parse(raw any) Node {
	if raw == nil {
		return nil
	}
	return parse(raw, 0)
}

func parse(raw any, depth int) Node {
	if depth >= MaxDepth {
		return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("expression nested deeper than %d", MaxDepth)}
	}
	m, ok := asMap(raw)
	if !ok {
		return Invalid{Raw: Canonical(raw), Reason: "expression node must be an object"}
	}
	opName, _ := m["op"].(string)
	if opName == "" {
		return Invalid{Raw: Canonical(raw), Reason: "missing operator"}
	}
	op := Op(opName)

	switch op {
	case OpLiteral:
		return Literal{Value: Canonical(m["value"])}

	case OpField:
		id, _ := m["fieldId"].(string)
		if id == "" {
			return Invalid{Raw: Canonical(raw), Reason: "field reference without fieldId"}
		}
		return FieldRef{FieldID: id}
	}

	args, ok := asSlice(m["args"])
	if !ok {
		if _, known := arity[op]; !known {
			return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("invalid operator '%s'", opName)}
		}
		return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("operator '%s' requires args", opName)}
	}
	want, known := arity[op]
	if !known {
		return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("invalid operator '%s'", opName)}
	}
	if want > 0 && len(args) != want {
		return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("operator '%s' expects %d args, got %d", opName, want, len(args))}
	}

	nodes := make([]Node, len(args))
	for i, a := range args {
		nodes[i] = parse(a, depth+1)
	}

	switch op {
	case OpNot:
		return Not{Arg: nodes[0]}
	case OpAnd, OpOr:
		return Logical{Op: op, Args: nodes}
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return Compare{Op: op, Left: nodes[0], Right: nodes[1]}
	case OpIn:
		return In{Needle: nodes[0], Haystack: nodes[1]}
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax:
		return Arithmetic{Op: op, Args: nodes}
	case OpRound, OpFloor, OpCeil:
		return Rounding{Op: op, Arg: nodes[0]}
	case OpClamp:
		return Clamp{Value: nodes[0], Min: nodes[1], Max: nodes[2]}
	}
	return Invalid{Raw: Canonical(raw), Reason: fmt.Sprintf("invalid operator '%s'", opName)}
}

// arity lists the operators that take args; 0 means n-ary.
var arity = map[Op]int{
	OpNot:   1,
	OpAnd:   0,
	OpOr:    0,
	OpEq:    2,
	OpNeq:   2,
	OpGt:    2,
	OpGte:   2,
	OpLt:    2,
	OpLte:   2,
	OpIn:    2,
	OpAdd:   0,
	OpSub:   0,
	OpMul:   0,
	OpDiv:   0,
	OpMin:   0,
	OpMax:   0,
	OpRound: 1,
	OpFloor: 1,
	OpCeil:  1,
	OpClamp: 3,
}

// IsOperator reports whether name is a recognized operator.
func IsOperator(name string) bool {
	op := Op(name)
	if op == OpLiteral || op == OpField {
		return true
	}
	_, ok := arity[op]
	return ok
}

// Encode returns the canonical JSON-shaped form of a node.
func Encode(n Node) any {
	switch v := n.(type) {
	case nil:
		return nil
	case Literal:
		return map[string]any{"op": string(OpLiteral), "value": v.Value}
	case FieldRef:
		return map[string]any{"op": string(OpField), "fieldId": v.FieldID}
	case Not:
		return opArgs(OpNot, v.Arg)
	case Logical:
		return opArgs(v.Op, v.Args...)
	case Compare:
		return opArgs(v.Op, v.Left, v.Right)
	case In:
		return opArgs(OpIn, v.Needle, v.Haystack)
	case Arithmetic:
		return opArgs(v.Op, v.Args...)
	case Rounding:
		return opArgs(v.Op, v.Arg)
	case Clamp:
		return opArgs(OpClamp, v.Value, v.Min, v.Max)
	case Invalid:
		return v.Raw
	}
	return nil
}

func opArgs(op Op, args ...Node) map[string]any {
	encoded := make([]any, len(args))
	for i, a := range args {
		encoded[i] = Encode(a)
	}
	return map[string]any{"op": string(op), "args": encoded}
}

func (n Literal) MarshalJSON() ([]byte, error)    { return json.Marshal(Encode(n)) }
func (n FieldRef) MarshalJSON() ([]byte, error)   { return json.Marshal(Encode(n)) }
func (n Not) MarshalJSON() ([]byte, error)        { return json.Marshal(Encode(n)) }
func (n Logical) MarshalJSON() ([]byte, error)    { return json.Marshal(Encode(n)) }
func (n Compare) MarshalJSON() ([]byte, error)    { return json.Marshal(Encode(n)) }
func (n In) MarshalJSON() ([]byte, error)         { return json.Marshal(Encode(n)) }
func (n Arithmetic) MarshalJSON() ([]byte, error) { return json.Marshal(Encode(n)) }
func (n Rounding) MarshalJSON() ([]byte, error)   { return json.Marshal(Encode(n)) }
func (n Clamp) MarshalJSON() ([]byte, error)      { return json.Marshal(Encode(n)) }
func (n Invalid) MarshalJSON() ([]byte, error)    { return json.Marshal(Encode(n)) }

// Refs returns the distinct field ids referenced by n, sorted.
func Refs(n Node) []string {
	seen := make(map[string]bool)
	Walk(n, func(node Node) {
		if f, ok := node.(FieldRef); ok {
			seen[f.FieldID] = true
		}
	})
	refs := make([]string, 0, len(seen))
	for id := range seen {
		refs = append(refs, id)
	}
	sort.Strings(refs)
	return refs
}

// Problems returns the reasons of every Invalid node inside n, in walk order.
func Problems(n Node) []string {
	var out []string
	Walk(n, func(node Node) {
		if inv, ok := node.(Invalid); ok {
			out = append(out, inv.Reason)
		}
	})
	return out
}

// Walk visits n and all of its descendants depth-first.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, child := range children(n) {
		Walk(child, visit)
	}
}

func children(n Node) []Node {
	switch v := n.(type) {
	case Not:
		return []Node{v.Arg}
	case Logical:
		return v.Args
	case Compare:
		return []Node{v.Left, v.Right}
	case In:
		return []Node{v.Needle, v.Haystack}
	case Arithmetic:
		return v.Args
	case Rounding:
		return []Node{v.Arg}
	case Clamp:
		return []Node{v.Value, v.Min, v.Max}
	}
	return nil
}
