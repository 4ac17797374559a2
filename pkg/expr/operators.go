package expr

import (
	"math"
	"strings"
)

// === Logical Operators ===

// opLogical returns whether all (and) or any (or) evaluated args are truthy.
func (e evaluator) opLogical(n Logical, depth int) any {
	vals := e.evalArgs(n.Args, depth)
	switch n.Op {
	case OpAnd:
		for _, v := range vals {
			if !Truthy(v) {
				return false
			}
		}
		return true
	case OpOr:
		for _, v := range vals {
			if Truthy(v) {
				return true
			}
		}
		return false
	}
	return nil
}

// === Comparison Operators ===

func (e evaluator) opCompare(n Compare, depth int) any {
	a := e.eval(n.Left, depth+1)
	b := e.eval(n.Right, depth+1)

	switch n.Op {
	case OpEq:
		return Equal(a, b)
	case OpNeq:
		return !Equal(a, b)
	}

	x, y := ToNumber(a), ToNumber(b)
	switch n.Op {
	case OpGt:
		return x > y
	case OpGte:
		return x >= y
	case OpLt:
		return x < y
	case OpLte:
		return x <= y
	}
	return nil
}

// opIn checks if needle is in haystack. A string haystack is read as a
// comma-separated list of trimmed items.
func opIn(needle, haystack any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if Equal(needle, item) {
				return true
			}
		}
		return false

	case string:
		want := strings.TrimSpace(ToString(needle))
		for _, item := range strings.Split(h, ",") {
			if strings.TrimSpace(item) == want {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// === Arithmetic Operators ===

// opArithmetic folds numeric args left to right. div skips zero divisors.
// No args, or a non-finite result, yields nil.
func (e evaluator) opArithmetic(n Arithmetic, depth int) any {
	vals := e.evalArgs(n.Args, depth)
	if len(vals) == 0 {
		return nil
	}

	acc := ToNumber(vals[0])
	for _, v := range vals[1:] {
		x := ToNumber(v)
		switch n.Op {
		case OpAdd:
			acc += x
		case OpSub:
			acc -= x
		case OpMul:
			acc *= x
		case OpDiv:
			if x == 0 {
				continue
			}
			acc /= x
		case OpMin:
			acc = math.Min(acc, x)
		case OpMax:
			acc = math.Max(acc, x)
		default:
			return nil
		}
	}
	return finite(acc)
}

// opRounding applies round/floor/ceil. round goes half-up, so -2.5 rounds to -2.
func opRounding(op Op, v any) any {
	x := ToNumber(v)
	switch op {
	case OpRound:
		return finite(math.Floor(x + 0.5))
	case OpFloor:
		return finite(math.Floor(x))
	case OpCeil:
		return finite(math.Ceil(x))
	}
	return nil
}

func opClamp(v, lo, hi any) any {
	return finite(math.Min(math.Max(ToNumber(v), ToNumber(lo)), ToNumber(hi)))
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
