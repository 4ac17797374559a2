package expr

// Context is the data an expression is evaluated against.
type Context struct {
	Values map[string]any
}

// Eval evaluates n against ctx. It never panics: unknown nodes, Invalid
// nodes and recursion past MaxDepth evaluate to nil.
func Eval(n Node, ctx Context) any {
	e := evaluator{values: ctx.Values}
	return e.eval(n, 0)
}

// EvalRaw parses and evaluates a decoded JSON value in one step.
func EvalRaw(raw any, ctx Context) any {
	return Eval(Parse(raw), ctx)
}

type evaluator struct {
	values map[string]any
}

// eval is the recursive core. Every operator case lives in operators.go.
func (e evaluator) eval(n Node, depth int) any {
	if n == nil || depth >= MaxDepth {
		return nil
	}

	switch v := n.(type) {
	case Literal:
		return v.Value
	case FieldRef:
		return e.values[v.FieldID]
	case Not:
		return !Truthy(e.eval(v.Arg, depth+1))
	case Logical:
		return e.opLogical(v, depth)
	case Compare:
		return e.opCompare(v, depth)
	case In:
		return opIn(e.eval(v.Needle, depth+1), e.eval(v.Haystack, depth+1))
	case Arithmetic:
		return e.opArithmetic(v, depth)
	case Rounding:
		return opRounding(v.Op, e.eval(v.Arg, depth+1))
	case Clamp:
		return opClamp(e.eval(v.Value, depth+1), e.eval(v.Min, depth+1), e.eval(v.Max, depth+1))
	case Invalid:
		return nil
	default:
		return nil
	}
}

// evalArgs evaluates every argument; there is no short-circuiting.
func (e evaluator) evalArgs(args []Node, depth int) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = e.eval(a, depth+1)
	}
	return out
}
