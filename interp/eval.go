package interp

import (
	"fmt"
	"math"

	"github.com/chazu/vela/compiler"
)

// Default evaluation limits.
const (
	DefaultMaxDepth = 10_000
	DefaultMaxSteps = 50_000_000
)

// RuntimeError is an evaluation failure.
type RuntimeError struct {
	Span compiler.Span
	Msg  string
}

func (e *RuntimeError) Error() string {
	if e.Span.Start.Line == 0 {
		return "runtime error: " + e.Msg
	}
	return fmt.Sprintf("runtime error at %d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Msg)
}

func runtimeErr(n compiler.Node, format string, args ...any) *RuntimeError {
	e := &RuntimeError{Msg: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Span = n.Span()
	}
	return e
}

// Limits bound a single evaluation so that runaway programs terminate.
type Limits struct {
	MaxDepth int   // nested calls
	MaxSteps int64 // evaluated nodes
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth, MaxSteps: DefaultMaxSteps}
}

// Evaluator walks expressions. It is not safe for concurrent use; each
// goroutine evaluates with its own Evaluator.
type Evaluator struct {
	limits Limits
	depth  int
	steps  int64
}

// NewEvaluator returns an evaluator with the given limits. Zero fields take
// the defaults.
func NewEvaluator(limits Limits) *Evaluator {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = DefaultMaxSteps
	}
	return &Evaluator{limits: limits}
}

// Steps returns the number of nodes evaluated so far.
func (ev *Evaluator) Steps() int64 { return ev.steps }

// Eval evaluates expr in env.
func (ev *Evaluator) Eval(expr compiler.Expr, env *Environment) (Value, error) {
	ev.steps++
	if ev.steps > ev.limits.MaxSteps {
		return nil, runtimeErr(expr, "step budget of %d exhausted", ev.limits.MaxSteps)
	}

	switch n := expr.(type) {
	case *compiler.IntLiteral:
		return Int(n.Value), nil
	case *compiler.FloatLiteral:
		return Float(n.Value), nil
	case *compiler.StringLiteral:
		return String(n.Value), nil
	case *compiler.BoolLiteral:
		return Bool(n.Value), nil

	case *compiler.Variable:
		v, ok, err := env.Lookup(n.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
		if b, ok := builtins[n.Name]; ok {
			return b, nil
		}
		return nil, runtimeErr(n, "unbound identifier %s", n.Name)

	case *compiler.Lambda:
		return &Closure{Params: n.ParamNames(), Body: n.Body, Env: env}, nil

	case *compiler.Apply:
		fn, err := ev.Eval(n.Func, env)
		if err != nil {
			return nil, err
		}
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			if args[i], err = ev.Eval(a, env); err != nil {
				return nil, err
			}
		}
		return ev.apply(n, fn, args)

	case *compiler.Let:
		v, err := ev.Eval(n.Value, env)
		if err != nil {
			return nil, err
		}
		return ev.Eval(n.Body, env.Extend(n.Name, v))

	case *compiler.If:
		c, err := ev.Eval(n.Cond, env)
		if err != nil {
			return nil, err
		}
		b, ok := c.(Bool)
		if !ok {
			return nil, runtimeErr(n.Cond, "condition is %s, not Bool", c)
		}
		if b {
			return ev.Eval(n.Then, env)
		}
		return ev.Eval(n.Else, env)

	case *compiler.BinaryOp:
		return ev.binary(n, env)

	case *compiler.UnaryOp:
		v, err := ev.Eval(n.Operand, env)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "-":
			switch x := v.(type) {
			case Int:
				return -x, nil
			case Float:
				return -x, nil
			}
		case "!":
			if b, ok := v.(Bool); ok {
				return !b, nil
			}
		}
		return nil, runtimeErr(n, "cannot apply %s to %s", n.Op, v)
	}
	return nil, runtimeErr(expr, "cannot evaluate %T", expr)
}

// Apply calls fn with args.
func (ev *Evaluator) Apply(fn Value, args []Value) (Value, error) {
	return ev.apply(nil, fn, args)
}

func (ev *Evaluator) apply(at compiler.Node, fn Value, args []Value) (Value, error) {
	switch f := fn.(type) {
	case *Closure:
		if len(args) != len(f.Params) {
			return nil, runtimeErr(at, "%s called with %d arguments", f, len(args))
		}
		if ev.depth >= ev.limits.MaxDepth {
			return nil, runtimeErr(at, "maximum call depth %d exceeded", ev.limits.MaxDepth)
		}
		env := f.Env
		for i, p := range f.Params {
			env = env.Extend(p, args[i])
		}
		ev.depth++
		v, err := ev.Eval(f.Body, env)
		ev.depth--
		return v, err
	case *Builtin:
		if len(args) != f.Arity {
			return nil, runtimeErr(at, "%s called with %d arguments", f.Name, len(args))
		}
		v, err := f.Fn(args)
		if err != nil {
			if _, ok := err.(*RuntimeError); !ok {
				return nil, runtimeErr(at, "%s: %v", f.Name, err)
			}
		}
		return v, err
	}
	return nil, runtimeErr(at, "%s is not a function", fn)
}

func (ev *Evaluator) binary(n *compiler.BinaryOp, env *Environment) (Value, error) {
	l, err := ev.Eval(n.Left, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "&&", "||":
		lb, ok := l.(Bool)
		if !ok {
			return nil, runtimeErr(n.Left, "%s operand is %s, not Bool", n.Op, l)
		}
		if (n.Op == "&&") != bool(lb) {
			return lb, nil
		}
		r, err := ev.Eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		if _, ok := r.(Bool); !ok {
			return nil, runtimeErr(n.Right, "%s operand is %s, not Bool", n.Op, r)
		}
		return r, nil
	}

	r, err := ev.Eval(n.Right, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return Bool(Equal(l, r)), nil
	case "!=":
		return Bool(!Equal(l, r)), nil
	}

	switch x := l.(type) {
	case Int:
		y, ok := r.(Int)
		if !ok {
			break
		}
		return intOp(n, x, y)
	case Float:
		y, ok := r.(Float)
		if !ok {
			break
		}
		return floatOp(n, x, y)
	case String:
		y, ok := r.(String)
		if !ok {
			break
		}
		switch n.Op {
		case "++":
			return x + y, nil
		case "<":
			return Bool(x < y), nil
		case "<=":
			return Bool(x <= y), nil
		case ">":
			return Bool(x > y), nil
		case ">=":
			return Bool(x >= y), nil
		}
	}
	return nil, runtimeErr(n, "cannot apply %s to %s and %s", n.Op, l, r)
}

func intOp(n *compiler.BinaryOp, x, y Int) (Value, error) {
	switch n.Op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/", "%":
		if y == 0 {
			return nil, runtimeErr(n, "division by zero")
		}
		if n.Op == "/" {
			return x / y, nil
		}
		return x % y, nil
	case "<":
		return Bool(x < y), nil
	case "<=":
		return Bool(x <= y), nil
	case ">":
		return Bool(x > y), nil
	case ">=":
		return Bool(x >= y), nil
	}
	return nil, runtimeErr(n, "cannot apply %s to Int", n.Op)
}

func floatOp(n *compiler.BinaryOp, x, y Float) (Value, error) {
	switch n.Op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		return x / y, nil
	case "%":
		return Float(math.Mod(float64(x), float64(y))), nil
	case "<":
		return Bool(x < y), nil
	case "<=":
		return Bool(x <= y), nil
	case ">":
		return Bool(x > y), nil
	case ">=":
		return Bool(x >= y), nil
	}
	return nil, runtimeErr(n, "cannot apply %s to Float", n.Op)
}
