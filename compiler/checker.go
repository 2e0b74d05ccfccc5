package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Type checker: unification-based inference with optional annotations
// ---------------------------------------------------------------------------

// TypeError reports a type checking failure at a source location.
type TypeError struct {
	SpanVal Span
	Msg     string
}

func (e *TypeError) Error() string {
	if e.SpanVal.Start.Line > 0 {
		return fmt.Sprintf("type error at line %d: %s", e.SpanVal.Start.Line, e.Msg)
	}
	return "type error: " + e.Msg
}

// TypeEnv resolves the types of free identifiers.
type TypeEnv interface {
	TypeOf(name string) (Type, bool)
}

// TypeEnvFunc adapts a function to TypeEnv.
type TypeEnvFunc func(name string) (Type, bool)

// TypeOf implements TypeEnv.
func (f TypeEnvFunc) TypeOf(name string) (Type, bool) { return f(name) }

// Builtins are the primitive functions every program can reference by name.
var Builtins = map[string]Type{
	"length":   Func(IntType, StringType),
	"showInt":  Func(StringType, IntType),
	"toFloat":  Func(FloatType, IntType),
	"truncate": Func(IntType, FloatType),
	"abs":      Func(IntType, IntType),
}

// IsBuiltin reports whether name is a primitive function.
func IsBuiltin(name string) bool {
	_, ok := Builtins[name]
	return ok
}

// constraint kinds applied to operator operands
const (
	constraintNumeric = iota + 1
	constraintOrdered
	constraintEquatable
)

type pendingConstraint struct {
	t    Type
	kind int
	span Span
	op   string
}

type checker struct {
	env         TypeEnv
	subst       map[int]Type
	nextVar     int
	constraints []pendingConstraint
}

type scopeEnv struct {
	name   string
	t      Type
	parent *scopeEnv
}

func (s *scopeEnv) lookup(name string) (Type, bool) {
	for e := s; e != nil; e = e.parent {
		if e.name == name {
			return e.t, true
		}
	}
	return nil, false
}

// Check infers the type of a closed-over expression. Free identifiers are
// resolved through env, then through Builtins.
func Check(expr Expr, env TypeEnv) (Type, error) {
	return CheckDefinition(expr, nil, env)
}

// CheckDefinition infers the type of an expression bound to selfNames. The
// names are visible inside expr so that self-recursive definitions check.
// When declared is non-nil it is unified with the inferred type.
func CheckDefinition(expr Expr, declared Type, env TypeEnv, selfNames ...string) (Type, error) {
	c := &checker{env: env, subst: make(map[int]Type)}
	var scope *scopeEnv
	var self Type
	if len(selfNames) > 0 {
		self = c.fresh()
		for _, name := range selfNames {
			if name != "" {
				scope = &scopeEnv{name: name, t: self, parent: scope}
			}
		}
	}
	t, err := c.infer(expr, scope)
	if err != nil {
		return nil, err
	}
	if self != nil {
		if err := c.unify(self, t, expr.Span()); err != nil {
			return nil, err
		}
	}
	if declared != nil {
		if err := c.unify(declared, t, expr.Span()); err != nil {
			return nil, err
		}
	}
	return c.finalize(t)
}

func (c *checker) fresh() *TypeVar {
	c.nextVar++
	return &TypeVar{ID: c.nextVar}
}

// prune follows substitutions until reaching a non-variable or an unbound
// variable.
func (c *checker) prune(t Type) Type {
	for {
		v, ok := t.(*TypeVar)
		if !ok {
			return t
		}
		next, bound := c.subst[v.ID]
		if !bound {
			return t
		}
		t = next
	}
}

func (c *checker) apply(t Type) Type {
	t = c.prune(t)
	if fn, ok := t.(*FnType); ok {
		params := make([]Type, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = c.apply(p)
		}
		return &FnType{Params: params, Result: c.apply(fn.Result)}
	}
	return t
}

func (c *checker) occurs(id int, t Type) bool {
	t = c.prune(t)
	switch x := t.(type) {
	case *TypeVar:
		return x.ID == id
	case *FnType:
		for _, p := range x.Params {
			if c.occurs(id, p) {
				return true
			}
		}
		return c.occurs(id, x.Result)
	}
	return false
}

func (c *checker) unify(a, b Type, span Span) error {
	a = c.prune(a)
	b = c.prune(b)
	if av, ok := a.(*TypeVar); ok {
		if bv, ok := b.(*TypeVar); ok && av.ID == bv.ID {
			return nil
		}
		if c.occurs(av.ID, b) {
			return &TypeError{SpanVal: span, Msg: fmt.Sprintf("infinite type %s ~ %s", a, c.apply(b))}
		}
		c.subst[av.ID] = b
		return nil
	}
	if _, ok := b.(*TypeVar); ok {
		return c.unify(b, a, span)
	}
	switch x := a.(type) {
	case *BaseType:
		if y, ok := b.(*BaseType); ok && x.Name == y.Name {
			return nil
		}
	case *FnType:
		y, ok := b.(*FnType)
		if !ok {
			break
		}
		if len(x.Params) != len(y.Params) {
			return &TypeError{SpanVal: span, Msg: fmt.Sprintf("arity mismatch: %s vs %s", c.apply(a), c.apply(b))}
		}
		for i := range x.Params {
			if err := c.unify(x.Params[i], y.Params[i], span); err != nil {
				return err
			}
		}
		return c.unify(x.Result, y.Result, span)
	}
	return &TypeError{SpanVal: span, Msg: fmt.Sprintf("cannot unify %s with %s", c.apply(a), c.apply(b))}
}

func (c *checker) infer(expr Expr, scope *scopeEnv) (Type, error) {
	switch e := expr.(type) {
	case *IntLiteral:
		return IntType, nil
	case *FloatLiteral:
		return FloatType, nil
	case *StringLiteral:
		return StringType, nil
	case *BoolLiteral:
		return BoolType, nil

	case *Variable:
		if t, ok := scope.lookup(e.Name); ok {
			return t, nil
		}
		if c.env != nil {
			if t, ok := c.env.TypeOf(e.Name); ok {
				return t, nil
			}
		}
		if t, ok := Builtins[e.Name]; ok {
			return t, nil
		}
		return nil, &TypeError{SpanVal: e.SpanVal, Msg: fmt.Sprintf("undefined name %q", e.Name)}

	case *Lambda:
		params := make([]Type, len(e.Params))
		inner := scope
		for i, p := range e.Params {
			var pt Type
			if p.Type != nil {
				t, err := ResolveTypeExpr(p.Type)
				if err != nil {
					return nil, err
				}
				pt = t
			} else {
				pt = c.fresh()
			}
			params[i] = pt
			inner = &scopeEnv{name: p.Name, t: pt, parent: inner}
		}
		body, err := c.infer(e.Body, inner)
		if err != nil {
			return nil, err
		}
		if e.Result != nil {
			rt, err := ResolveTypeExpr(e.Result)
			if err != nil {
				return nil, err
			}
			if err := c.unify(rt, body, e.Body.Span()); err != nil {
				return nil, err
			}
		}
		return &FnType{Params: params, Result: body}, nil

	case *Apply:
		fn, err := c.infer(e.Func, scope)
		if err != nil {
			return nil, err
		}
		args := make([]Type, len(e.Args))
		for i, a := range e.Args {
			t, err := c.infer(a, scope)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		result := c.fresh()
		if err := c.unify(fn, &FnType{Params: args, Result: result}, e.SpanVal); err != nil {
			return nil, err
		}
		return result, nil

	case *Let:
		vt, err := c.infer(e.Value, scope)
		if err != nil {
			return nil, err
		}
		return c.infer(e.Body, &scopeEnv{name: e.Name, t: vt, parent: scope})

	case *If:
		cond, err := c.infer(e.Cond, scope)
		if err != nil {
			return nil, err
		}
		if err := c.unify(cond, BoolType, e.Cond.Span()); err != nil {
			return nil, err
		}
		then, err := c.infer(e.Then, scope)
		if err != nil {
			return nil, err
		}
		els, err := c.infer(e.Else, scope)
		if err != nil {
			return nil, err
		}
		if err := c.unify(then, els, e.SpanVal); err != nil {
			return nil, err
		}
		return then, nil

	case *UnaryOp:
		t, err := c.infer(e.Operand, scope)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "-":
			c.constrain(t, constraintNumeric, e.SpanVal, e.Op)
			return t, nil
		case "!":
			if err := c.unify(t, BoolType, e.SpanVal); err != nil {
				return nil, err
			}
			return BoolType, nil
		}
		return nil, &TypeError{SpanVal: e.SpanVal, Msg: "unknown operator " + e.Op}

	case *BinaryOp:
		l, err := c.infer(e.Left, scope)
		if err != nil {
			return nil, err
		}
		r, err := c.infer(e.Right, scope)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "+", "-", "*", "/", "%":
			if err := c.unify(l, r, e.SpanVal); err != nil {
				return nil, err
			}
			c.constrain(l, constraintNumeric, e.SpanVal, e.Op)
			return l, nil
		case "<", "<=", ">", ">=":
			if err := c.unify(l, r, e.SpanVal); err != nil {
				return nil, err
			}
			c.constrain(l, constraintOrdered, e.SpanVal, e.Op)
			return BoolType, nil
		case "==", "!=":
			if err := c.unify(l, r, e.SpanVal); err != nil {
				return nil, err
			}
			c.constrain(l, constraintEquatable, e.SpanVal, e.Op)
			return BoolType, nil
		case "&&", "||":
			if err := c.unify(l, BoolType, e.Left.Span()); err != nil {
				return nil, err
			}
			if err := c.unify(r, BoolType, e.Right.Span()); err != nil {
				return nil, err
			}
			return BoolType, nil
		case "++":
			if err := c.unify(l, StringType, e.Left.Span()); err != nil {
				return nil, err
			}
			if err := c.unify(r, StringType, e.Right.Span()); err != nil {
				return nil, err
			}
			return StringType, nil
		}
		return nil, &TypeError{SpanVal: e.SpanVal, Msg: "unknown operator " + e.Op}
	}
	return nil, fmt.Errorf("cannot type %T", expr)
}

func (c *checker) constrain(t Type, kind int, span Span, op string) {
	c.constraints = append(c.constraints, pendingConstraint{t: t, kind: kind, span: span, op: op})
}

// finalize resolves the inferred type, defaults leftover variables to Int,
// and verifies operator constraints.
func (c *checker) finalize(t Type) (Type, error) {
	for _, pc := range c.constraints {
		if v, ok := c.prune(pc.t).(*TypeVar); ok {
			c.subst[v.ID] = IntType
		}
	}
	for _, pc := range c.constraints {
		resolved := c.prune(pc.t)
		base, ok := resolved.(*BaseType)
		valid := false
		if ok {
			switch pc.kind {
			case constraintNumeric:
				valid = base.Name == "Int" || base.Name == "Float"
			case constraintOrdered:
				valid = base.Name == "Int" || base.Name == "Float" || base.Name == "String"
			case constraintEquatable:
				valid = true
			}
		}
		if !valid {
			return nil, &TypeError{SpanVal: pc.span, Msg: fmt.Sprintf("operator %s not defined for %s", pc.op, c.apply(resolved))}
		}
	}
	return c.defaultVars(c.apply(t)), nil
}

func (c *checker) defaultVars(t Type) Type {
	switch x := t.(type) {
	case *TypeVar:
		return IntType
	case *FnType:
		params := make([]Type, len(x.Params))
		for i, p := range x.Params {
			params[i] = c.defaultVars(p)
		}
		return &FnType{Params: params, Result: c.defaultVars(x.Result)}
	}
	return t
}
