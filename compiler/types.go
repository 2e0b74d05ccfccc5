package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type is a Vela type: a base type, a function type, or a type variable
// (only present during inference).
type Type interface {
	String() string
	typ() // marker method
}

// BaseType is one of the built-in scalar types.
type BaseType struct {
	Name string
}

// FnType is the type of a function of fixed arity.
type FnType struct {
	Params []Type
	Result Type
}

// TypeVar is an inference variable.
type TypeVar struct {
	ID int
}

func (*BaseType) typ() {}
func (*FnType) typ()   {}
func (*TypeVar) typ()  {}

func (t *BaseType) String() string { return t.Name }

func (t *FnType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + t.Result.String()
}

func (t *TypeVar) String() string { return fmt.Sprintf("t%d", t.ID) }

// Built-in base types.
var (
	IntType    = &BaseType{Name: "Int"}
	FloatType  = &BaseType{Name: "Float"}
	BoolType   = &BaseType{Name: "Bool"}
	StringType = &BaseType{Name: "String"}
)

var baseTypes = map[string]*BaseType{
	"Int":    IntType,
	"Float":  FloatType,
	"Bool":   BoolType,
	"String": StringType,
}

// LookupBaseType returns the built-in type with the given name.
func LookupBaseType(name string) (*BaseType, bool) {
	t, ok := baseTypes[name]
	return t, ok
}

// Func is a convenience constructor for function types.
func Func(result Type, params ...Type) *FnType {
	return &FnType{Params: params, Result: result}
}

// TypesEqual reports structural equality. Type variables compare by ID.
func TypesEqual(a, b Type) bool {
	switch x := a.(type) {
	case *BaseType:
		y, ok := b.(*BaseType)
		return ok && x.Name == y.Name
	case *FnType:
		y, ok := b.(*FnType)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}
		for i := range x.Params {
			if !TypesEqual(x.Params[i], y.Params[i]) {
				return false
			}
		}
		return TypesEqual(x.Result, y.Result)
	case *TypeVar:
		y, ok := b.(*TypeVar)
		return ok && x.ID == y.ID
	case nil:
		return b == nil
	}
	return false
}

// IsFunction reports whether t is a function type.
func IsFunction(t Type) bool {
	_, ok := t.(*FnType)
	return ok
}

// ResolveTypeExpr converts a source annotation into a Type.
func ResolveTypeExpr(te TypeExpr) (Type, error) {
	switch n := te.(type) {
	case *NamedType:
		if t, ok := baseTypes[n.Name]; ok {
			return t, nil
		}
		return nil, &TypeError{SpanVal: n.SpanVal, Msg: fmt.Sprintf("unknown type %q", n.Name)}
	case *FuncType:
		params := make([]Type, len(n.Params))
		for i, p := range n.Params {
			t, err := ResolveTypeExpr(p)
			if err != nil {
				return nil, err
			}
			params[i] = t
		}
		result, err := ResolveTypeExpr(n.Result)
		if err != nil {
			return nil, err
		}
		return &FnType{Params: params, Result: result}, nil
	}
	return nil, fmt.Errorf("unsupported type annotation %T", te)
}

// ParseType parses a standalone type signature such as "(Int, Int) -> Int".
func ParseType(source string) (Type, error) {
	p := NewParser(source)
	te := p.parseType()
	if len(p.errors) == 0 && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after type", p.describe(p.curToken))
	}
	if len(p.errors) > 0 {
		return nil, &SyntaxError{Errors: p.errors}
	}
	return ResolveTypeExpr(te)
}
