// Package interp evaluates Vela expressions and links stored terms into
// runnable values.
package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/vela/compiler"
)

// Value is a runtime value.
type Value interface {
	String() string
	value()
}

type (
	Int    int64
	Float  float64
	String string
	Bool   bool
)

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string {
	s := strconv.FormatFloat(float64(v), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
func (v String) String() string { return strconv.Quote(string(v)) }
func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }

func (Int) value()    {}
func (Float) value()  {}
func (String) value() {}
func (Bool) value()   {}

// Closure is a lambda together with its defining environment.
type Closure struct {
	Params []string
	Body   compiler.Expr
	Env    *Environment
}

func (c *Closure) String() string { return fmt.Sprintf("<fn/%d>", len(c.Params)) }
func (*Closure) value()           {}

// Builtin is a primitive function implemented in Go.
type Builtin struct {
	Name  string
	Arity int
	Fn    func(args []Value) (Value, error)
}

func (b *Builtin) String() string { return "<builtin " + b.Name + ">" }
func (*Builtin) value()           {}

// Arity returns the parameter count of a callable value, or -1.
func Arity(v Value) int {
	switch f := v.(type) {
	case *Closure:
		return len(f.Params)
	case *Builtin:
		return f.Arity
	}
	return -1
}

// Conforms reports whether v is a value of type t. Type variables accept
// anything; function types check arity only.
func Conforms(v Value, t compiler.Type) bool {
	switch ty := t.(type) {
	case *compiler.TypeVar:
		return true
	case *compiler.FnType:
		return Arity(v) == len(ty.Params)
	case *compiler.BaseType:
		switch v.(type) {
		case Int:
			return ty.Name == compiler.IntType.Name
		case Float:
			return ty.Name == compiler.FloatType.Name
		case String:
			return ty.Name == compiler.StringType.Name
		case Bool:
			return ty.Name == compiler.BoolType.Name
		}
	}
	return false
}

// Equal compares two first-order values. NaN is not equal to itself.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	}
	return false
}
