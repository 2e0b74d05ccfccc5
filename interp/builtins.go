package interp

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/chazu/vela/compiler"
)

// builtins implements compiler.Builtins.
var builtins = map[string]*Builtin{
	"length": {Name: "length", Arity: 1, Fn: func(args []Value) (Value, error) {
		s, ok := args[0].(String)
		if !ok {
			return nil, fmt.Errorf("want String, got %s", args[0])
		}
		return Int(utf8.RuneCountInString(string(s))), nil
	}},
	"showInt": {Name: "showInt", Arity: 1, Fn: func(args []Value) (Value, error) {
		n, ok := args[0].(Int)
		if !ok {
			return nil, fmt.Errorf("want Int, got %s", args[0])
		}
		return String(strconv.FormatInt(int64(n), 10)), nil
	}},
	"toFloat": {Name: "toFloat", Arity: 1, Fn: func(args []Value) (Value, error) {
		n, ok := args[0].(Int)
		if !ok {
			return nil, fmt.Errorf("want Int, got %s", args[0])
		}
		return Float(n), nil
	}},
	"truncate": {Name: "truncate", Arity: 1, Fn: func(args []Value) (Value, error) {
		f, ok := args[0].(Float)
		if !ok {
			return nil, fmt.Errorf("want Float, got %s", args[0])
		}
		if math.IsNaN(float64(f)) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, fmt.Errorf("%s is out of Int range", f)
		}
		return Int(int64(f)), nil
	}},
	"abs": {Name: "abs", Arity: 1, Fn: func(args []Value) (Value, error) {
		n, ok := args[0].(Int)
		if !ok {
			return nil, fmt.Errorf("want Int, got %s", args[0])
		}
		if n < 0 {
			return -n, nil
		}
		return n, nil
	}},
}

// LookupBuiltin returns the primitive named name.
func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

func init() {
	for name := range compiler.Builtins {
		if _, ok := builtins[name]; !ok {
			panic("interp: no implementation for builtin " + name)
		}
	}
}
