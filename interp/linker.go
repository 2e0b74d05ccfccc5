package interp

import (
	"fmt"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.interp")

// TermSource supplies stored term bodies together with the identifier to
// hash bindings pinned when each term was inserted.
type TermSource interface {
	TermBody(h hash.Hash) (compiler.Expr, map[string]hash.Hash, error)
}

type linkState int

const (
	linking linkState = iota + 1
	linked
)

type linkEntry struct {
	state linkState
	value Value
}

// Linker turns stored terms into values. Each term sees its dependencies
// exactly as they were pinned at insertion, so a term's value is a function
// of its hash alone. Free identifiers that are neither pinned nor builtins
// are the term's references to itself.
//
// A Linker memoizes per instance and shares its Evaluator; like the
// Evaluator it is not safe for concurrent use.
type Linker struct {
	src  TermSource
	eval *Evaluator
	memo map[hash.Hash]*linkEntry
}

// NewLinker returns a linker reading from src.
func NewLinker(src TermSource, limits Limits) *Linker {
	return &Linker{
		src:  src,
		eval: NewEvaluator(limits),
		memo: make(map[hash.Hash]*linkEntry),
	}
}

// Evaluator returns the evaluator used for linking and calls.
func (l *Linker) Evaluator() *Evaluator { return l.eval }

// Value returns the value of the term with hash h.
func (l *Linker) Value(h hash.Hash) (Value, error) {
	if e, ok := l.memo[h]; ok {
		if e.state == linking {
			return nil, &RuntimeError{Msg: fmt.Sprintf("value %s depends on itself", h.Short())}
		}
		return e.value, nil
	}

	expr, refs, err := l.src.TermBody(h)
	if err != nil {
		return nil, err
	}
	entry := &linkEntry{state: linking}
	l.memo[h] = entry

	env := l.environment(h, expr, refs)
	v, err := l.eval.Eval(expr, env)
	if err != nil {
		delete(l.memo, h)
		return nil, err
	}
	entry.state, entry.value = linked, v
	log.Debugf("linked %s in %d steps", h.Short(), l.eval.Steps())
	return v, nil
}

// Call links the term with hash h and applies it to args.
func (l *Linker) Call(h hash.Hash, args []Value) (Value, error) {
	fn, err := l.Value(h)
	if err != nil {
		return nil, err
	}
	return l.eval.Apply(fn, args)
}

func (l *Linker) environment(self hash.Hash, expr compiler.Expr, refs map[string]hash.Hash) *Environment {
	var env *Environment
	for _, name := range compiler.FreeVariables(expr) {
		target, pinned := refs[name]
		switch {
		case pinned:
		case compiler.IsBuiltin(name):
			continue
		default:
			target = self
		}
		env = env.ExtendLazy(name, func() (Value, error) {
			return l.Value(target)
		})
	}
	return env
}
