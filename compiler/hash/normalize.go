package hash

import (
	"github.com/chazu/vela/compiler"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Walks the compiler's AST and produces the frozen hashing AST with de
// Bruijn indices for bound variables, a self tag for the definition's own
// names, dependency hashes for stored terms and names for everything else.
// ---------------------------------------------------------------------------

// Resolver maps a free identifier to the hash of the stored term it names.
type Resolver func(name string) (Hash, bool)

// scope tracks variables at one binder.
type scope struct {
	vars map[string]uint16 // variable name → slot index
}

// normalizer holds state for the normalization walk.
type normalizer struct {
	scopes  []scope
	self    map[string]bool
	resolve Resolver
	refs    map[string]Hash
}

// NormalizeTerm transforms a definition into a frozen HTerm. selfNames are
// the names under which the definition refers to itself. The returned map
// records every identifier the resolver mapped to a stored term.
func NormalizeTerm(expr compiler.Expr, ty compiler.Type, selfNames []string, resolve Resolver) (*HTerm, map[string]Hash) {
	n := &normalizer{
		self:    make(map[string]bool, len(selfNames)),
		resolve: resolve,
		refs:    make(map[string]Hash),
	}
	for _, name := range selfNames {
		n.self[name] = true
	}
	term := &HTerm{Expr: n.normalizeExpr(expr)}
	if ty != nil {
		term.Type = NormalizeType(ty)
	}
	return term, n.refs
}

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		return &HIntLiteral{Value: e.Value}
	case *compiler.FloatLiteral:
		return &HFloatLiteral{Value: e.Value}
	case *compiler.StringLiteral:
		return &HStringLiteral{Value: e.Value}
	case *compiler.BoolLiteral:
		return &HBoolLiteral{Value: e.Value}

	case *compiler.Variable:
		return n.resolveVariable(e.Name)

	case *compiler.Lambda:
		vars := make(map[string]uint16, len(e.Params))
		for i, p := range e.Params {
			vars[p.Name] = uint16(i)
		}
		n.scopes = append(n.scopes, scope{vars: vars})
		body := n.normalizeExpr(e.Body)
		n.scopes = n.scopes[:len(n.scopes)-1]
		return &HLambda{Arity: len(e.Params), Body: body}

	case *compiler.Apply:
		args := make([]HNode, len(e.Args))
		for i, a := range e.Args {
			args[i] = n.normalizeExpr(a)
		}
		return &HApply{Func: n.normalizeExpr(e.Func), Args: args}

	case *compiler.Let:
		value := n.normalizeExpr(e.Value)
		n.scopes = append(n.scopes, scope{vars: map[string]uint16{e.Name: 0}})
		body := n.normalizeExpr(e.Body)
		n.scopes = n.scopes[:len(n.scopes)-1]
		return &HLet{Value: value, Body: body}

	case *compiler.If:
		return &HIf{
			Cond: n.normalizeExpr(e.Cond),
			Then: n.normalizeExpr(e.Then),
			Else: n.normalizeExpr(e.Else),
		}

	case *compiler.BinaryOp:
		return &HBinary{Op: e.Op, Left: n.normalizeExpr(e.Left), Right: n.normalizeExpr(e.Right)}

	case *compiler.UnaryOp:
		return &HUnary{Op: e.Op, Operand: n.normalizeExpr(e.Operand)}

	default:
		return &HGlobalRef{}
	}
}

// resolveVariable resolves a name, innermost binder first, then the
// definition's own names, then stored terms.
func (n *normalizer) resolveVariable(name string) HNode {
	for depth := len(n.scopes) - 1; depth >= 0; depth-- {
		if slot, ok := n.scopes[depth].vars[name]; ok {
			return &HLocalRef{
				Depth: uint16(len(n.scopes) - 1 - depth),
				Slot:  slot,
			}
		}
	}
	if n.self[name] {
		return &HSelfRef{}
	}
	if n.resolve != nil {
		if h, ok := n.resolve(name); ok {
			n.refs[name] = h
			return &HTermRef{Hash: h}
		}
	}
	return &HGlobalRef{Name: name}
}

// NormalizeType converts a type, renumbering type variables in
// first-occurrence order so that equal shapes hash equally.
func NormalizeType(t compiler.Type) HType {
	vars := make(map[int]uint16)
	var walk func(compiler.Type) HType
	walk = func(t compiler.Type) HType {
		switch ty := t.(type) {
		case *compiler.BaseType:
			return &HBaseType{Name: ty.Name}
		case *compiler.FnType:
			params := make([]HType, len(ty.Params))
			for i, p := range ty.Params {
				params[i] = walk(p)
			}
			return &HFnType{Params: params, Result: walk(ty.Result)}
		case *compiler.TypeVar:
			idx, ok := vars[ty.ID]
			if !ok {
				idx = uint16(len(vars))
				vars[ty.ID] = idx
			}
			return &HTypeVar{Index: idx}
		}
		return &HBaseType{}
	}
	return walk(t)
}
