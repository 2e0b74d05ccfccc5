package compiler

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// CBOR wire form of the AST and types.
//
// Spans are not persisted. Node kinds are frozen: adding kinds is fine,
// renumbering breaks every stored snapshot and command log.
// ---------------------------------------------------------------------------

const (
	nodeInt    uint8 = 1
	nodeFloat  uint8 = 2
	nodeString uint8 = 3
	nodeBool   uint8 = 4
	nodeVar    uint8 = 5
	nodeLambda uint8 = 6
	nodeApply  uint8 = 7
	nodeLet    uint8 = 8
	nodeIf     uint8 = 9
	nodeBinary uint8 = 10
	nodeUnary  uint8 = 11
)

const (
	typeBase uint8 = 1
	typeFn   uint8 = 2
	typeVar  uint8 = 3
)

// ErrMalformedNode is returned when a wire node cannot be decoded.
var ErrMalformedNode = errors.New("malformed AST node")

// ExprNode is the serializable form of an Expr.
type ExprNode struct {
	Kind   uint8       `cbor:"1,keyasint"`
	Int    int64       `cbor:"2,keyasint,omitempty"`
	Float  uint64      `cbor:"3,keyasint,omitempty"` // IEEE 754 bits
	Str    string      `cbor:"4,keyasint,omitempty"`
	Bool   bool        `cbor:"5,keyasint,omitempty"`
	Names  []string    `cbor:"6,keyasint,omitempty"`
	Kids   []*ExprNode `cbor:"7,keyasint,omitempty"`
	Annots []*TypeNode `cbor:"8,keyasint,omitempty"` // per-param annotations, nil when absent
	Result *TypeNode   `cbor:"9,keyasint,omitempty"`
}

// TypeNode is the serializable form of a Type or TypeExpr.
type TypeNode struct {
	Kind   uint8       `cbor:"1,keyasint"`
	Name   string      `cbor:"2,keyasint,omitempty"`
	ID     int         `cbor:"3,keyasint,omitempty"`
	Params []*TypeNode `cbor:"4,keyasint,omitempty"`
	Result *TypeNode   `cbor:"5,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CBOREncMode returns the canonical CBOR encoder shared by every persisted
// structure in the module.
func CBOREncMode() cbor.EncMode {
	return cborEncMode
}

// EncodeExpr converts an expression to its wire form.
func EncodeExpr(e Expr) *ExprNode {
	switch n := e.(type) {
	case *IntLiteral:
		return &ExprNode{Kind: nodeInt, Int: n.Value}
	case *FloatLiteral:
		return &ExprNode{Kind: nodeFloat, Float: math.Float64bits(n.Value)}
	case *StringLiteral:
		return &ExprNode{Kind: nodeString, Str: n.Value}
	case *BoolLiteral:
		return &ExprNode{Kind: nodeBool, Bool: n.Value}
	case *Variable:
		return &ExprNode{Kind: nodeVar, Str: n.Name}
	case *Lambda:
		node := &ExprNode{Kind: nodeLambda, Names: n.ParamNames(), Kids: []*ExprNode{EncodeExpr(n.Body)}}
		annotated := false
		annots := make([]*TypeNode, len(n.Params))
		for i, p := range n.Params {
			if p.Type != nil {
				annots[i] = encodeTypeExpr(p.Type)
				annotated = true
			}
		}
		if annotated {
			node.Annots = annots
		}
		if n.Result != nil {
			node.Result = encodeTypeExpr(n.Result)
		}
		return node
	case *Apply:
		kids := make([]*ExprNode, 0, len(n.Args)+1)
		kids = append(kids, EncodeExpr(n.Func))
		for _, a := range n.Args {
			kids = append(kids, EncodeExpr(a))
		}
		return &ExprNode{Kind: nodeApply, Kids: kids}
	case *Let:
		return &ExprNode{Kind: nodeLet, Str: n.Name, Kids: []*ExprNode{EncodeExpr(n.Value), EncodeExpr(n.Body)}}
	case *If:
		return &ExprNode{Kind: nodeIf, Kids: []*ExprNode{EncodeExpr(n.Cond), EncodeExpr(n.Then), EncodeExpr(n.Else)}}
	case *BinaryOp:
		return &ExprNode{Kind: nodeBinary, Str: n.Op, Kids: []*ExprNode{EncodeExpr(n.Left), EncodeExpr(n.Right)}}
	case *UnaryOp:
		return &ExprNode{Kind: nodeUnary, Str: n.Op, Kids: []*ExprNode{EncodeExpr(n.Operand)}}
	}
	return nil
}

// DecodeExpr converts a wire node back into an expression.
func DecodeExpr(node *ExprNode) (Expr, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil node", ErrMalformedNode)
	}
	kids := func(n int) ([]Expr, error) {
		if len(node.Kids) != n {
			return nil, fmt.Errorf("%w: kind %d wants %d children, got %d", ErrMalformedNode, node.Kind, n, len(node.Kids))
		}
		out := make([]Expr, n)
		for i, k := range node.Kids {
			e, err := DecodeExpr(k)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}

	switch node.Kind {
	case nodeInt:
		return &IntLiteral{Value: node.Int}, nil
	case nodeFloat:
		return &FloatLiteral{Value: math.Float64frombits(node.Float)}, nil
	case nodeString:
		return &StringLiteral{Value: node.Str}, nil
	case nodeBool:
		return &BoolLiteral{Value: node.Bool}, nil
	case nodeVar:
		return &Variable{Name: node.Str}, nil
	case nodeLambda:
		body, err := kids(1)
		if err != nil {
			return nil, err
		}
		if node.Annots != nil && len(node.Annots) != len(node.Names) {
			return nil, fmt.Errorf("%w: lambda annotation count mismatch", ErrMalformedNode)
		}
		params := make([]Param, len(node.Names))
		for i, name := range node.Names {
			params[i] = Param{Name: name}
			if node.Annots != nil && node.Annots[i] != nil {
				te, err := decodeTypeExpr(node.Annots[i])
				if err != nil {
					return nil, err
				}
				params[i].Type = te
			}
		}
		lam := &Lambda{Params: params, Body: body[0]}
		if node.Result != nil {
			te, err := decodeTypeExpr(node.Result)
			if err != nil {
				return nil, err
			}
			lam.Result = te
		}
		return lam, nil
	case nodeApply:
		if len(node.Kids) == 0 {
			return nil, fmt.Errorf("%w: apply without function", ErrMalformedNode)
		}
		all, err := kids(len(node.Kids))
		if err != nil {
			return nil, err
		}
		return &Apply{Func: all[0], Args: all[1:]}, nil
	case nodeLet:
		k, err := kids(2)
		if err != nil {
			return nil, err
		}
		return &Let{Name: node.Str, Value: k[0], Body: k[1]}, nil
	case nodeIf:
		k, err := kids(3)
		if err != nil {
			return nil, err
		}
		return &If{Cond: k[0], Then: k[1], Else: k[2]}, nil
	case nodeBinary:
		k, err := kids(2)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: node.Str, Left: k[0], Right: k[1]}, nil
	case nodeUnary:
		k, err := kids(1)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: node.Str, Operand: k[0]}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformedNode, node.Kind)
}

func encodeTypeExpr(te TypeExpr) *TypeNode {
	switch n := te.(type) {
	case *NamedType:
		return &TypeNode{Kind: typeBase, Name: n.Name}
	case *FuncType:
		params := make([]*TypeNode, len(n.Params))
		for i, p := range n.Params {
			params[i] = encodeTypeExpr(p)
		}
		return &TypeNode{Kind: typeFn, Params: params, Result: encodeTypeExpr(n.Result)}
	}
	return nil
}

func decodeTypeExpr(node *TypeNode) (TypeExpr, error) {
	switch node.Kind {
	case typeBase:
		return &NamedType{Name: node.Name}, nil
	case typeFn:
		if node.Result == nil {
			return nil, fmt.Errorf("%w: function type without result", ErrMalformedNode)
		}
		params := make([]TypeExpr, len(node.Params))
		for i, p := range node.Params {
			te, err := decodeTypeExpr(p)
			if err != nil {
				return nil, err
			}
			params[i] = te
		}
		result, err := decodeTypeExpr(node.Result)
		if err != nil {
			return nil, err
		}
		return &FuncType{Params: params, Result: result}, nil
	}
	return nil, fmt.Errorf("%w: unknown type annotation kind %d", ErrMalformedNode, node.Kind)
}

// EncodeType converts a type to its wire form.
func EncodeType(t Type) *TypeNode {
	switch x := t.(type) {
	case *BaseType:
		return &TypeNode{Kind: typeBase, Name: x.Name}
	case *FnType:
		params := make([]*TypeNode, len(x.Params))
		for i, p := range x.Params {
			params[i] = EncodeType(p)
		}
		return &TypeNode{Kind: typeFn, Params: params, Result: EncodeType(x.Result)}
	case *TypeVar:
		return &TypeNode{Kind: typeVar, ID: x.ID}
	}
	return nil
}

// DecodeType converts a wire node back into a type. Base types decode to the
// shared built-in instances.
func DecodeType(node *TypeNode) (Type, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil type", ErrMalformedNode)
	}
	switch node.Kind {
	case typeBase:
		if bt, ok := baseTypes[node.Name]; ok {
			return bt, nil
		}
		return &BaseType{Name: node.Name}, nil
	case typeFn:
		params := make([]Type, len(node.Params))
		for i, p := range node.Params {
			t, err := DecodeType(p)
			if err != nil {
				return nil, err
			}
			params[i] = t
		}
		result, err := DecodeType(node.Result)
		if err != nil {
			return nil, err
		}
		return &FnType{Params: params, Result: result}, nil
	case typeVar:
		return &TypeVar{ID: node.ID}, nil
	}
	return nil, fmt.Errorf("%w: unknown type kind %d", ErrMalformedNode, node.Kind)
}

// MarshalExpr serializes an expression to canonical CBOR bytes.
func MarshalExpr(e Expr) ([]byte, error) {
	return cborEncMode.Marshal(EncodeExpr(e))
}

// UnmarshalExpr deserializes an expression from CBOR bytes.
func UnmarshalExpr(data []byte) (Expr, error) {
	var node ExprNode
	if err := cbor.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal expr: %w", err)
	}
	return DecodeExpr(&node)
}

// MarshalType serializes a type to canonical CBOR bytes.
func MarshalType(t Type) ([]byte, error) {
	return cborEncMode.Marshal(EncodeType(t))
}

// UnmarshalType deserializes a type from CBOR bytes.
func UnmarshalType(data []byte) (Type, error) {
	var node TypeNode
	if err := cbor.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal type: %w", err)
	}
	return DecodeType(&node)
}
