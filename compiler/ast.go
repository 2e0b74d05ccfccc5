package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Vela
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// Variable references a local binding or a (possibly qualified) global name.
type Variable struct {
	SpanVal Span
	Name    string
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}
func (n *Variable) expr()      {}

// Param is a lambda parameter with an optional type annotation.
type Param struct {
	Name string
	Type TypeExpr // nil when unannotated
}

// Lambda represents fn(params) => body. A def with parameters is sugar for
// a lambda bound to the definition's name.
type Lambda struct {
	SpanVal Span
	Params  []Param
	Result  TypeExpr // optional result annotation
	Body    Expr
}

func (n *Lambda) Span() Span { return n.SpanVal }
func (n *Lambda) node()      {}
func (n *Lambda) expr()      {}

// ParamNames returns the parameter names in order.
func (n *Lambda) ParamNames() []string {
	names := make([]string, len(n.Params))
	for i, p := range n.Params {
		names[i] = p.Name
	}
	return names
}

// Apply represents a function application f(a, b).
type Apply struct {
	SpanVal Span
	Func    Expr
	Args    []Expr
}

func (n *Apply) Span() Span { return n.SpanVal }
func (n *Apply) node()      {}
func (n *Apply) expr()      {}

// Let represents let name = value in body.
type Let struct {
	SpanVal Span
	Name    string
	Value   Expr
	Body    Expr
}

func (n *Let) Span() Span { return n.SpanVal }
func (n *Let) node()      {}
func (n *Let) expr()      {}

// If represents if cond then a else b.
type If struct {
	SpanVal Span
	Cond    Expr
	Then    Expr
	Else    Expr
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}
func (n *If) expr()      {}

// BinaryOp represents an infix operator application.
type BinaryOp struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *BinaryOp) Span() Span { return n.SpanVal }
func (n *BinaryOp) node()      {}
func (n *BinaryOp) expr()      {}

// UnaryOp represents a prefix operator application ("-" or "!").
type UnaryOp struct {
	SpanVal Span
	Op      string
	Operand Expr
}

func (n *UnaryOp) Span() Span { return n.SpanVal }
func (n *UnaryOp) node()      {}
func (n *UnaryOp) expr()      {}

// ---------------------------------------------------------------------------
// Type annotation nodes
// ---------------------------------------------------------------------------

// TypeExpr is a type annotation as written in source.
type TypeExpr interface {
	Node
	typeExpr() // marker method
}

// NamedType is a base type annotation such as Int.
type NamedType struct {
	SpanVal Span
	Name    string
}

func (n *NamedType) Span() Span { return n.SpanVal }
func (n *NamedType) node()      {}
func (n *NamedType) typeExpr()  {}

// FuncType is a function type annotation: (Int, Int) -> Int.
type FuncType struct {
	SpanVal Span
	Params  []TypeExpr
	Result  TypeExpr
}

func (n *FuncType) Span() Span { return n.SpanVal }
func (n *FuncType) node()      {}
func (n *FuncType) typeExpr()  {}

// ---------------------------------------------------------------------------
// Top-level definitions
// ---------------------------------------------------------------------------

// Definition is a top-level def. Params is nil for value definitions.
type Definition struct {
	SpanVal Span
	Name    string
	Params  []Param // nil for "def x = e"
	Result  TypeExpr
	Body    Expr
}

func (n *Definition) Span() Span { return n.SpanVal }
func (n *Definition) node()      {}

// IsFunction reports whether the definition was written with a parameter list.
func (n *Definition) IsFunction() bool {
	return n.Params != nil
}

// Expr returns the expression bound by the definition: a lambda for
// function definitions, the body otherwise.
func (n *Definition) Expr() Expr {
	if n.Params == nil {
		return n.Body
	}
	return &Lambda{SpanVal: n.SpanVal, Params: n.Params, Result: n.Result, Body: n.Body}
}

// SourceFile is the result of parsing a file of definitions.
type SourceFile struct {
	Definitions []*Definition
	Exprs       []Expr // bare top-level expressions
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// FreeVariables returns the names referenced by expr that are not bound by
// an enclosing lambda or let inside expr, in first-occurrence order.
func FreeVariables(expr Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(e Expr, bound map[string]int)
	walk = func(e Expr, bound map[string]int) {
		switch n := e.(type) {
		case *Variable:
			if bound[n.Name] == 0 && !seen[n.Name] {
				seen[n.Name] = true
				out = append(out, n.Name)
			}
		case *Lambda:
			for _, p := range n.Params {
				bound[p.Name]++
			}
			walk(n.Body, bound)
			for _, p := range n.Params {
				bound[p.Name]--
			}
		case *Apply:
			walk(n.Func, bound)
			for _, a := range n.Args {
				walk(a, bound)
			}
		case *Let:
			walk(n.Value, bound)
			bound[n.Name]++
			walk(n.Body, bound)
			bound[n.Name]--
		case *If:
			walk(n.Cond, bound)
			walk(n.Then, bound)
			walk(n.Else, bound)
		case *BinaryOp:
			walk(n.Left, bound)
			walk(n.Right, bound)
		case *UnaryOp:
			walk(n.Operand, bound)
		}
	}
	walk(expr, make(map[string]int))
	return out
}
