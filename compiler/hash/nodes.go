package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go with no spans, no
// annotations and de Bruijn indices instead of bound names. Alpha-equivalent
// expressions produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

type HIntLiteral struct{ Value int64 }
type HFloatLiteral struct{ Value float64 }
type HStringLiteral struct{ Value string }
type HBoolLiteral struct{ Value bool }

func (*HIntLiteral) hnode()    {}
func (*HFloatLiteral) hnode()  {}
func (*HStringLiteral) hnode() {}
func (*HBoolLiteral) hnode()   {}

// HSelfRef is a reference to the definition being hashed.
type HSelfRef struct{}

// HLocalRef references a bound variable by de Bruijn indices.
// Depth 0 = innermost binder, 1 = one enclosing binder up, etc.
// Slot is the position within that binder's parameter list.
type HLocalRef struct {
	Depth uint16
	Slot  uint16
}

// HTermRef references a stored term by content hash.
type HTermRef struct {
	Hash Hash
}

// HGlobalRef references a builtin or otherwise unresolved name.
type HGlobalRef struct {
	Name string
}

func (*HSelfRef) hnode()   {}
func (*HLocalRef) hnode()  {}
func (*HTermRef) hnode()   {}
func (*HGlobalRef) hnode() {}

// HLambda is a lambda stripped of parameter names.
type HLambda struct {
	Arity int
	Body  HNode
}

type HApply struct {
	Func HNode
	Args []HNode
}

// HLet binds one slot at a new depth for Body.
type HLet struct {
	Value HNode
	Body  HNode
}

type HIf struct {
	Cond, Then, Else HNode
}

type HBinary struct {
	Op          string
	Left, Right HNode
}

type HUnary struct {
	Op      string
	Operand HNode
}

func (*HLambda) hnode() {}
func (*HApply) hnode()  {}
func (*HLet) hnode()    {}
func (*HIf) hnode()     {}
func (*HBinary) hnode() {}
func (*HUnary) hnode()  {}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// HType is a type in the hashing form. Type variables are renumbered in
// first-occurrence order.
type HType interface {
	htype()
}

type HBaseType struct{ Name string }

type HFnType struct {
	Params []HType
	Result HType
}

type HTypeVar struct{ Index uint16 }

func (*HBaseType) htype() {}
func (*HFnType) htype()   {}
func (*HTypeVar) htype()  {}

// HTerm is the top-level hashing node for a definition. Type is nil for
// bare expressions.
type HTerm struct {
	Expr HNode
	Type HType
}

func (*HTerm) hnode() {}
