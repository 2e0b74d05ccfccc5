package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: warnings that do not stop a definition from storing
// ---------------------------------------------------------------------------

// SemanticAnalyzer walks a definition and reports names that may be
// undefined, bindings that are never used, shadowed bindings and
// conditions that are constant. None of these are type errors.
type SemanticAnalyzer struct {
	warnings []string

	// Known reports whether a free name resolves to a stored definition.
	// Builtins and the definition's own name are always known.
	known func(name string) bool
	self  string

	scopes []*scopeFrame
}

// scopeFrame is one lambda or let scope.
type scopeFrame struct {
	names []string
	nodes map[string]Node
	used  map[string]bool
	kind  string
}

// NewSemanticAnalyzer creates an analyzer. known may be nil, in which case
// every free name other than a builtin is reported.
func NewSemanticAnalyzer(known func(name string) bool) *SemanticAnalyzer {
	return &SemanticAnalyzer{known: known}
}

// Warnings returns the accumulated warnings.
func (s *SemanticAnalyzer) Warnings() []string {
	return s.warnings
}

func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	pos := node.Span().Start
	msg := fmt.Sprintf("warning: line %d, column %d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...))
	s.warnings = append(s.warnings, msg)
}

// AnalyzeDefinition analyzes one definition.
func (s *SemanticAnalyzer) AnalyzeDefinition(def *Definition) {
	s.self = def.Name
	s.scopes = nil
	if def.IsFunction() {
		s.analyzeLambda(&Lambda{SpanVal: def.SpanVal, Params: def.Params, Result: def.Result, Body: def.Body})
		return
	}
	s.analyzeExpr(def.Body)
}

// AnalyzeExpr analyzes a bare expression.
func (s *SemanticAnalyzer) AnalyzeExpr(e Expr) {
	s.self = ""
	s.scopes = nil
	s.analyzeExpr(e)
}

func (s *SemanticAnalyzer) analyzeExpr(e Expr) {
	switch n := e.(type) {
	case *Variable:
		s.reference(n)
	case *Lambda:
		s.analyzeLambda(n)
	case *Apply:
		s.analyzeExpr(n.Func)
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *Let:
		s.analyzeExpr(n.Value)
		s.push("let binding")
		s.declare(n.Name, n)
		s.analyzeExpr(n.Body)
		s.pop()
	case *If:
		s.analyzeExpr(n.Cond)
		if b, ok := n.Cond.(*BoolLiteral); ok {
			dead := "else"
			if !b.Value {
				dead = "then"
			}
			s.warnAt(n, "condition is always %t, the %s branch is unreachable", b.Value, dead)
		}
		s.analyzeExpr(n.Then)
		s.analyzeExpr(n.Else)
	case *BinaryOp:
		s.analyzeExpr(n.Left)
		s.analyzeExpr(n.Right)
		if (n.Op == "/" || n.Op == "%") && isZero(n.Right) {
			s.warnAt(n, "division by zero")
		}
	case *UnaryOp:
		s.analyzeExpr(n.Operand)
	}
}

func (s *SemanticAnalyzer) analyzeLambda(n *Lambda) {
	s.push("parameter")
	seen := make(map[string]bool, len(n.Params))
	for _, p := range n.Params {
		if seen[p.Name] {
			s.warnAt(n, "duplicate parameter '%s'", p.Name)
		}
		seen[p.Name] = true
		s.declare(p.Name, n)
	}
	s.analyzeExpr(n.Body)
	s.pop()
}

func (s *SemanticAnalyzer) push(kind string) {
	s.scopes = append(s.scopes, &scopeFrame{
		nodes: make(map[string]Node),
		used:  make(map[string]bool),
		kind:  kind,
	})
}

// pop closes the innermost scope and reports its unused names. Names
// starting with an underscore are exempt.
func (s *SemanticAnalyzer) pop() {
	top := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	for _, name := range top.names {
		if !top.used[name] && name[0] != '_' {
			s.warnAt(top.nodes[name], "%s '%s' is never used", top.kind, name)
		}
	}
}

func (s *SemanticAnalyzer) declare(name string, node Node) {
	for i := len(s.scopes) - 2; i >= 0; i-- {
		if _, ok := s.scopes[i].nodes[name]; ok {
			s.warnAt(node, "'%s' shadows an outer binding", name)
			break
		}
	}
	top := s.scopes[len(s.scopes)-1]
	if _, ok := top.nodes[name]; !ok {
		top.names = append(top.names, name)
	}
	top.nodes[name] = node
}

func (s *SemanticAnalyzer) reference(v *Variable) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if _, ok := s.scopes[i].nodes[v.Name]; ok {
			s.scopes[i].used[v.Name] = true
			return
		}
	}
	if v.Name == s.self || IsBuiltin(v.Name) {
		return
	}
	if s.known == nil || !s.known(v.Name) {
		s.warnAt(v, "'%s' may be undefined", v.Name)
	}
}

func isZero(e Expr) bool {
	switch n := e.(type) {
	case *IntLiteral:
		return n.Value == 0
	case *FloatLiteral:
		return n.Value == 0
	}
	return false
}

// Analyze is a convenience wrapper that analyzes def and returns the
// warnings.
func Analyze(def *Definition, known func(name string) bool) []string {
	s := NewSemanticAnalyzer(known)
	s.AnalyzeDefinition(def)
	return s.Warnings()
}
