package compiler

import (
	"strconv"
	"strings"
)

// Format renders an expression as canonical Vela source. The output parses
// back to an expression equal to the input under EqualExpr.
func Format(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e, 0)
	return sb.String()
}

// FormatDefinition renders "def name = expr", using the parameter form for
// lambdas.
func FormatDefinition(name string, e Expr) string {
	if lam, ok := e.(*Lambda); ok {
		var sb strings.Builder
		sb.WriteString("def ")
		sb.WriteString(name)
		writeParams(&sb, lam.Params)
		if lam.Result != nil {
			sb.WriteString(": ")
			sb.WriteString(FormatTypeExpr(lam.Result))
		}
		sb.WriteString(" = ")
		formatExpr(&sb, lam.Body, 0)
		return sb.String()
	}
	return "def " + name + " = " + Format(e)
}

// FormatTypeExpr renders a type annotation.
func FormatTypeExpr(te TypeExpr) string {
	switch n := te.(type) {
	case *NamedType:
		return n.Name
	case *FuncType:
		parts := make([]string, len(n.Params))
		for i, p := range n.Params {
			parts[i] = FormatTypeExpr(p)
		}
		return "(" + strings.Join(parts, ", ") + ") -> " + FormatTypeExpr(n.Result)
	}
	return "?"
}

func writeParams(sb *strings.Builder, params []Param) {
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
		if p.Type != nil {
			sb.WriteString(": ")
			sb.WriteString(FormatTypeExpr(p.Type))
		}
	}
	sb.WriteByte(')')
}

func formatExpr(sb *strings.Builder, e Expr, prec int) {
	switch n := e.(type) {
	case *IntLiteral:
		if n.Value < 0 && prec > 0 {
			sb.WriteString("(" + strconv.FormatInt(n.Value, 10) + ")")
			return
		}
		sb.WriteString(strconv.FormatInt(n.Value, 10))
	case *FloatLiteral:
		s := strconv.FormatFloat(n.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		if n.Value < 0 && prec > 0 {
			s = "(" + s + ")"
		}
		sb.WriteString(s)
	case *StringLiteral:
		sb.WriteString(strconv.Quote(n.Value))
	case *BoolLiteral:
		sb.WriteString(strconv.FormatBool(n.Value))
	case *Variable:
		sb.WriteString(n.Name)
	case *Lambda:
		open := prec > 0
		if open {
			sb.WriteByte('(')
		}
		sb.WriteString("fn")
		writeParams(sb, n.Params)
		if n.Result != nil {
			sb.WriteString(": ")
			sb.WriteString(FormatTypeExpr(n.Result))
		}
		sb.WriteString(" => ")
		formatExpr(sb, n.Body, 0)
		if open {
			sb.WriteByte(')')
		}
	case *Apply:
		formatExpr(sb, n.Func, 100)
		sb.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, a, 0)
		}
		sb.WriteByte(')')
	case *Let:
		open := prec > 0
		if open {
			sb.WriteByte('(')
		}
		sb.WriteString("let " + n.Name + " = ")
		formatExpr(sb, n.Value, 0)
		sb.WriteString(" in ")
		formatExpr(sb, n.Body, 0)
		if open {
			sb.WriteByte(')')
		}
	case *If:
		open := prec > 0
		if open {
			sb.WriteByte('(')
		}
		sb.WriteString("if ")
		formatExpr(sb, n.Cond, 0)
		sb.WriteString(" then ")
		formatExpr(sb, n.Then, 0)
		sb.WriteString(" else ")
		formatExpr(sb, n.Else, 0)
		if open {
			sb.WriteByte(')')
		}
	case *BinaryOp:
		p := opPrecedence(n.Op)
		open := p < prec
		if open {
			sb.WriteByte('(')
		}
		formatExpr(sb, n.Left, p)
		sb.WriteString(" " + n.Op + " ")
		formatExpr(sb, n.Right, p+1)
		if open {
			sb.WriteByte(')')
		}
	case *UnaryOp:
		sb.WriteString(n.Op)
		switch n.Operand.(type) {
		case *IntLiteral, *FloatLiteral:
			// "-5" would re-parse as a literal
			sb.WriteByte('(')
			formatExpr(sb, n.Operand, 0)
			sb.WriteByte(')')
		default:
			formatExpr(sb, n.Operand, 100)
		}
	}
}

func opPrecedence(op string) int {
	for tt, prec := range binaryPrecedence {
		if tokenNames[tt] == op {
			return prec
		}
	}
	return 0
}

// EqualExpr reports structural equality, ignoring spans.
func EqualExpr(a, b Expr) bool {
	switch x := a.(type) {
	case *IntLiteral:
		y, ok := b.(*IntLiteral)
		return ok && x.Value == y.Value
	case *FloatLiteral:
		y, ok := b.(*FloatLiteral)
		return ok && (x.Value == y.Value || (x.Value != x.Value && y.Value != y.Value))
	case *StringLiteral:
		y, ok := b.(*StringLiteral)
		return ok && x.Value == y.Value
	case *BoolLiteral:
		y, ok := b.(*BoolLiteral)
		return ok && x.Value == y.Value
	case *Variable:
		y, ok := b.(*Variable)
		return ok && x.Name == y.Name
	case *Lambda:
		y, ok := b.(*Lambda)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}
		for i := range x.Params {
			if x.Params[i].Name != y.Params[i].Name || !equalTypeExpr(x.Params[i].Type, y.Params[i].Type) {
				return false
			}
		}
		return equalTypeExpr(x.Result, y.Result) && EqualExpr(x.Body, y.Body)
	case *Apply:
		y, ok := b.(*Apply)
		if !ok || len(x.Args) != len(y.Args) || !EqualExpr(x.Func, y.Func) {
			return false
		}
		for i := range x.Args {
			if !EqualExpr(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case *Let:
		y, ok := b.(*Let)
		return ok && x.Name == y.Name && EqualExpr(x.Value, y.Value) && EqualExpr(x.Body, y.Body)
	case *If:
		y, ok := b.(*If)
		return ok && EqualExpr(x.Cond, y.Cond) && EqualExpr(x.Then, y.Then) && EqualExpr(x.Else, y.Else)
	case *BinaryOp:
		y, ok := b.(*BinaryOp)
		return ok && x.Op == y.Op && EqualExpr(x.Left, y.Left) && EqualExpr(x.Right, y.Right)
	case *UnaryOp:
		y, ok := b.(*UnaryOp)
		return ok && x.Op == y.Op && EqualExpr(x.Operand, y.Operand)
	case nil:
		return b == nil
	}
	return false
}

func equalTypeExpr(a, b TypeExpr) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *NamedType:
		y, ok := b.(*NamedType)
		return ok && x.Name == y.Name
	case *FuncType:
		y, ok := b.(*FuncType)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}
		for i := range x.Params {
			if !equalTypeExpr(x.Params[i], y.Params[i]) {
				return false
			}
		}
		return equalTypeExpr(x.Result, y.Result)
	}
	return false
}
