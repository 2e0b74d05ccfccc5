package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Vela syntax
// ---------------------------------------------------------------------------

// SyntaxError collects the parse errors for one source text.
type SyntaxError struct {
	Errors []string
}

func (e *SyntaxError) Error() string {
	return "syntax error: " + strings.Join(e.Errors, "; ")
}

// Parser parses Vela source code into an AST.
type Parser struct {
	lexer     *Lexer
	prevToken Token
	curToken  Token
	peekToken Token
	errors    []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.describe(p.curToken))
	return false
}

func (p *Parser) describe(tok Token) string {
	if tok.Type == TokenError {
		return tok.Literal
	}
	if tok.Literal == "" {
		return tok.Type.String()
	}
	return fmt.Sprintf("%q", tok.Literal)
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// spanFrom builds a span from start to the end of the last consumed token.
func (p *Parser) spanFrom(start Position) Span {
	end := p.prevToken.Pos
	end.Offset += len(p.prevToken.Literal)
	end.Column += len(p.prevToken.Literal)
	return Span{Start: start, End: end}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Parse parses a source file of definitions and bare expressions.
func Parse(source string) (*SourceFile, error) {
	p := NewParser(source)
	file := p.ParseFile()
	if len(p.errors) > 0 {
		return nil, &SyntaxError{Errors: p.errors}
	}
	return file, nil
}

// ParseExpr parses exactly one expression.
func ParseExpr(source string) (Expr, error) {
	p := NewParser(source)
	expr := p.ParseExpression()
	if len(p.errors) == 0 && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.describe(p.curToken))
	}
	if len(p.errors) > 0 {
		return nil, &SyntaxError{Errors: p.errors}
	}
	return expr, nil
}

// ParseFile parses definitions and expressions until EOF. After an error
// the parser skips to the next def so that later errors are still reported.
func (p *Parser) ParseFile() *SourceFile {
	file := &SourceFile{}
	for !p.curTokenIs(TokenEOF) {
		before := len(p.errors)
		if p.curTokenIs(TokenDef) {
			if def := p.ParseDefinition(); def != nil {
				file.Definitions = append(file.Definitions, def)
			}
		} else if expr := p.ParseExpression(); expr != nil {
			file.Exprs = append(file.Exprs, expr)
		}
		if len(p.errors) > before {
			p.synchronize()
		}
	}
	return file
}

func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenDef) {
		p.nextToken()
	}
}

// ParseDefinition parses: def name [(params)] [: Type] = expr
func (p *Parser) ParseDefinition() *Definition {
	start := p.curToken.Pos
	if !p.expect(TokenDef) {
		return nil
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected definition name, got %s", p.describe(p.curToken))
		return nil
	}
	def := &Definition{Name: p.curToken.Literal}
	p.nextToken()

	if p.curTokenIs(TokenLParen) {
		params, ok := p.parseParams()
		if !ok {
			return nil
		}
		def.Params = params
	}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		def.Result = p.parseType()
	}
	if !p.expect(TokenAssign) {
		return nil
	}
	def.Body = p.ParseExpression()
	if def.Body == nil {
		return nil
	}
	def.SpanVal = p.spanFrom(start)
	return def
}

// parseParams parses a parenthesized parameter list. An empty list yields a
// non-nil empty slice so that "def f() = ..." is still a function.
func (p *Parser) parseParams() ([]Param, bool) {
	p.nextToken() // (
	params := []Param{}
	seen := make(map[string]bool)
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) || strings.Contains(p.curToken.Literal, ".") {
			p.errorf("expected parameter name, got %s", p.describe(p.curToken))
			return nil, false
		}
		name := p.curToken.Literal
		if seen[name] {
			p.errorf("duplicate parameter %q", name)
			return nil, false
		}
		seen[name] = true
		p.nextToken()
		param := Param{Name: name}
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			param.Type = p.parseType()
		}
		params = append(params, param)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(TokenRParen) {
			p.errorf("expected , or ) in parameter list, got %s", p.describe(p.curToken))
			return nil, false
		}
	}
	p.nextToken() // )
	return params, true
}

// ---------------------------------------------------------------------------
// Expressions (lowest to highest precedence)
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	switch p.curToken.Type {
	case TokenFn:
		return p.parseLambda()
	case TokenLet:
		return p.parseLet()
	case TokenIf:
		return p.parseIf()
	}
	return p.parseBinary(0)
}

func (p *Parser) parseLambda() Expr {
	start := p.curToken.Pos
	p.nextToken() // fn
	if !p.curTokenIs(TokenLParen) {
		p.errorf("expected ( after fn, got %s", p.describe(p.curToken))
		return nil
	}
	params, ok := p.parseParams()
	if !ok {
		return nil
	}
	var result TypeExpr
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		result = p.parseType()
	}
	if !p.expect(TokenArrow) {
		return nil
	}
	body := p.ParseExpression()
	if body == nil {
		return nil
	}
	return &Lambda{SpanVal: p.spanFrom(start), Params: params, Result: result, Body: body}
}

func (p *Parser) parseLet() Expr {
	start := p.curToken.Pos
	p.nextToken() // let
	if !p.curTokenIs(TokenIdentifier) || strings.Contains(p.curToken.Literal, ".") {
		p.errorf("expected binding name after let, got %s", p.describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenAssign) {
		return nil
	}
	value := p.ParseExpression()
	if value == nil || !p.expect(TokenIn) {
		return nil
	}
	body := p.ParseExpression()
	if body == nil {
		return nil
	}
	return &Let{SpanVal: p.spanFrom(start), Name: name, Value: value, Body: body}
}

func (p *Parser) parseIf() Expr {
	start := p.curToken.Pos
	p.nextToken() // if
	cond := p.ParseExpression()
	if cond == nil || !p.expect(TokenThen) {
		return nil
	}
	then := p.ParseExpression()
	if then == nil || !p.expect(TokenElse) {
		return nil
	}
	els := p.ParseExpression()
	if els == nil {
		return nil
	}
	return &If{SpanVal: p.spanFrom(start), Cond: cond, Then: then, Else: els}
}

// binaryPrecedence maps operator tokens to binding power. All binary
// operators are left-associative.
var binaryPrecedence = map[TokenType]int{
	TokenOr:        1,
	TokenAnd:       2,
	TokenEq:        3,
	TokenNotEq:     3,
	TokenLess:      4,
	TokenLessEq:    4,
	TokenGreater:   4,
	TokenGreaterEq: 4,
	TokenConcat:    5,
	TokenPlus:      6,
	TokenMinus:     6,
	TokenStar:      7,
	TokenSlash:     7,
	TokenPercent:   7,
}

func (p *Parser) parseBinary(minPrec int) Expr {
	start := p.curToken.Pos
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for {
		prec, ok := binaryPrecedence[p.curToken.Type]
		if !ok || prec <= minPrec {
			return left
		}
		op := p.curToken.Literal
		p.nextToken()
		var right Expr
		switch p.curToken.Type {
		case TokenFn, TokenLet, TokenIf:
			right = p.ParseExpression()
		default:
			right = p.parseBinary(prec)
		}
		if right == nil {
			return nil
		}
		left = &BinaryOp{SpanVal: p.spanFrom(start), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenBang) {
		start := p.curToken.Pos
		op := p.curToken.Literal
		p.nextToken()
		// Fold negative numeric literals so "-5" is a literal, as in the
		// literal table of the lexer tests.
		if op == "-" && p.curTokenIs(TokenInteger) {
			lit := p.parseInteger("-" + p.curToken.Literal)
			if lit == nil {
				return nil
			}
			lit.SpanVal = p.spanFrom(start)
			return p.parsePostfix(start, lit)
		}
		if op == "-" && p.curTokenIs(TokenFloat) {
			lit := p.parseFloat("-" + p.curToken.Literal)
			if lit == nil {
				return nil
			}
			lit.SpanVal = p.spanFrom(start)
			return p.parsePostfix(start, lit)
		}
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryOp{SpanVal: p.spanFrom(start), Op: op, Operand: operand}
	}
	start := p.curToken.Pos
	prim := p.parsePrimary()
	if prim == nil {
		return nil
	}
	return p.parsePostfix(start, prim)
}

// parsePostfix parses any number of call suffixes: f(a)(b).
func (p *Parser) parsePostfix(start Position, fn Expr) Expr {
	for p.curTokenIs(TokenLParen) {
		p.nextToken() // (
		var args []Expr
		for !p.curTokenIs(TokenRParen) {
			arg := p.ParseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if p.curTokenIs(TokenComma) {
				p.nextToken()
				continue
			}
			if !p.curTokenIs(TokenRParen) {
				p.errorf("expected , or ) in argument list, got %s", p.describe(p.curToken))
				return nil
			}
		}
		p.nextToken() // )
		fn = &Apply{SpanVal: p.spanFrom(start), Func: fn, Args: args}
	}
	return fn
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenInteger:
		return p.parseInteger(tok.Literal)
	case TokenFloat:
		return p.parseFloat(tok.Literal)
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.spanFrom(tok.Pos), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.spanFrom(tok.Pos), Value: tok.Type == TokenTrue}
	case TokenIdentifier:
		p.nextToken()
		return &Variable{SpanVal: p.spanFrom(tok.Pos), Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		inner := p.ParseExpression()
		if inner == nil || !p.expect(TokenRParen) {
			return nil
		}
		return inner
	case TokenFn, TokenLet, TokenIf:
		return p.ParseExpression()
	}
	p.errorf("unexpected %s", p.describe(tok))
	return nil
}

func (p *Parser) parseInteger(lit string) *IntLiteral {
	pos := p.curToken.Pos
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		p.errorf("invalid integer %s", lit)
		return nil
	}
	p.nextToken()
	return &IntLiteral{SpanVal: p.spanFrom(pos), Value: v}
}

func (p *Parser) parseFloat(lit string) *FloatLiteral {
	pos := p.curToken.Pos
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.errorf("invalid float %s", lit)
		return nil
	}
	p.nextToken()
	return &FloatLiteral{SpanVal: p.spanFrom(pos), Value: v}
}

// ---------------------------------------------------------------------------
// Type annotations
// ---------------------------------------------------------------------------

// parseType parses Int, (Int, Bool) -> Int, or Int -> Int.
func (p *Parser) parseType() TypeExpr {
	start := p.curToken.Pos
	var params []TypeExpr
	grouped := false

	switch p.curToken.Type {
	case TokenLParen:
		grouped = true
		p.nextToken()
		for !p.curTokenIs(TokenRParen) {
			t := p.parseType()
			if t == nil {
				return nil
			}
			params = append(params, t)
			if p.curTokenIs(TokenComma) {
				p.nextToken()
				continue
			}
			if !p.curTokenIs(TokenRParen) {
				p.errorf("expected , or ) in type, got %s", p.describe(p.curToken))
				return nil
			}
		}
		p.nextToken()
	case TokenIdentifier:
		params = []TypeExpr{&NamedType{SpanVal: Span{Start: start}, Name: p.curToken.Literal}}
		p.nextToken()
		params[0].(*NamedType).SpanVal = p.spanFrom(start)
	default:
		p.errorf("expected type, got %s", p.describe(p.curToken))
		return nil
	}

	if p.curTokenIs(TokenThinArrow) {
		p.nextToken()
		result := p.parseType()
		if result == nil {
			return nil
		}
		return &FuncType{SpanVal: p.spanFrom(start), Params: params, Result: result}
	}
	if grouped {
		if len(params) == 1 {
			return params[0]
		}
		p.errorf("parenthesized type list must be followed by ->")
		return nil
	}
	return params[0]
}
