package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Vela syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Vela source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	single := func(t TokenType, lit string) Token {
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	double := func(t TokenType, lit string) Token {
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}
	case l.ch == '(':
		return single(TokenLParen, "(")
	case l.ch == ')':
		return single(TokenRParen, ")")
	case l.ch == ',':
		return single(TokenComma, ",")
	case l.ch == ':':
		return single(TokenColon, ":")
	case l.ch == '+':
		if l.peekChar() == '+' {
			return double(TokenConcat, "++")
		}
		return single(TokenPlus, "+")
	case l.ch == '-':
		if l.peekChar() == '>' {
			return double(TokenThinArrow, "->")
		}
		return single(TokenMinus, "-")
	case l.ch == '*':
		return single(TokenStar, "*")
	case l.ch == '/':
		return single(TokenSlash, "/")
	case l.ch == '%':
		return single(TokenPercent, "%")
	case l.ch == '=':
		switch l.peekChar() {
		case '=':
			return double(TokenEq, "==")
		case '>':
			return double(TokenArrow, "=>")
		}
		return single(TokenAssign, "=")
	case l.ch == '!':
		if l.peekChar() == '=' {
			return double(TokenNotEq, "!=")
		}
		return single(TokenBang, "!")
	case l.ch == '<':
		if l.peekChar() == '=' {
			return double(TokenLessEq, "<=")
		}
		return single(TokenLess, "<")
	case l.ch == '>':
		if l.peekChar() == '=' {
			return double(TokenGreaterEq, ">=")
		}
		return single(TokenGreater, ">")
	case l.ch == '&':
		if l.peekChar() == '&' {
			return double(TokenAnd, "&&")
		}
	case l.ch == '|':
		if l.peekChar() == '|' {
			return double(TokenOr, "||")
		}
	case l.ch == '"':
		return l.readString(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + string(ch), Pos: pos}
}

// skipWhitespaceAndComments skips whitespace and "--" line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for unicode.IsSpace(l.ch) {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

// readIdentifier reads an identifier or keyword. Dots join segments of a
// qualified name ("math.add") when followed by an identifier character.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for {
		for isIdentPart(l.ch) {
			l.readChar()
		}
		if l.ch == '.' && isIdentStart(l.peekChar()) {
			l.readChar()
			continue
		}
		break
	}
	lit := l.input[start:l.pos]
	if tt, ok := keywords[lit]; ok {
		return Token{Type: tt, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

// readNumber reads an integer or float literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '-' || next == '+' {
			isFloat = true
			l.readChar()
			if l.ch == '-' || l.ch == '+' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	lit := l.input[start:l.pos]
	if isFloat {
		return Token{Type: TokenFloat, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: lit, Pos: pos}
}

// readString reads a double-quoted string with backslash escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		switch l.ch {
		case 0:
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				return Token{Type: TokenError, Literal: "invalid escape \\" + string(l.ch), Pos: pos}
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '\''
}

// Tokenize returns all tokens from the input, ending with EOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
