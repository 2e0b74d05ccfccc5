package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Vela lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello"
	TokenIdentifier // foo, math.add

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenPercent  // %
	TokenConcat   // ++
	TokenEq       // ==
	TokenNotEq    // !=
	TokenLess     // <
	TokenLessEq   // <=
	TokenGreater  // >
	TokenGreaterEq // >=
	TokenAnd      // &&
	TokenOr       // ||
	TokenBang     // !
	TokenAssign   // =
	TokenArrow    // =>
	TokenThinArrow // ->

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,
	TokenColon  // :

	// Keywords
	TokenDef
	TokenFn
	TokenLet
	TokenIn
	TokenIf
	TokenThen
	TokenElse
	TokenTrue
	TokenFalse
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenConcat:     "++",
	TokenEq:         "==",
	TokenNotEq:      "!=",
	TokenLess:       "<",
	TokenLessEq:     "<=",
	TokenGreater:    ">",
	TokenGreaterEq:  ">=",
	TokenAnd:        "&&",
	TokenOr:         "||",
	TokenBang:       "!",
	TokenAssign:     "=",
	TokenArrow:      "=>",
	TokenThinArrow:  "->",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenColon:      ":",
	TokenDef:        "def",
	TokenFn:         "fn",
	TokenLet:        "let",
	TokenIn:         "in",
	TokenIf:         "if",
	TokenThen:       "then",
	TokenElse:       "else",
	TokenTrue:       "true",
	TokenFalse:      "false",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"def":   TokenDef,
	"fn":    TokenFn,
	"let":   TokenLet,
	"in":    TokenIn,
	"if":    TokenIf,
	"then":  TokenThen,
	"else":  TokenElse,
	"true":  TokenTrue,
	"false": TokenFalse,
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
}
