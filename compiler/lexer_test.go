package compiler

import (
	"testing"
)

func TestLexerOperators(t *testing.T) {
	input := "+ ++ - -> * / % == => = != ! < <= > >= && || ( ) , :"
	expected := []TokenType{
		TokenPlus, TokenConcat, TokenMinus, TokenThinArrow, TokenStar, TokenSlash,
		TokenPercent, TokenEq, TokenArrow, TokenAssign, TokenNotEq, TokenBang,
		TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq, TokenAnd, TokenOr,
		TokenLParen, TokenRParen, TokenComma, TokenColon, TokenEOF,
	}

	tokens := Tokenize(input)
	if len(tokens) != len(expected) {
		t.Fatalf("token count: got %d, want %d (%v)", len(tokens), len(expected), tokens)
	}
	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token %d: got %s, want %s", i, tok.Type, expected[i])
		}
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"def", TokenDef, "def"},
		{"fn", TokenFn, "fn"},
		{"let", TokenLet, "let"},
		{"in", TokenIn, "in"},
		{"if", TokenIf, "if"},
		{"then", TokenThen, "then"},
		{"else", TokenElse, "else"},
		{"true", TokenTrue, "true"},
		{"false", TokenFalse, "false"},
		{"foo", TokenIdentifier, "foo"},
		{"_bar2", TokenIdentifier, "_bar2"},
		{"x'", TokenIdentifier, "x'"},
		{"math.add", TokenIdentifier, "math.add"},
		{"a.b.c", TokenIdentifier, "a.b.c"},
		{"define", TokenIdentifier, "define"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Literal != tc.lit {
			t.Errorf("%q: got %s(%q), want %s(%q)", tc.input, tok.Type, tok.Literal, tc.typ, tc.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"1e10", TokenFloat, "1e10"},
		{"2.5e-3", TokenFloat, "2.5e-3"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Literal != tc.lit {
			t.Errorf("%q: got %s(%q), want %s(%q)", tc.input, tok.Type, tok.Literal, tc.typ, tc.lit)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"say \"hi\""`, `say "hi"`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("%s: got %s, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("%s: got %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{`"unterminated`, `"bad \q"`, "@", "&", "|"} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("%q: got %s, want ERROR", input, tok.Type)
		}
	}
}

func TestLexerCommentsAndPositions(t *testing.T) {
	input := "-- a comment\n  foo -- trailing\nbar"
	tokens := Tokenize(input)
	if len(tokens) != 3 {
		t.Fatalf("token count: got %d, want 3 (%v)", len(tokens), tokens)
	}
	if tokens[0].Literal != "foo" || tokens[0].Pos.Line != 2 || tokens[0].Pos.Column != 3 {
		t.Errorf("foo: got %v, want line 2 column 3", tokens[0])
	}
	if tokens[1].Literal != "bar" || tokens[1].Pos.Line != 3 || tokens[1].Pos.Column != 1 {
		t.Errorf("bar: got %v, want line 3 column 1", tokens[1])
	}
}
