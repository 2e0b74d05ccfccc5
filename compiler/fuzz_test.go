package compiler

import (
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Punctuation and operators
		`( ) , : = =>`, `+ - * / % == != < <= > >= && || ++ !`,
		// Integers and floats
		`42`, `0`, `9223372036854775807`, `3.14`, `1e10`, `1.5e-3`, `2.0E+5`,
		// Strings
		`"hello"`, `""`, `"tab\tnew\nline"`, `"quote \" inside"`,
		// Identifiers and keywords
		`foo`, `math.add`, `a.b.c`, `_private`, `def`, `fn`, `let`, `in`, `if`, `then`, `else`, `true`, `false`,
		// Comments
		"-- a comment\nfoo", `foo -- trailing`,
		// Definitions
		`def add(x: Int, y: Int): Int = x + y`,
		`def twice(f, x) = f(f(x))`,
		// Edge cases
		`"unterminated`, `1.`, `.5`, `1e`, `a..b`, `=>=>`, `--`, `-`,
		// Unicode
		`"こんにちは"`, `café`, `"héllo"`,
		// Empty and whitespace
		``, `   `, "\t\n\r",
		`+-*/\~<>=@%|&?!,`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data)
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF || tok.Type == TokenError {
				break
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: ensure the parser never panics on arbitrary input.
// Parse errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	seeds := []string{
		`def answer = 42`,
		`def add(x: Int, y: Int): Int = x + y`,
		`def fact(n) = if n <= 1 then 1 else n * fact(n - 1)`,
		`def greet(s: String) = "hello, " ++ s`,
		`def inc = fn(x) => x + 1`,
		`def apply(f: Int -> Int, x) = f(x)`,
		`let y = 3 in y * y`,
		`-x`, `!b`, `f()(1)(2, 3)`, `(1 + 2) * 3`,
		// Edge cases that might trip up the parser
		``, `(`, `)`, `,`, `=>`, `def`, `def =`, `def f(`, `def f(x:`, `def f(x) =`,
		`fn(`, `fn() =>`, `let`, `let x`, `let x =`, `let x = 1 in`,
		`if`, `if a then`, `if a then b else`, `f(,)`, `1 +`, `a.`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		sf, err := Parse(data)
		if err != nil {
			return
		}
		for _, def := range sf.Definitions {
			// A parsed definition must print and re-parse to the same tree.
			src := FormatDefinition(def.Name, defExpr(def))
			again, err := Parse(src)
			if err != nil {
				t.Fatalf("re-parse of %q (printed from %q): %v", src, data, err)
			}
			if len(again.Definitions) != 1 || !EqualExpr(defExpr(again.Definitions[0]), defExpr(def)) {
				t.Fatalf("round trip changed %q into %q", data, src)
			}
		}
	})
}

func defExpr(def *Definition) Expr {
	if def.IsFunction() {
		return &Lambda{SpanVal: def.SpanVal, Params: def.Params, Result: def.Result, Body: def.Body}
	}
	return def.Body
}

// ---------------------------------------------------------------------------
// FuzzCheck: the checker and the semantic analyzer accept or reject any
// parsed program without panicking.
// ---------------------------------------------------------------------------

func FuzzCheck(f *testing.F) {
	seeds := []string{
		`def f(x) = x + 1`,
		`def f(x) = x ++ 1`,
		`def f(g, x) = g(g(x))`,
		`def f = let id = fn(x) => x in id(1)`,
		`def f = if true then 1 else "a"`,
		`def f(x: Float) = truncate(x) / 0`,
		`def f(x) = let x = x in fn(x) => x`,
		`def f(a, a) = a`,
		`def loop(n) = loop(n)`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("check panicked on input %q: %v", data, r)
			}
		}()

		sf, err := Parse(data)
		if err != nil {
			return
		}
		for _, def := range sf.Definitions {
			Analyze(def, nil)
			CheckDefinition(defExpr(def), nil, nil, def.Name)
		}
		for _, e := range sf.Exprs {
			Check(e, nil)
		}
	})
}
