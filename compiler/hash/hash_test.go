package hash

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/vela/compiler"
)

func mustParse(t *testing.T, src string) compiler.Expr {
	t.Helper()
	e, err := compiler.ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	return e
}

func TestHashExprDeterministic(t *testing.T) {
	for _, src := range []string{"42", "fn(x) => x + 1", `let s = "a" in s ++ s`} {
		a := HashExpr(mustParse(t, src))
		b := HashExpr(mustParse(t, src))
		if a != b {
			t.Errorf("%q: hashes differ across parses", src)
		}
	}
}

func TestHashIgnoresSpansAndAnnotations(t *testing.T) {
	pairs := [][2]string{
		{"fn(x) => x + 1", "fn( x )   =>\n  x+1"},
		{"fn(x) => x", "fn(x: Int): Int => x"},
	}
	for _, p := range pairs {
		if HashExpr(mustParse(t, p[0])) != HashExpr(mustParse(t, p[1])) {
			t.Errorf("%q and %q should hash equally", p[0], p[1])
		}
	}
}

func TestHashAlphaEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"fn(x) => x", "fn(y) => y"},
		{"fn(a, b) => a - b", "fn(p, q) => p - q"},
		{"let a = 1 in fn(b) => a + b", "let z = 1 in fn(w) => z + w"},
	}
	for _, p := range pairs {
		if HashExpr(mustParse(t, p[0])) != HashExpr(mustParse(t, p[1])) {
			t.Errorf("%q and %q are alpha-equivalent", p[0], p[1])
		}
	}
}

func TestHashContentSensitivity(t *testing.T) {
	srcs := []string{
		"1", "2", "1.0", `"1"`, "true",
		"fn(a, b) => a - b",
		"fn(a, b) => b - a",
		"fn(a, b) => a + b",
		"fn(a) => fn(b) => a",
		"fn(a) => fn(b) => b",
		"x", "y",
		"-x", "!x",
	}
	seen := make(map[Hash]string)
	for _, src := range srcs {
		h := HashExpr(mustParse(t, src))
		if prev, ok := seen[h]; ok {
			t.Errorf("%q collides with %q", src, prev)
		}
		seen[h] = src
	}
}

func TestHashTermTypeParticipates(t *testing.T) {
	e := mustParse(t, "fn(x) => x")
	a := HashTerm(e, compiler.Func(compiler.IntType, compiler.IntType), nil, nil)
	b := HashTerm(e, compiler.Func(compiler.StringType, compiler.StringType), nil, nil)
	if a == b {
		t.Error("type should participate in the hash")
	}
	if a == HashExpr(e) {
		t.Error("typed and untyped hashes should differ")
	}
}

func TestHashTermSelfReferenceIsNameIndependent(t *testing.T) {
	fact := mustParse(t, "fn(n) => if n <= 1 then 1 else n * fact(n - 1)")
	other := mustParse(t, "fn(n) => if n <= 1 then 1 else n * factorial(n - 1)")
	ty := compiler.Func(compiler.IntType, compiler.IntType)

	a := HashTerm(fact, ty, []string{"math.fact", "fact"}, nil)
	b := HashTerm(other, ty, []string{"factorial"}, nil)
	if a != b {
		t.Error("self-recursive definitions should hash independent of their name")
	}
}

func TestHashTermDependencyHashes(t *testing.T) {
	e := mustParse(t, "fn(x) => double(x) + 1")
	ty := compiler.Func(compiler.IntType, compiler.IntType)
	v1 := HashExpr(mustParse(t, "fn(x) => x * 2"))
	v2 := HashExpr(mustParse(t, "fn(x) => x + x"))

	resolveTo := func(h Hash) Resolver {
		return func(name string) (Hash, bool) {
			if name == "double" {
				return h, true
			}
			return Hash{}, false
		}
	}

	a := HashTerm(e, ty, nil, resolveTo(v1))
	b := HashTerm(e, ty, nil, resolveTo(v2))
	if a == b {
		t.Error("changing a dependency should change the dependent's hash")
	}

	renamed := mustParse(t, "fn(x) => twice(x) + 1")
	c := HashTerm(renamed, ty, nil, func(name string) (Hash, bool) {
		return v1, name == "twice"
	})
	if a != c {
		t.Error("dependencies should be hashed by content, not by name")
	}
}

func TestNormalizeTermRecordsRefs(t *testing.T) {
	dep := HashExpr(mustParse(t, "7"))
	e := mustParse(t, "fn(seven) => seven + lucky + length(\"x\")")
	_, refs := NormalizeTerm(e, nil, nil, func(name string) (Hash, bool) {
		return dep, name == "lucky" || name == "seven"
	})
	if len(refs) != 1 || refs["lucky"] != dep {
		t.Errorf("refs: got %v, want only lucky (bound names shadow stored terms)", refs)
	}
}

func TestNormalizeDeBruijn(t *testing.T) {
	term, _ := NormalizeTerm(mustParse(t, "fn(a, b) => fn(c) => a"), nil, nil, nil)
	outer, ok := term.Expr.(*HLambda)
	if !ok || outer.Arity != 2 {
		t.Fatalf("got %T, want 2-ary lambda", term.Expr)
	}
	inner := outer.Body.(*HLambda)
	ref, ok := inner.Body.(*HLocalRef)
	if !ok {
		t.Fatalf("got %T, want *HLocalRef", inner.Body)
	}
	if ref.Depth != 1 || ref.Slot != 0 {
		t.Errorf("got depth=%d slot=%d, want depth=1 slot=0", ref.Depth, ref.Slot)
	}
}

func TestNormalizeTypeRenumbersVars(t *testing.T) {
	a := NormalizeType(compiler.Func(&compiler.TypeVar{ID: 9}, &compiler.TypeVar{ID: 9}))
	b := NormalizeType(compiler.Func(&compiler.TypeVar{ID: 3}, &compiler.TypeVar{ID: 3}))
	sa := Serialize(&HTerm{Expr: &HIntLiteral{}, Type: a})
	sb := Serialize(&HTerm{Expr: &HIntLiteral{}, Type: b})
	if string(sa) != string(sb) {
		t.Error("type variable ids should not affect the serialization")
	}
}

func TestSerializeVersionPrefix(t *testing.T) {
	data := Serialize(&HIntLiteral{Value: 1})
	if data[0] != HashVersion || data[1] != TagIntLiteral || len(data) != 10 {
		t.Errorf("got % x", data)
	}
}

func TestParseHexRoundTrip(t *testing.T) {
	h := HashExpr(mustParse(t, "42"))
	s := h.String()
	if len(s) != 64 || strings.ToLower(s) != s {
		t.Fatalf("String: got %q", s)
	}
	back, err := ParseHex(s)
	if err != nil {
		t.Fatal(err)
	}
	if back != h {
		t.Error("ParseHex(String()) changed the hash")
	}
	if h.Short() != s[:12] {
		t.Errorf("Short: got %q", h.Short())
	}
}

func TestParseHexErrors(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	for _, in := range []string{"", "abc", valid[:63], valid + "0", valid[:62] + "zz"} {
		_, err := ParseHex(in)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%q: got %v, want *ParseError", in, err)
			continue
		}
		if pe.Input != in {
			t.Errorf("ParseError.Input: got %q, want %q", pe.Input, in)
		}
	}
}

func TestSortHashes(t *testing.T) {
	hs := []Hash{{3}, {1}, {2}}
	Sort(hs)
	for i := 1; i < len(hs); i++ {
		if Compare(hs[i-1], hs[i]) >= 0 {
			t.Fatalf("not sorted: %v", hs)
		}
	}
	if !(Hash{}).IsZero() || hs[0].IsZero() {
		t.Error("IsZero")
	}
}
