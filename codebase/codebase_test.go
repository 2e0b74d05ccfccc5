package codebase

import (
	"errors"
	"slices"
	"testing"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
)

func parse(t *testing.T, src string) compiler.Expr {
	t.Helper()
	e, err := compiler.ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	return e
}

func mustAdd(t *testing.T, cb *Codebase, name, src string) hash.Hash {
	t.Helper()
	h, err := cb.AddTerm(name, parse(t, src), nil)
	if err != nil {
		t.Fatalf("AddTerm(%s): %v", name, err)
	}
	return h
}

func TestAddTermAndLookup(t *testing.T) {
	cb := New()
	h := mustAdd(t, cb, "inc", "fn(x) => x + 1")

	term, ok := cb.GetTerm(h)
	if !ok {
		t.Fatal("term not stored")
	}
	if term.Name != "inc" || term.Type.String() != "(Int) -> Int" {
		t.Errorf("got name %q type %s", term.Name, term.Type)
	}
	byName, ok := cb.GetTermByName("inc")
	if !ok || byName.Hash != h {
		t.Error("name lookup should return the same term")
	}
	if _, ok := cb.GetTermByName("dec"); ok {
		t.Error("unknown name should be absent")
	}
	if cb.Len() != 1 {
		t.Errorf("Len: got %d", cb.Len())
	}
	names := cb.Names()
	if len(names) != 1 || names[0].Name != "inc" || names[0].Hash != h {
		t.Errorf("Names: got %v", names)
	}
}

func TestAddTermDeduplicates(t *testing.T) {
	cb := New()
	a := mustAdd(t, cb, "id", "fn(x) => x")
	b := mustAdd(t, cb, "same", "fn(y) => y")
	if a != b {
		t.Fatal("alpha-equivalent definitions should share a hash")
	}
	if cb.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cb.Len())
	}
	term, _ := cb.GetTerm(a)
	if term.Name != "id" {
		t.Errorf("first insertion keeps its display name, got %q", term.Name)
	}
	if got := cb.NamesOf(a); !slices.Equal(got, []string{"id", "same"}) {
		t.Errorf("NamesOf: got %v", got)
	}
}

func TestAddTermRejectsIllTyped(t *testing.T) {
	cb := New()
	if _, err := cb.AddTerm("bad", parse(t, "1 + true"), nil); err == nil {
		t.Error("expected type error")
	}
	if _, err := cb.AddTerm("dangling", parse(t, "missing(1)"), nil); err == nil {
		t.Error("expected error for unresolved identifier")
	}
	if _, err := cb.AddTerm("abs", parse(t, "fn(x) => x"), nil); err == nil {
		t.Error("expected error for a name that shadows a builtin")
	}
	if cb.Len() != 0 {
		t.Errorf("failed insertions must not store terms, got %d", cb.Len())
	}
}

func TestAddTermDeclaredType(t *testing.T) {
	cb := New()
	h, err := cb.AddTerm("ident", parse(t, "fn(x) => x"), compiler.Func(compiler.StringType, compiler.StringType))
	if err != nil {
		t.Fatal(err)
	}
	term, _ := cb.GetTerm(h)
	if term.Type.String() != "(String) -> String" {
		t.Errorf("got %s", term.Type)
	}
	if _, err := cb.AddTerm("bad", parse(t, "fn(x) => x + 1"), compiler.Func(compiler.StringType, compiler.StringType)); err == nil {
		t.Error("declared type conflicting with the body should fail")
	}
}

func TestTransitiveClosureChain(t *testing.T) {
	cb := New()
	a := mustAdd(t, cb, "a", "fn(x) => x * 2")
	b := mustAdd(t, cb, "b", "fn(x) => a(x) + 1")
	c := mustAdd(t, cb, "c", "fn(x) => b(x) - 3")

	all, err := cb.GetAllDependencies(c)
	if err != nil {
		t.Fatal(err)
	}
	want := []hash.Hash{a, b}
	hash.Sort(want)
	if !slices.Equal(all, want) {
		t.Errorf("GetAllDependencies(c): got %v, want %v", all, want)
	}

	if got := cb.GetDirectDependencies(c); !slices.Equal(got, []hash.Hash{b}) {
		t.Errorf("GetDirectDependencies(c): got %v", got)
	}
	if got := cb.GetDependents(a); !slices.Equal(got, []hash.Hash{b}) {
		t.Errorf("GetDependents(a): got %v, want [b]", got)
	}
	if got := cb.GetDependents(c); len(got) != 0 {
		t.Errorf("GetDependents(c): got %v, want none", got)
	}
	if got := cb.GetDirectDependencies(hash.Hash{9}); got != nil {
		t.Errorf("unknown hash should have no dependencies, got %v", got)
	}
}

func TestReverseIndexConsistency(t *testing.T) {
	cb := New()
	mustAdd(t, cb, "a", "1")
	mustAdd(t, cb, "b", "a + 1")
	mustAdd(t, cb, "c", "a + b")
	mustAdd(t, cb, "d", "fn(x) => x + c + a")

	for _, term := range cb.Terms() {
		for _, dep := range term.Dependencies {
			if !slices.Contains(cb.GetDependents(dep), term.Hash) {
				t.Errorf("%s depends on %s but is not in its dependents", term.Name, dep.Short())
			}
		}
		for _, dependent := range cb.GetDependents(term.Hash) {
			dt, _ := cb.GetTerm(dependent)
			if !dt.DependsOn(term.Hash) {
				t.Errorf("%s listed as dependent of %s without the edge", dt.Name, term.Name)
			}
		}
	}
}

func TestRedefinitionPreservesHistory(t *testing.T) {
	cb := New()
	old := mustAdd(t, cb, "f", "fn(x) => x + 1")
	user := mustAdd(t, cb, "g", "fn(x) => f(x) * 2")
	updated := mustAdd(t, cb, "f", "fn(x) => x + 2")

	if old == updated {
		t.Fatal("different content should produce a different hash")
	}
	if term, ok := cb.GetTerm(old); !ok || term.Name != "f" {
		t.Error("the original term should stay retrievable by hash")
	}
	if cur, _ := cb.GetTermByName("f"); cur.Hash != updated {
		t.Error("the name should point at the new definition")
	}

	// g stays pinned to the definition of f it was checked against.
	g, _ := cb.GetTerm(user)
	if g.Refs["f"] != old || !g.DependsOn(old) {
		t.Error("recorded dependencies must not follow the rebinding")
	}
}

func TestSelfRecursiveTermHasNoSelfEdge(t *testing.T) {
	cb := New()
	h := mustAdd(t, cb, "fact", "fn(n) => if n <= 1 then 1 else n * fact(n - 1)")
	term, _ := cb.GetTerm(h)
	if len(term.Dependencies) != 0 {
		t.Errorf("self-recursion should not record a dependency, got %v", term.Dependencies)
	}
	if len(term.Refs) != 0 {
		t.Errorf("self-recursion should not pin a ref, got %v", term.Refs)
	}
}

func TestInsertAliases(t *testing.T) {
	cb := New()
	term, err := cb.Insert(TermInput{
		Name:    "math.fact",
		Aliases: []string{"fact"},
		Expr:    parse(t, "fn(n) => if n <= 1 then 1 else n * fact(n - 1)"),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"math.fact", "fact"} {
		if got, ok := cb.GetTermByName(name); !ok || got.Hash != term.Hash {
			t.Errorf("%s should be bound to the term", name)
		}
	}
}

func TestGetAllDependenciesDangling(t *testing.T) {
	dep := hash.Hash{7}
	term := &Term{Hash: hash.Hash{1}, Name: "x", Expr: &compiler.IntLiteral{Value: 1}, Type: compiler.IntType, Dependencies: []hash.Hash{dep}}
	cb := Restore([]*Term{term}, nil, Metadata{})

	_, err := cb.GetAllDependencies(term.Hash)
	var de *DependencyError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DependencyError", err)
	}
	if de.From != term.Hash || de.Missing != dep {
		t.Errorf("got %+v", de)
	}

	_, err = cb.GetAllDependencies(hash.Hash{2})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("unknown root: got %v, want *NotFoundError", err)
	}
}

func TestBindAndUnbind(t *testing.T) {
	cb := New()
	h := mustAdd(t, cb, "one", "1")
	if err := cb.Bind("uno", h); err != nil {
		t.Fatal(err)
	}
	if err := cb.Bind("nada", hash.Hash{3}); err == nil {
		t.Error("binding an unknown hash should fail")
	}
	if err := cb.Unbind("one"); err != nil {
		t.Fatal(err)
	}
	if _, ok := cb.GetTermByName("one"); ok {
		t.Error("unbound name should be gone")
	}
	if _, ok := cb.GetTerm(h); !ok {
		t.Error("unbinding must not remove the term")
	}
	var nf *NotFoundError
	if err := cb.Unbind("one"); !errors.As(err, &nf) {
		t.Errorf("second unbind: got %v, want *NotFoundError", err)
	}
}

func TestReachability(t *testing.T) {
	cb := New()
	a := mustAdd(t, cb, "a", "1")
	b := mustAdd(t, cb, "b", "a + 1")
	orphan := mustAdd(t, cb, "orphan", "99")
	if err := cb.Unbind("orphan"); err != nil {
		t.Fatal(err)
	}

	live := cb.Reachable(cb.Roots())
	if !live[a] || !live[b] || live[orphan] {
		t.Errorf("Reachable: got %v", live)
	}
	if dead := cb.Unreachable(cb.Roots()); !slices.Equal(dead, []hash.Hash{orphan}) {
		t.Errorf("Unreachable: got %v, want [orphan]", dead)
	}
	if cb.Len() != 3 {
		t.Error("reachability analysis must not remove terms")
	}
}

func TestFind(t *testing.T) {
	cb := New()
	h := mustAdd(t, cb, "seven", "7")

	for _, ref := range []string{"seven", h.String(), h.String()[:8]} {
		term, err := cb.Find(ref)
		if err != nil || term.Hash != h {
			t.Errorf("Find(%q): got %v, %v", ref, term, err)
		}
	}
	var nf *NotFoundError
	if _, err := cb.Find("eight"); !errors.As(err, &nf) {
		t.Errorf("got %v, want *NotFoundError", err)
	}
}

func TestEqualAndRestore(t *testing.T) {
	cb := New()
	mustAdd(t, cb, "a", "fn(x) => x * 2")
	mustAdd(t, cb, "b", "fn(x) => a(x) + 1")

	clone := Restore(cb.Terms(), cb.Bindings(), cb.Metadata())
	if !cb.Equal(clone) {
		t.Fatal("restored codebase should equal the original")
	}

	mustAdd(t, clone, "c", "3")
	if cb.Equal(clone) {
		t.Error("codebases with different terms should differ")
	}
}

func TestTermBodyAndTypeOf(t *testing.T) {
	cb := New()
	a := mustAdd(t, cb, "a", "fn(x) => x * 2")
	b := mustAdd(t, cb, "b", "fn(x) => a(x) + 1")

	expr, refs, err := cb.TermBody(b)
	if err != nil || expr == nil || refs["a"] != a {
		t.Errorf("TermBody: got %v %v %v", expr, refs, err)
	}
	if ty, ok := cb.TypeOf("a"); !ok || ty.String() != "(Int) -> Int" {
		t.Errorf("TypeOf: got %v", ty)
	}
}
