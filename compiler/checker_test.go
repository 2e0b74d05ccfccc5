package compiler

import (
	"errors"
	"testing"
)

func checkSource(t *testing.T, src string, env TypeEnv) (Type, error) {
	t.Helper()
	return Check(mustParseExpr(t, src), env)
}

func TestCheckInference(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "Int"},
		{"1.5 * 2.0", "Float"},
		{`"a" ++ "b"`, "String"},
		{"1 < 2 && true", "Bool"},
		{"fn(x) => x + 1", "(Int) -> Int"},
		{"fn(x: Float) => x", "(Float) -> Float"},
		{"fn(x) => x", "(Int) -> Int"},
		{"fn(f, x) => f(f(x))", "((Int) -> Int, Int) -> Int"},
		{"let y = 3 in y * y", "Int"},
		{"if true then \"a\" else \"b\"", "String"},
		{"fn(s) => length(s) + 1", "(String) -> Int"},
		{"fn(x): Float => x", "(Float) -> Float"},
		{"fn(a, b) => a < b", "(Int, Int) -> Bool"},
		{"fn(a: String, b) => a < b", "(String, String) -> Bool"},
	}

	for _, tc := range tests {
		ty, err := checkSource(t, tc.input, nil)
		if err != nil {
			t.Errorf("%q: %v", tc.input, err)
			continue
		}
		if ty.String() != tc.want {
			t.Errorf("%q: got %s, want %s", tc.input, ty, tc.want)
		}
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []string{
		"1 + true",
		`"a" + "b"`,
		"if 1 then 2 else 3",
		"if true then 1 else \"x\"",
		"undefinedName",
		"fn(x) => x(x)",
		"(fn(x) => x)(1, 2)",
		"!5",
		"fn(f: (Int) -> Int) => f == f",
		"fn(x: Widget) => x",
	}
	for _, src := range tests {
		_, err := checkSource(t, src, nil)
		if err == nil {
			t.Errorf("%q: expected type error", src)
			continue
		}
		var te *TypeError
		if !errors.As(err, &te) {
			t.Errorf("%q: got %T, want *TypeError", src, err)
		}
	}
}

func TestCheckUsesEnvironment(t *testing.T) {
	env := TypeEnvFunc(func(name string) (Type, bool) {
		if name == "math.square" {
			return Func(IntType, IntType), true
		}
		return nil, false
	})
	ty, err := checkSource(t, "fn(x) => math.square(x) + 1", env)
	if err != nil {
		t.Fatal(err)
	}
	if ty.String() != "(Int) -> Int" {
		t.Errorf("got %s", ty)
	}
	if _, err := checkSource(t, `math.square("x")`, env); err == nil {
		t.Error("expected argument type mismatch")
	}
}

func TestCheckDefinitionSelfRecursion(t *testing.T) {
	file, err := Parse("def fact(n) = if n <= 1 then 1 else n * fact(n - 1)")
	if err != nil {
		t.Fatal(err)
	}
	def := file.Definitions[0]

	if _, err := Check(def.Expr(), nil); err == nil {
		t.Error("plain Check should not see the definition's own name")
	}

	ty, err := CheckDefinition(def.Expr(), nil, nil, "math.fact", "fact")
	if err != nil {
		t.Fatalf("CheckDefinition: %v", err)
	}
	if ty.String() != "(Int) -> Int" {
		t.Errorf("got %s, want (Int) -> Int", ty)
	}
}

func TestCheckDefinitionDeclaredType(t *testing.T) {
	e := mustParseExpr(t, "fn(x) => x")
	ty, err := CheckDefinition(e, Func(StringType, StringType), nil, "ident")
	if err != nil {
		t.Fatal(err)
	}
	if ty.String() != "(String) -> String" {
		t.Errorf("got %s", ty)
	}
	if _, err := CheckDefinition(e, Func(StringType, IntType), nil, "ident"); err == nil {
		t.Error("expected conflict between declared and inferred type")
	}
}

func TestTypesEqual(t *testing.T) {
	a := Func(IntType, IntType, StringType)
	b := &FnType{Params: []Type{&BaseType{Name: "Int"}, &BaseType{Name: "String"}}, Result: &BaseType{Name: "Int"}}
	if !TypesEqual(a, b) {
		t.Error("structurally equal types should compare equal")
	}
	if TypesEqual(a, Func(IntType, IntType)) {
		t.Error("different arity should differ")
	}
	if TypesEqual(IntType, FloatType) {
		t.Error("Int and Float should differ")
	}
}
