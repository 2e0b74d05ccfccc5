package compiler

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestMarshalExprRoundTrip(t *testing.T) {
	sources := []string{
		"42",
		"-0.0",
		`"unicode ✓"`,
		"fn(x: Int, f: (Int) -> Bool): Bool => f(x) && true",
		"let a = 1 in if a > 0 then a else -a",
		"math.add(1, 2.5e3)",
	}
	for _, src := range sources {
		e := mustParseExpr(t, src)
		data, err := MarshalExpr(e)
		if err != nil {
			t.Fatalf("%q: marshal: %v", src, err)
		}
		back, err := UnmarshalExpr(data)
		if err != nil {
			t.Fatalf("%q: unmarshal: %v", src, err)
		}
		if !EqualExpr(e, back) {
			t.Errorf("%q: round trip changed the tree: %s", src, Format(back))
		}
	}
}

func TestMarshalExprIgnoresSpans(t *testing.T) {
	a, _ := MarshalExpr(mustParseExpr(t, "f(x)+1"))
	b, _ := MarshalExpr(mustParseExpr(t, "\n\n   f( x )   +   1"))
	if !bytes.Equal(a, b) {
		t.Error("encoding should not depend on source positions")
	}
}

func TestMarshalFloatBitsExact(t *testing.T) {
	negZero := math.Copysign(0, -1)
	data, err := MarshalExpr(&FloatLiteral{Value: negZero})
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalExpr(data)
	if err != nil {
		t.Fatal(err)
	}
	v := back.(*FloatLiteral).Value
	if !math.Signbit(v) {
		t.Error("negative zero lost its sign")
	}
}

func TestMarshalTypeRoundTrip(t *testing.T) {
	types := []Type{
		IntType,
		Func(BoolType, StringType, FloatType),
		Func(IntType, Func(IntType, IntType), IntType),
		&TypeVar{ID: 7},
	}
	for _, ty := range types {
		data, err := MarshalType(ty)
		if err != nil {
			t.Fatal(err)
		}
		back, err := UnmarshalType(data)
		if err != nil {
			t.Fatal(err)
		}
		if !TypesEqual(ty, back) {
			t.Errorf("got %s, want %s", back, ty)
		}
	}

	back, _ := UnmarshalType(mustMarshalType(t, IntType))
	if back != IntType {
		t.Error("base types should decode to the shared instance")
	}
}

func mustMarshalType(t *testing.T, ty Type) []byte {
	t.Helper()
	data, err := MarshalType(ty)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeExprMalformed(t *testing.T) {
	tests := []*ExprNode{
		nil,
		{Kind: 99},
		{Kind: nodeLet, Kids: []*ExprNode{{Kind: nodeInt}}},
		{Kind: nodeApply},
		{Kind: nodeLambda, Names: []string{"a", "b"}, Annots: []*TypeNode{nil}, Kids: []*ExprNode{{Kind: nodeInt}}},
	}
	for i, node := range tests {
		_, err := DecodeExpr(node)
		if !errors.Is(err, ErrMalformedNode) {
			t.Errorf("case %d: got %v, want ErrMalformedNode", i, err)
		}
	}
}

func TestUnmarshalExprGarbage(t *testing.T) {
	if _, err := UnmarshalExpr([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error for garbage input")
	}
}
