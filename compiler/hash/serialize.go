package hash

import (
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint16=2B)
//   - Floats: IEEE 754 bits, big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Hashes: 32 raw bytes
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeInt64(v int64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, uint64(v))
}

func (s *serializer) writeFloat64(v float64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, math.Float64bits(v))
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HIntLiteral:
		s.writeByte(TagIntLiteral)
		s.writeInt64(n.Value)

	case *HFloatLiteral:
		s.writeByte(TagFloatLiteral)
		s.writeFloat64(n.Value)

	case *HStringLiteral:
		s.writeByte(TagStringLiteral)
		s.writeString(n.Value)

	case *HBoolLiteral:
		s.writeByte(TagBoolLiteral)
		if n.Value {
			s.writeByte(1)
		} else {
			s.writeByte(0)
		}

	case *HSelfRef:
		s.writeByte(TagSelfRef)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint16(n.Depth)
		s.writeUint16(n.Slot)

	case *HTermRef:
		s.writeByte(TagTermRef)
		s.buf = append(s.buf, n.Hash[:]...)

	case *HGlobalRef:
		s.writeByte(TagGlobalRef)
		s.writeString(n.Name)

	case *HLambda:
		s.writeByte(TagLambda)
		s.writeUint16(uint16(n.Arity))
		s.serializeNode(n.Body)

	case *HApply:
		s.writeByte(TagApply)
		s.serializeNode(n.Func)
		s.writeUint32(uint32(len(n.Args)))
		for _, a := range n.Args {
			s.serializeNode(a)
		}

	case *HLet:
		s.writeByte(TagLet)
		s.serializeNode(n.Value)
		s.serializeNode(n.Body)

	case *HIf:
		s.writeByte(TagIf)
		s.serializeNode(n.Cond)
		s.serializeNode(n.Then)
		s.serializeNode(n.Else)

	case *HBinary:
		s.writeByte(TagBinary)
		s.writeString(n.Op)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HUnary:
		s.writeByte(TagUnary)
		s.writeString(n.Op)
		s.serializeNode(n.Operand)

	case *HTerm:
		s.writeByte(TagTerm)
		s.serializeNode(n.Expr)
		if n.Type == nil {
			s.writeByte(TagNoType)
		} else {
			s.serializeType(n.Type)
		}
	}
}

func (s *serializer) serializeType(t HType) {
	switch ty := t.(type) {
	case *HBaseType:
		s.writeByte(TagBaseType)
		s.writeString(ty.Name)
	case *HFnType:
		s.writeByte(TagFnType)
		s.writeUint32(uint32(len(ty.Params)))
		for _, p := range ty.Params {
			s.serializeType(p)
		}
		s.serializeType(ty.Result)
	case *HTypeVar:
		s.writeByte(TagTypeVar)
		s.writeUint16(ty.Index)
	}
}
