package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every stored term hash.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Expression node tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagIntLiteral    byte = 0x01
	TagFloatLiteral  byte = 0x02
	TagStringLiteral byte = 0x03
	TagBoolLiteral   byte = 0x04

	// References
	TagSelfRef   byte = 0x08
	TagLocalRef  byte = 0x09 // de Bruijn (depth, slot)
	TagTermRef   byte = 0x0A // dependency hash
	TagGlobalRef byte = 0x0B // builtin or unresolved name

	// Structure
	TagLambda byte = 0x10
	TagApply  byte = 0x11
	TagLet    byte = 0x12
	TagIf     byte = 0x13
	TagBinary byte = 0x14
	TagUnary  byte = 0x15

	// Top level
	TagTerm   byte = 0x20
	TagNoType byte = 0x21

	// Types
	TagBaseType byte = 0x30
	TagFnType   byte = 0x31
	TagTypeVar  byte = 0x32
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagIntLiteral, TagFloatLiteral, TagStringLiteral, TagBoolLiteral,
	TagSelfRef, TagLocalRef, TagTermRef, TagGlobalRef,
	TagLambda, TagApply, TagLet, TagIf, TagBinary, TagUnary,
	TagTerm, TagNoType,
	TagBaseType, TagFnType, TagTypeVar,
}
