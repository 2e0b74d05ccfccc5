package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/chazu/vela/compiler"
)

// Size is the length of a content hash in bytes.
const Size = sha256.Size

// Hash is the SHA-256 content hash of a term's canonical form.
type Hash [Size]byte

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex digits, for display.
func (h Hash) Short() string {
	return h.String()[:12]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare orders hashes bytewise.
func Compare(a, b Hash) int {
	return bytes.Compare(a[:], b[:])
}

// Sort orders hs in place.
func Sort(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool { return Compare(hs[i], hs[j]) < 0 })
}

// ParseError reports text that is not a 64-digit hex hash.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid hash %q: want %d hex digits", e.Input, 2*Size)
}

// ParseHex parses the String form of a hash. The input must be exactly 64
// hex digits; it is never padded or truncated.
func ParseHex(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*Size {
		return h, &ParseError{Input: s}
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, &ParseError{Input: s}
	}
	return h, nil
}

// Sum hashes raw bytes.
func Sum(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashTerm computes the content hash of a definition.
//
// The hash is computed over a deterministic serialization of the normalized
// expression followed by its type. Bound variables are de Bruijn indexed,
// the definition's own names become a self tag, and identifiers the
// resolver knows are replaced by their dependency hash. The display name
// never participates.
func HashTerm(expr compiler.Expr, ty compiler.Type, selfNames []string, resolve Resolver) Hash {
	term, _ := NormalizeTerm(expr, ty, selfNames, resolve)
	return Sum(Serialize(term))
}

// HashExpr hashes a bare expression with no resolver and no type.
func HashExpr(expr compiler.Expr) Hash {
	return HashTerm(expr, nil, nil, nil)
}
