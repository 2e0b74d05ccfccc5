// Package codebase is the in-memory term store: content-addressed terms, the
// name index, forward and reverse dependency indices, and the branch and
// edit-session layer on top of them.
package codebase

import (
	"maps"
	"slices"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
)

// Term is an immutable stored definition.
type Term struct {
	Hash hash.Hash
	Name string // name of the first insertion, display only
	Expr compiler.Expr
	Type compiler.Type

	// Dependencies is the sorted set of hashes referenced by identifier.
	Dependencies []hash.Hash

	// Refs pins each referencing identifier to the hash it resolved to at
	// insertion time.
	Refs map[string]hash.Hash
}

// DependsOn reports whether t references h directly.
func (t *Term) DependsOn(h hash.Hash) bool {
	_, found := slices.BinarySearchFunc(t.Dependencies, h, hash.Compare)
	return found
}

// IsFunction reports whether the term's type is a function type.
func (t *Term) IsFunction() bool {
	return compiler.IsFunction(t.Type)
}

// Equal compares every stored field.
func (t *Term) Equal(o *Term) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Hash == o.Hash &&
		t.Name == o.Name &&
		compiler.TypesEqual(t.Type, o.Type) &&
		compiler.EqualExpr(t.Expr, o.Expr) &&
		slices.Equal(t.Dependencies, o.Dependencies) &&
		maps.Equal(t.Refs, o.Refs)
}

// TermInput describes a definition to insert.
type TermInput struct {
	Name    string   // qualified name; may be empty for anonymous terms
	Aliases []string // extra names bound to the same term
	Expr    compiler.Expr
	Type    compiler.Type // declared type; inferred when nil

	// Resolve maps free identifiers to stored terms. Defaults to the
	// codebase's current name bindings.
	Resolve hash.Resolver
}

func (in TermInput) selfNames() []string {
	var names []string
	if in.Name != "" {
		names = append(names, in.Name)
	}
	return append(names, in.Aliases...)
}

// dependencySet returns the sorted, de-duplicated values of refs.
func dependencySet(refs map[string]hash.Hash) []hash.Hash {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[hash.Hash]bool, len(refs))
	deps := make([]hash.Hash, 0, len(refs))
	for _, h := range refs {
		if !seen[h] {
			seen[h] = true
			deps = append(deps, h)
		}
	}
	hash.Sort(deps)
	return deps
}

// Rehash recomputes the content hash from the stored fields. Free
// identifiers that are neither pinned nor builtins are self-references.
func (t *Term) Rehash() hash.Hash {
	var self []string
	for _, name := range compiler.FreeVariables(t.Expr) {
		if _, pinned := t.Refs[name]; !pinned && !compiler.IsBuiltin(name) {
			self = append(self, name)
		}
	}
	node, _ := hash.NormalizeTerm(t.Expr, t.Type, self, func(name string) (hash.Hash, bool) {
		h, ok := t.Refs[name]
		return h, ok
	})
	return hash.Sum(hash.Serialize(node))
}
