// Package namespace layers hierarchical, dotted names over a codebase. All
// changes go through commands, which are replayable and can be persisted to
// an append-only log.
package namespace

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// ErrInvalidPath is wrapped by every path parsing failure.
var ErrInvalidPath = errors.New("invalid path")

// Path is a namespace path. The empty path is the root.
type Path []string

// Root returns the root namespace.
func Root() Path { return nil }

// ParsePath parses a dotted namespace path. "" and "." are the root.
func ParsePath(s string) (Path, error) {
	if s == "" || s == "." {
		return Root(), nil
	}
	segs := strings.Split(s, ".")
	for _, seg := range segs {
		if !validSegment(seg) {
			return nil, fmt.Errorf("%w: %q has bad segment %q", ErrInvalidPath, s, seg)
		}
	}
	return Path(segs), nil
}

// MustParsePath is ParsePath that panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i, r := range seg {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func (p Path) IsRoot() bool { return len(p) == 0 }

func (p Path) String() string { return strings.Join(p, ".") }

// Child returns p extended by seg.
func (p Path) Child(seg string) Path {
	return append(slices.Clip(p), seg)
}

// Parent returns p without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return p[:len(p)-1]
}

// Contains reports whether o equals p or lies below it.
func (p Path) Contains(o Path) bool {
	return len(o) >= len(p) && slices.Equal(p, o[:len(p)])
}

func (p Path) Equal(o Path) bool { return slices.Equal(p, o) }

// Qualify returns the fully qualified name of name inside p.
func (p Path) Qualify(name string) string {
	if p.IsRoot() {
		return name
	}
	return p.String() + "." + name
}

// DefinitionPath locates a definition: a namespace plus a bare name.
type DefinitionPath struct {
	Namespace Path
	Name      string
}

// ParseDefinitionPath splits "a.b.name" into namespace a.b and name.
func ParseDefinitionPath(s string) (DefinitionPath, error) {
	i := strings.LastIndexByte(s, '.')
	ns, name := "", s
	if i >= 0 {
		ns, name = s[:i], s[i+1:]
	}
	if !validSegment(name) {
		return DefinitionPath{}, fmt.Errorf("%w: %q has bad name %q", ErrInvalidPath, s, name)
	}
	p, err := ParsePath(ns)
	if err != nil {
		return DefinitionPath{}, err
	}
	return DefinitionPath{Namespace: p, Name: name}, nil
}

// Qualified returns the dotted name used in the codebase.
func (d DefinitionPath) Qualified() string { return d.Namespace.Qualify(d.Name) }

func (d DefinitionPath) String() string { return d.Qualified() }

func (d DefinitionPath) validate() error {
	if !validSegment(d.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidPath, d.Name)
	}
	for _, seg := range d.Namespace {
		if !validSegment(seg) {
			return fmt.Errorf("%w: bad segment %q", ErrInvalidPath, seg)
		}
	}
	return nil
}
