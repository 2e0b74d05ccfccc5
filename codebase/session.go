package codebase

import (
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/google/uuid"
)

// SessionState is the lifecycle of an edit session.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionCommitted
	SessionDiscarded
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionCommitted:
		return "committed"
	case SessionDiscarded:
		return "discarded"
	}
	return "unknown"
}

// PendingDefinition is a definition waiting for commit.
type PendingDefinition struct {
	Name string
	Expr compiler.Expr
	Type compiler.Type // optional declared type
}

// EditSession accumulates definitions against a branch head. Nothing
// reaches the codebase until Manager.Commit.
type EditSession struct {
	ID         uuid.UUID
	BranchHead hash.Hash
	Pending    []PendingDefinition
	State      SessionState
}

// NewEditSession opens a session at head.
func NewEditSession(head hash.Hash) *EditSession {
	return &EditSession{ID: uuid.New(), BranchHead: head}
}

// AddDefinition appends a pending definition.
func (s *EditSession) AddDefinition(name string, expr compiler.Expr) error {
	return s.AddTypedDefinition(name, expr, nil)
}

// AddTypedDefinition appends a pending definition with a declared type.
func (s *EditSession) AddTypedDefinition(name string, expr compiler.Expr, ty compiler.Type) error {
	if s.State != SessionOpen {
		return ErrSessionClosed
	}
	s.Pending = append(s.Pending, PendingDefinition{Name: name, Expr: expr, Type: ty})
	return nil
}

// Discard ends the session without committing.
func (s *EditSession) Discard() error {
	if s.State != SessionOpen {
		return ErrSessionClosed
	}
	s.State = SessionDiscarded
	s.Pending = nil
	return nil
}
