package codebase

import (
	"errors"
	"fmt"

	"github.com/chazu/vela/compiler/hash"
)

// NotFoundError reports an unknown name, hash or branch.
type NotFoundError struct {
	Kind string // "term", "name", "branch", "state"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// DependencyError reports a dangling dependency edge.
type DependencyError struct {
	From    hash.Hash
	Missing hash.Hash
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("term %s depends on missing term %s", e.From.Short(), e.Missing.Short())
}

var (
	// ErrStaleHead is returned by Commit when the branch moved after the
	// session was opened.
	ErrStaleHead = errors.New("branch head moved since the session was opened")

	// ErrSessionClosed is returned when a committed or discarded session is used.
	ErrSessionClosed = errors.New("edit session is closed")

	// ErrBranchExists is returned when creating a branch that already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrNoStorage is returned by Load and Save on a manager without storage.
	ErrNoStorage = errors.New("no snapshot storage configured")
)
