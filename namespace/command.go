package namespace

import (
	"fmt"

	"github.com/chazu/vela/compiler"
)

// Content is what a definition binds: a Value or a Function.
type Content interface {
	// Expr returns the expression stored in the codebase.
	Expr() compiler.Expr
	content()
}

// Value is a plain expression.
type Value struct {
	Body compiler.Expr
}

func (v Value) Expr() compiler.Expr { return v.Body }
func (Value) content()              {}

// Function is a parameter list and a body. It is stored as a lambda.
type Function struct {
	Params []compiler.Param
	Result compiler.TypeExpr // optional
	Body   compiler.Expr
}

func (f Function) Expr() compiler.Expr {
	return &compiler.Lambda{SpanVal: f.Body.Span(), Params: f.Params, Result: f.Result, Body: f.Body}
}

func (Function) content() {}

// ContentOf converts a parsed definition into its content.
func ContentOf(def *compiler.Definition) Content {
	if def.IsFunction() {
		return Function{Params: def.Params, Result: def.Result, Body: def.Body}
	}
	return Value{Body: def.Body}
}

// Command is an entry in the namespace command log.
type Command interface {
	commandName() string
}

// AddDefinition binds content at Path. Signature, when set, is unified
// with the inferred type.
type AddDefinition struct {
	Path      DefinitionPath
	Content   Content
	Signature compiler.Type
	Metadata  map[string]string
}

// RemoveDefinition unbinds Path. The term stays in the codebase.
type RemoveDefinition struct {
	Path DefinitionPath
}

// RenameDefinition moves the binding at From to To. The term and its
// hash are unchanged.
type RenameDefinition struct {
	From DefinitionPath
	To   DefinitionPath
}

// CreateNamespace registers an empty namespace.
type CreateNamespace struct {
	Namespace Path
}

// UseNamespace changes the current namespace, creating it if needed.
type UseNamespace struct {
	Namespace Path
}

func (AddDefinition) commandName() string    { return "add" }
func (RemoveDefinition) commandName() string { return "remove" }
func (RenameDefinition) commandName() string { return "rename" }
func (CreateNamespace) commandName() string  { return "mkns" }
func (UseNamespace) commandName() string     { return "cd" }

func describe(cmd Command) string {
	switch c := cmd.(type) {
	case AddDefinition:
		return "add " + c.Path.Qualified()
	case RemoveDefinition:
		return "remove " + c.Path.Qualified()
	case RenameDefinition:
		return "rename " + c.From.Qualified() + " " + c.To.Qualified()
	case CreateNamespace:
		return "mkns " + c.Namespace.String()
	case UseNamespace:
		return "cd " + c.Namespace.String()
	}
	return fmt.Sprintf("%T", cmd)
}

// CommandError reports a command that could not be applied. The store is
// unchanged.
type CommandError struct {
	Command Command
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("namespace: %s: %v", describe(e.Command), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
