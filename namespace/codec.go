package namespace

import (
	"errors"
	"fmt"

	"github.com/chazu/vela/compiler"
	"github.com/fxamacker/cbor/v2"
)

const (
	contentValue    = 0
	contentFunction = 1
)

// commandRecord is the CBOR form of a command.
type commandRecord struct {
	Kind        string             `cbor:"1,keyasint"`
	Namespace   []string           `cbor:"2,keyasint,omitempty"`
	Name        string             `cbor:"3,keyasint,omitempty"`
	ContentKind uint8              `cbor:"4,keyasint,omitempty"`
	Expr        *compiler.ExprNode `cbor:"5,keyasint,omitempty"`
	Signature   *compiler.TypeNode `cbor:"6,keyasint,omitempty"`
	Metadata    map[string]string  `cbor:"7,keyasint,omitempty"`
	ToNamespace []string           `cbor:"8,keyasint,omitempty"`
	ToName      string             `cbor:"9,keyasint,omitempty"`
}

var errUnknownCommand = errors.New("unknown command kind")

// MarshalCommand encodes a command as CBOR.
func MarshalCommand(cmd Command) ([]byte, error) {
	rec := commandRecord{Kind: cmd.commandName()}
	switch c := cmd.(type) {
	case AddDefinition:
		rec.Namespace, rec.Name = c.Path.Namespace, c.Path.Name
		if _, ok := c.Content.(Function); ok {
			rec.ContentKind = contentFunction
		}
		rec.Expr = compiler.EncodeExpr(c.Content.Expr())
		if c.Signature != nil {
			rec.Signature = compiler.EncodeType(c.Signature)
		}
		rec.Metadata = c.Metadata
	case RemoveDefinition:
		rec.Namespace, rec.Name = c.Path.Namespace, c.Path.Name
	case RenameDefinition:
		rec.Namespace, rec.Name = c.From.Namespace, c.From.Name
		rec.ToNamespace, rec.ToName = c.To.Namespace, c.To.Name
	case CreateNamespace:
		rec.Namespace = c.Namespace
	case UseNamespace:
		rec.Namespace = c.Namespace
	default:
		return nil, fmt.Errorf("%w: %T", errUnknownCommand, cmd)
	}
	return compiler.CBOREncMode().Marshal(&rec)
}

// UnmarshalCommand decodes a command written by MarshalCommand.
func UnmarshalCommand(data []byte) (Command, error) {
	var rec commandRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	path := DefinitionPath{Namespace: Path(rec.Namespace), Name: rec.Name}
	switch rec.Kind {
	case "add":
		expr, err := compiler.DecodeExpr(rec.Expr)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		cmd := AddDefinition{Path: path, Metadata: rec.Metadata, Content: Value{Body: expr}}
		if rec.ContentKind == contentFunction {
			lam, ok := expr.(*compiler.Lambda)
			if !ok {
				return nil, fmt.Errorf("decode %s: function content is %T", path, expr)
			}
			cmd.Content = Function{Params: lam.Params, Result: lam.Result, Body: lam.Body}
		}
		if rec.Signature != nil {
			if cmd.Signature, err = compiler.DecodeType(rec.Signature); err != nil {
				return nil, fmt.Errorf("decode %s signature: %w", path, err)
			}
		}
		return cmd, nil
	case "remove":
		return RemoveDefinition{Path: path}, nil
	case "rename":
		return RenameDefinition{From: path, To: DefinitionPath{Namespace: Path(rec.ToNamespace), Name: rec.ToName}}, nil
	case "mkns":
		return CreateNamespace{Namespace: Path(rec.Namespace)}, nil
	case "cd":
		return UseNamespace{Namespace: Path(rec.Namespace)}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownCommand, rec.Kind)
}
