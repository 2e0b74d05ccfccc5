// Package vbin reads and writes VBin snapshots: a single binary file holding
// every term of a codebase with a sorted hash index and a name table, so
// that single terms and their dependency closures can be loaded without
// decoding the whole file.
package vbin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.vbin")

// Magic identifies a VBin file.
var Magic = [4]byte{'V', 'B', 'I', 'N'}

// Version is the current format version.
// Version history:
//   - 1: initial layout (header, records, hash index, name table, meta)
const Version uint32 = 1

const (
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 64

	// indexEntrySize is hash + offset u64 + length u32.
	indexEntrySize = hash.Size + 8 + 4

	// maxNameLen bounds a single name in the name table.
	maxNameLen = 1 << 16
)

// Sentinel errors for format problems. FormatError wraps one of them.
var (
	ErrBadMagic        = errors.New("invalid magic number")
	ErrVersionMismatch = errors.New("unsupported format version")
	ErrCorrupt         = errors.New("corrupt snapshot")
)

// StorageError reports a failed file operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vbin: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FormatError reports a file whose contents cannot be decoded.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("vbin: %s: %v", e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func corrupt(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...), Err: ErrCorrupt}
}

// Header is the fixed-size file header.
type Header struct {
	Magic           [4]byte
	Version         uint32
	Flags           uint32
	TermCount       uint32
	NameCount       uint32
	IndexOffset     uint64
	NameTableOffset uint64
	MetaOffset      uint64
	MetaLength      uint32
}

func (h *Header) encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, h.Magic[:]...)
	buf = binary.BigEndian.AppendUint32(buf, h.Version)
	buf = binary.BigEndian.AppendUint32(buf, h.Flags)
	buf = binary.BigEndian.AppendUint32(buf, h.TermCount)
	buf = binary.BigEndian.AppendUint32(buf, h.NameCount)
	buf = binary.BigEndian.AppendUint64(buf, h.IndexOffset)
	buf = binary.BigEndian.AppendUint64(buf, h.NameTableOffset)
	buf = binary.BigEndian.AppendUint64(buf, h.MetaOffset)
	buf = binary.BigEndian.AppendUint32(buf, h.MetaLength)
	// Reserved.
	return append(buf, make([]byte, HeaderSize-len(buf))...)
}

// decodeHeader parses and validates a header against the file size.
func decodeHeader(buf []byte, size int64) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, corrupt("short header (%d bytes)", len(buf))
	}
	h := &Header{}
	copy(h.Magic[:], buf[0:4])
	if h.Magic != Magic {
		return nil, &FormatError{Reason: "read header", Err: fmt.Errorf("%w: got %q", ErrBadMagic, h.Magic[:])}
	}
	h.Version = binary.BigEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, &FormatError{Reason: "read header", Err: fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, Version)}
	}
	h.Flags = binary.BigEndian.Uint32(buf[8:])
	h.TermCount = binary.BigEndian.Uint32(buf[12:])
	h.NameCount = binary.BigEndian.Uint32(buf[16:])
	h.IndexOffset = binary.BigEndian.Uint64(buf[20:])
	h.NameTableOffset = binary.BigEndian.Uint64(buf[28:])
	h.MetaOffset = binary.BigEndian.Uint64(buf[36:])
	h.MetaLength = binary.BigEndian.Uint32(buf[44:])

	// Sections are checked by subtracting from the file size, so a crafted
	// header cannot wrap past the bounds and size a huge read buffer.
	fileSize := uint64(size)
	switch {
	case h.IndexOffset < HeaderSize || h.IndexOffset > fileSize ||
		uint64(h.TermCount) > (fileSize-h.IndexOffset)/indexEntrySize:
		return nil, corrupt("index of %d entries at %d outside file of %d bytes", h.TermCount, h.IndexOffset, size)
	case h.MetaOffset > fileSize || uint64(h.MetaLength) > fileSize-h.MetaOffset:
		return nil, corrupt("meta section [%d, +%d) outside file of %d bytes", h.MetaOffset, h.MetaLength, size)
	case h.NameTableOffset < h.IndexOffset+uint64(h.TermCount)*indexEntrySize || h.NameTableOffset > h.MetaOffset:
		return nil, corrupt("name table offset %d out of order", h.NameTableOffset)
	}
	return h, nil
}

// recordBody is the CBOR part of a term record.
type recordBody struct {
	Name string               `cbor:"1,keyasint,omitempty"`
	Expr *compiler.ExprNode   `cbor:"2,keyasint"`
	Type *compiler.TypeNode   `cbor:"3,keyasint,omitempty"`
	Refs map[string]hash.Hash `cbor:"4,keyasint,omitempty"`
}

// meta is the CBOR metadata section. Times are Unix nanoseconds.
type meta struct {
	CreatedAt       int64 `cbor:"1,keyasint"`
	UpdatedAt       int64 `cbor:"2,keyasint"`
	TermCount       int   `cbor:"3,keyasint"`
	TypeCount       int   `cbor:"4,keyasint"`
	NamespaceCount  int   `cbor:"5,keyasint"`
	DefinitionCount int   `cbor:"6,keyasint"`
	HashVersion     uint8 `cbor:"7,keyasint"`
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// namespaceOf returns the dotted prefix of a qualified name, "" for root.
func namespaceOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// inNamespace reports whether name lives in ns or below it.
func inNamespace(name, ns string) bool {
	return ns == "" || strings.HasPrefix(name, ns+".")
}
