package vbin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
)

type indexEntry struct {
	hash   hash.Hash
	offset uint64
	length uint32
}

// encodeSnapshot serializes cb into a complete VBin image. The header is
// written first with zero offsets and patched once the sections are laid
// out.
func encodeSnapshot(cb *codebase.Codebase, now time.Time) ([]byte, error) {
	terms := cb.Terms() // sorted by hash
	names := cb.Names() // sorted by name

	var buf bytes.Buffer
	hdr := Header{Magic: Magic, Version: Version}
	buf.Write(hdr.encode())

	index := make([]indexEntry, 0, len(terms))
	for _, t := range terms {
		rec, err := encodeRecord(t)
		if err != nil {
			return nil, err
		}
		index = append(index, indexEntry{hash: t.Hash, offset: uint64(buf.Len()), length: uint32(len(rec))})
		buf.Write(rec)
	}

	hdr.IndexOffset = uint64(buf.Len())
	hdr.TermCount = uint32(len(index))
	for _, e := range index {
		buf.Write(e.hash[:])
		buf.Write(binary.BigEndian.AppendUint64(nil, e.offset))
		buf.Write(binary.BigEndian.AppendUint32(nil, e.length))
	}

	hdr.NameTableOffset = uint64(buf.Len())
	hdr.NameCount = uint32(len(names))
	for _, n := range names {
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(n.Name))))
		buf.WriteString(n.Name)
		buf.Write(n.Hash[:])
	}

	md := cb.Metadata()
	created := md.CreatedAt
	if created.IsZero() {
		created = now
	}
	m := meta{
		CreatedAt:       toUnixNano(created),
		UpdatedAt:       toUnixNano(now),
		TermCount:       len(terms),
		TypeCount:       countTypes(terms),
		NamespaceCount:  countNamespaces(names),
		DefinitionCount: len(names),
		HashVersion:     hash.HashVersion,
	}
	metaBytes, err := compiler.CBOREncMode().Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	hdr.MetaOffset = uint64(buf.Len())
	hdr.MetaLength = uint32(len(metaBytes))
	buf.Write(metaBytes)

	out := buf.Bytes()
	copy(out[:HeaderSize], hdr.encode())
	return out, nil
}

func encodeRecord(t *codebase.Term) ([]byte, error) {
	body := recordBody{
		Name: t.Name,
		Expr: compiler.EncodeExpr(t.Expr),
		Refs: t.Refs,
	}
	if t.Type != nil {
		body.Type = compiler.EncodeType(t.Type)
	}
	data, err := compiler.CBOREncMode().Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("encode term %s: %w", t.Hash.Short(), err)
	}

	rec := make([]byte, 0, 8+len(t.Dependencies)*hash.Size+len(data))
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(t.Dependencies)))
	for _, d := range t.Dependencies {
		rec = append(rec, d[:]...)
	}
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(data)))
	return append(rec, data...), nil
}

// countTypes returns the number of distinct type signatures.
func countTypes(terms []*codebase.Term) int {
	seen := make(map[string]struct{})
	for _, t := range terms {
		if t.Type != nil {
			seen[t.Type.String()] = struct{}{}
		}
	}
	return len(seen)
}

// countNamespaces returns the number of distinct dotted prefixes of the
// bound names, including every intermediate prefix and the root.
func countNamespaces(names []codebase.NameBinding) int {
	seen := map[string]struct{}{"": {}}
	for _, n := range names {
		for ns := namespaceOf(n.Name); ns != ""; ns = namespaceOf(ns) {
			seen[ns] = struct{}{}
		}
	}
	return len(seen)
}
