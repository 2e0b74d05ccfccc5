package vbin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/fxamacker/cbor/v2"
)

// reader gives random access to an open snapshot.
type reader struct {
	path string
	r    io.ReaderAt
	size int64
	hdr  *Header
}

func openReader(path string) (*reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, &StorageError{Op: "stat", Path: path, Err: err}
	}
	rd, err := newReader(path, f, fi.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return rd, f, nil
}

func newReader(path string, r io.ReaderAt, size int64) (*reader, error) {
	rd := &reader{path: path, r: r, size: size}
	buf := make([]byte, HeaderSize)
	if size < HeaderSize {
		return nil, corrupt("file of %d bytes is shorter than the header", size)
	}
	if err := rd.readAt(buf, 0); err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(buf, size)
	if err != nil {
		return nil, err
	}
	rd.hdr = hdr
	return rd, nil
}

func (rd *reader) readAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > rd.size {
		return corrupt("read [%d, +%d) outside file of %d bytes", off, len(buf), rd.size)
	}
	if _, err := rd.r.ReadAt(buf, off); err != nil {
		return &StorageError{Op: "read", Path: rd.path, Err: err}
	}
	return nil
}

func (rd *reader) entryAt(i int) (indexEntry, error) {
	buf := make([]byte, indexEntrySize)
	if err := rd.readAt(buf, int64(rd.hdr.IndexOffset)+int64(i)*indexEntrySize); err != nil {
		return indexEntry{}, err
	}
	return decodeEntry(buf)
}

func decodeEntry(buf []byte) (indexEntry, error) {
	var e indexEntry
	copy(e.hash[:], buf[:hash.Size])
	e.offset = binary.BigEndian.Uint64(buf[hash.Size:])
	e.length = binary.BigEndian.Uint32(buf[hash.Size+8:])
	if e.offset < HeaderSize {
		return e, corrupt("record offset %d inside header", e.offset)
	}
	return e, nil
}

// find binary-searches the index for h.
func (rd *reader) find(h hash.Hash) (indexEntry, bool, error) {
	lo, hi := 0, int(rd.hdr.TermCount)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		e, err := rd.entryAt(mid)
		if err != nil {
			return indexEntry{}, false, err
		}
		switch c := hash.Compare(e.hash, h); {
		case c == 0:
			return e, true, nil
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return indexEntry{}, false, nil
}

// index reads the whole hash index in one pass.
func (rd *reader) index() ([]indexEntry, error) {
	n := int(rd.hdr.TermCount)
	buf := make([]byte, n*indexEntrySize)
	if err := rd.readAt(buf, int64(rd.hdr.IndexOffset)); err != nil {
		return nil, err
	}
	out := make([]indexEntry, n)
	for i := range out {
		e, err := decodeEntry(buf[i*indexEntrySize:])
		if err != nil {
			return nil, err
		}
		if i > 0 && hash.Compare(out[i-1].hash, e.hash) >= 0 {
			return nil, corrupt("index not sorted at entry %d", i)
		}
		out[i] = e
	}
	return out, nil
}

// dependencies reads only the dependency prefix of a record.
func (rd *reader) dependencies(e indexEntry) ([]hash.Hash, error) {
	var cnt [4]byte
	if err := rd.readAt(cnt[:], int64(e.offset)); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(cnt[:])
	if uint64(n)*hash.Size+8 > uint64(e.length) {
		return nil, corrupt("term %s: %d dependencies overflow a %d byte record", e.hash.Short(), n, e.length)
	}
	buf := make([]byte, int(n)*hash.Size)
	if err := rd.readAt(buf, int64(e.offset)+4); err != nil {
		return nil, err
	}
	deps := make([]hash.Hash, n)
	for i := range deps {
		copy(deps[i][:], buf[i*hash.Size:])
	}
	return deps, nil
}

// term reads and decodes a full record, verifying its content hash.
func (rd *reader) term(e indexEntry) (*codebase.Term, error) {
	buf := make([]byte, e.length)
	if err := rd.readAt(buf, int64(e.offset)); err != nil {
		return nil, err
	}
	return decodeRecord(e.hash, buf)
}

func decodeRecord(h hash.Hash, rec []byte) (*codebase.Term, error) {
	if len(rec) < 8 {
		return nil, corrupt("term %s: short record", h.Short())
	}
	n := int(binary.BigEndian.Uint32(rec))
	pos := 4
	if n < 0 || pos+n*hash.Size+4 > len(rec) {
		return nil, corrupt("term %s: dependency count %d overflows record", h.Short(), n)
	}
	var deps []hash.Hash
	if n > 0 {
		deps = make([]hash.Hash, n)
		for i := range deps {
			copy(deps[i][:], rec[pos:])
			pos += hash.Size
		}
	}
	bodyLen := int(binary.BigEndian.Uint32(rec[pos:]))
	pos += 4
	if pos+bodyLen != len(rec) {
		return nil, corrupt("term %s: body length %d does not match record", h.Short(), bodyLen)
	}

	var body recordBody
	if err := cbor.Unmarshal(rec[pos:], &body); err != nil {
		return nil, &FormatError{Reason: "decode term " + h.Short(), Err: errors.Join(ErrCorrupt, err)}
	}
	expr, err := compiler.DecodeExpr(body.Expr)
	if err != nil {
		return nil, &FormatError{Reason: "decode term " + h.Short(), Err: errors.Join(ErrCorrupt, err)}
	}
	var ty compiler.Type
	if body.Type != nil {
		if ty, err = compiler.DecodeType(body.Type); err != nil {
			return nil, &FormatError{Reason: "decode type of " + h.Short(), Err: errors.Join(ErrCorrupt, err)}
		}
	}

	t := &codebase.Term{
		Hash:         h,
		Name:         body.Name,
		Expr:         expr,
		Type:         ty,
		Dependencies: deps,
		Refs:         body.Refs,
	}
	if got := t.Rehash(); got != h {
		return nil, corrupt("term %s: content hashes to %s", h.Short(), got.Short())
	}
	return t, nil
}

// names reads the name table, keeping entries accepted by keep.
func (rd *reader) names(keep func(name string) bool) (map[string]hash.Hash, error) {
	start, end := int64(rd.hdr.NameTableOffset), int64(rd.hdr.MetaOffset)
	buf := make([]byte, end-start)
	if err := rd.readAt(buf, start); err != nil {
		return nil, err
	}
	out := make(map[string]hash.Hash)
	r := bytes.NewReader(buf)
	prev := ""
	for i := 0; i < int(rd.hdr.NameCount); i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, corrupt("name table truncated at entry %d", i)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxNameLen {
			return nil, corrupt("name %d has length %d", i, n)
		}
		entry := make([]byte, int(n)+hash.Size)
		if _, err := io.ReadFull(r, entry); err != nil {
			return nil, corrupt("name table truncated at entry %d", i)
		}
		name := string(entry[:n])
		if i > 0 && name <= prev {
			return nil, corrupt("name table not sorted at %q", name)
		}
		prev = name
		if keep == nil || keep(name) {
			var h hash.Hash
			copy(h[:], entry[n:])
			out[name] = h
		}
	}
	return out, nil
}

// metadata decodes the meta section.
func (rd *reader) metadata() (*meta, error) {
	buf := make([]byte, rd.hdr.MetaLength)
	if err := rd.readAt(buf, int64(rd.hdr.MetaOffset)); err != nil {
		return nil, err
	}
	var m meta
	if err := cbor.Unmarshal(buf, &m); err != nil {
		return nil, &FormatError{Reason: "decode meta", Err: errors.Join(ErrCorrupt, err)}
	}
	return &m, nil
}
