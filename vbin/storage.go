package vbin

import (
	"fmt"
	"os"
	"time"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler/hash"
)

// Storage is a VBin file on disk. Every operation opens the file afresh, so
// a Storage is safe to share; writers must still be serialized by the
// caller.
type Storage struct {
	path string
	now  func() time.Time
}

var _ codebase.Storage = (*Storage)(nil)

// Open returns a Storage for path. The file is not touched until the first
// operation.
func Open(path string) *Storage {
	return &Storage{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path returns the snapshot path.
func (s *Storage) Path() string { return s.path }

// Stats summarizes a snapshot without decoding any term.
type Stats struct {
	TermCount        int
	TypeCount        int
	TotalDefinitions int
	NamespaceCount   int
	TotalSize        int64
	HashVersion      uint8
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SaveFull replaces the file with a snapshot of cb. The previous file stays
// intact if anything fails.
func (s *Storage) SaveFull(cb *codebase.Codebase) error {
	data, err := encodeSnapshot(cb, s.now())
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	err = codebase.WriteFileAtomic(s.path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	log.Infof("saved %d terms to %s (%d bytes)", cb.Len(), s.path, len(data))
	return nil
}

// LoadFull decodes every term and name in the file.
func (s *Storage) LoadFull() (*codebase.Codebase, error) {
	rd, f, err := openReader(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := rd.index()
	if err != nil {
		return nil, err
	}
	terms := make([]*codebase.Term, 0, len(entries))
	for _, e := range entries {
		t, err := rd.term(e)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if err := checkClosed(terms); err != nil {
		return nil, err
	}
	names, err := rd.names(nil)
	if err != nil {
		return nil, err
	}
	if err := checkBound(names, terms); err != nil {
		return nil, err
	}
	m, err := rd.metadata()
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d terms, %d names from %s", len(terms), len(names), s.path)
	return codebase.Restore(terms, names, metadataOf(m)), nil
}

// RetrieveWithDependencies loads the term h and its transitive
// dependencies only. Names bound to any loaded term come along.
func (s *Storage) RetrieveWithDependencies(h hash.Hash) (*codebase.Codebase, error) {
	rd, f, err := openReader(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, ok, err := rd.find(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &codebase.NotFoundError{Kind: "term", Key: h.String()}
	}

	closure := map[hash.Hash]indexEntry{h: root}
	order := []indexEntry{root}
	for queue := []indexEntry{root}; len(queue) > 0; {
		e := queue[0]
		queue = queue[1:]
		deps, err := rd.dependencies(e)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if _, seen := closure[d]; seen {
				continue
			}
			de, ok, err := rd.find(d)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &codebase.DependencyError{From: e.hash, Missing: d}
			}
			closure[d] = de
			order = append(order, de)
			queue = append(queue, de)
		}
	}

	terms := make([]*codebase.Term, 0, len(order))
	for _, e := range order {
		t, err := rd.term(e)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	names, err := rd.names(nil)
	if err != nil {
		return nil, err
	}
	for name, target := range names {
		if _, ok := closure[target]; !ok {
			delete(names, name)
		}
	}
	m, err := rd.metadata()
	if err != nil {
		return nil, err
	}
	log.Debugf("retrieved %s with %d dependencies", h.Short(), len(terms)-1)
	return codebase.Restore(terms, names, metadataOf(m)), nil
}

// RetrieveNamespace loads the names under the dotted prefix ns together
// with the terms they bind. The empty prefix selects every name. Only the
// matching names are carried over; dependencies outside the namespace are
// not loaded.
func (s *Storage) RetrieveNamespace(ns string) (*codebase.Codebase, error) {
	rd, f, err := openReader(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := rd.names(func(name string) bool { return inNamespace(name, ns) })
	if err != nil {
		return nil, err
	}
	var terms []*codebase.Term
	loaded := make(map[hash.Hash]bool)
	for name, h := range names {
		if loaded[h] {
			continue
		}
		e, ok, err := rd.find(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, corrupt("name %s bound to missing term %s", name, h.Short())
		}
		t, err := rd.term(e)
		if err != nil {
			return nil, err
		}
		loaded[h] = true
		terms = append(terms, t)
	}
	m, err := rd.metadata()
	if err != nil {
		return nil, err
	}
	log.Debugf("retrieved namespace %q: %d names, %d terms", ns, len(names), len(terms))
	return codebase.Restore(terms, names, metadataOf(m)), nil
}

// Stats reads the header and the meta section.
func (s *Storage) Stats() (*Stats, error) {
	rd, f, err := openReader(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := rd.metadata()
	if err != nil {
		return nil, err
	}
	return &Stats{
		TermCount:        int(rd.hdr.TermCount),
		TypeCount:        m.TypeCount,
		TotalDefinitions: m.DefinitionCount,
		NamespaceCount:   m.NamespaceCount,
		TotalSize:        rd.size,
		HashVersion:      m.HashVersion,
		CreatedAt:        fromUnixNano(m.CreatedAt),
		UpdatedAt:        fromUnixNano(m.UpdatedAt),
	}, nil
}

func metadataOf(m *meta) codebase.Metadata {
	return codebase.Metadata{CreatedAt: fromUnixNano(m.CreatedAt), UpdatedAt: fromUnixNano(m.UpdatedAt)}
}

// checkClosed verifies that every recorded dependency is present.
func checkClosed(terms []*codebase.Term) error {
	present := make(map[hash.Hash]bool, len(terms))
	for _, t := range terms {
		present[t.Hash] = true
	}
	for _, t := range terms {
		for _, d := range t.Dependencies {
			if !present[d] {
				return &FormatError{
					Reason: fmt.Sprintf("term %s", t.Hash.Short()),
					Err:    fmt.Errorf("%w: %w", ErrCorrupt, &codebase.DependencyError{From: t.Hash, Missing: d}),
				}
			}
		}
	}
	return nil
}

func checkBound(names map[string]hash.Hash, terms []*codebase.Term) error {
	present := make(map[hash.Hash]bool, len(terms))
	for _, t := range terms {
		present[t.Hash] = true
	}
	for name, h := range names {
		if !present[h] {
			return corrupt("name %s bound to missing term %s", name, h.Short())
		}
	}
	return nil
}
