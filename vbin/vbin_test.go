package vbin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
)

func mustAdd(t *testing.T, cb *codebase.Codebase, name, src string) hash.Hash {
	t.Helper()
	e, err := compiler.ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	h, err := cb.AddTerm(name, e, nil)
	if err != nil {
		t.Fatalf("AddTerm(%s): %v", name, err)
	}
	return h
}

func sample(t *testing.T) *codebase.Codebase {
	t.Helper()
	cb := codebase.New()
	mustAdd(t, cb, "math.double", "fn(x) => x * 2")
	mustAdd(t, cb, "math.quad", "fn(x) => math.double(math.double(x))")
	mustAdd(t, cb, "math.fact", "fn(n) => if n <= 1 then 1 else n * math.fact(n - 1)")
	mustAdd(t, cb, "text.greeting", `"hello world"`)
	mustAdd(t, cb, "text.len", "fn(s) => length(s)")
	mustAdd(t, cb, "half", "fn(x) => toFloat(x) / 2.0")
	mustAdd(t, cb, "negzero", "-0.0")
	return cb
}

func save(t *testing.T, cb *codebase.Codebase) *Storage {
	t.Helper()
	s := Open(filepath.Join(t.TempDir(), "code.vbin"))
	if err := s.SaveFull(cb); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	cb := sample(t)
	s := save(t, cb)

	loaded, err := s.LoadFull()
	if err != nil {
		t.Fatal(err)
	}
	if !cb.Equal(loaded) {
		t.Fatal("loaded codebase differs from the saved one")
	}
	for _, term := range loaded.Terms() {
		if term.Rehash() != term.Hash {
			t.Errorf("%s: stored content does not hash to its key", term.Name)
		}
	}
}

func TestRoundTripEmpty(t *testing.T) {
	s := save(t, codebase.New())
	loaded, err := s.LoadFull()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 0 || len(loaded.Names()) != 0 {
		t.Errorf("got %d terms", loaded.Len())
	}
}

func TestRetrieveWithDependencies(t *testing.T) {
	cb := codebase.New()
	var hs []hash.Hash
	for i := range 8 {
		hs = append(hs, mustAdd(t, cb, fmt.Sprintf("filler%d", i), fmt.Sprint(i*11)))
	}
	y := mustAdd(t, cb, "y", "fn(a) => a + filler3")
	x := mustAdd(t, cb, "x", "fn(a) => y(a) * 2")
	if cb.Len() != 10 {
		t.Fatalf("setup: %d terms", cb.Len())
	}
	s := save(t, cb)

	part, err := s.RetrieveWithDependencies(x)
	if err != nil {
		t.Fatal(err)
	}
	want := []hash.Hash{x, y, hs[3]}
	hash.Sort(want)
	if got := part.Hashes(); !slices.Equal(got, want) {
		t.Errorf("got %d terms %v, want %v", len(got), got, want)
	}
	if h, ok := part.GetTermByName("filler3"); !ok || h.Hash != hs[3] {
		t.Error("names bound to retrieved terms should come along")
	}
	if _, ok := part.GetTermByName("filler4"); ok {
		t.Error("unrelated names should not be loaded")
	}

	var nf *codebase.NotFoundError
	if _, err := s.RetrieveWithDependencies(hash.Hash{1, 2, 3}); !errors.As(err, &nf) {
		t.Errorf("unknown hash: got %v, want *NotFoundError", err)
	}
}

func TestRetrieveNamespace(t *testing.T) {
	s := save(t, sample(t))

	tests := []struct {
		ns    string
		names []string
	}{
		{"math", []string{"math.double", "math.fact", "math.quad"}},
		{"text", []string{"text.greeting", "text.len"}},
		{"ma", nil},
		{"", []string{"half", "math.double", "math.fact", "math.quad", "negzero", "text.greeting", "text.len"}},
	}
	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			part, err := s.RetrieveNamespace(tt.ns)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, n := range part.Names() {
				got = append(got, n.Name)
			}
			if !slices.Equal(got, tt.names) {
				t.Errorf("got %v, want %v", got, tt.names)
			}
			if part.Len() != len(tt.names) {
				t.Errorf("got %d terms, want %d", part.Len(), len(tt.names))
			}
		})
	}
}

func TestStats(t *testing.T) {
	cb := codebase.New()
	mustAdd(t, cb, "a", "1")
	mustAdd(t, cb, "b", "2")
	mustAdd(t, cb, "m.inc", "fn(x) => x + 1")
	mustAdd(t, cb, "m.n.dec", "fn(x) => x - 1")
	mustAdd(t, cb, "m.n.name", `"vela"`)

	s := save(t, cb)
	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	fi, _ := os.Stat(s.Path())
	if st.TermCount != 5 || st.TotalDefinitions != 5 {
		t.Errorf("counts: %+v", st)
	}
	// Int, (Int) -> Int, String
	if st.TypeCount != 3 {
		t.Errorf("TypeCount: got %d, want 3", st.TypeCount)
	}
	// root, m, m.n
	if st.NamespaceCount != 3 {
		t.Errorf("NamespaceCount: got %d, want 3", st.NamespaceCount)
	}
	if st.TotalSize != fi.Size() {
		t.Errorf("TotalSize: got %d, want %d", st.TotalSize, fi.Size())
	}
	if st.HashVersion != hash.HashVersion || st.UpdatedAt.IsZero() || st.CreatedAt.IsZero() {
		t.Errorf("meta: %+v", st)
	}
}

func TestCreatedAtSurvivesResave(t *testing.T) {
	cb := sample(t)
	s := Open(filepath.Join(t.TempDir(), "code.vbin"))
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return first }
	if err := s.SaveFull(cb); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadFull()
	if err != nil {
		t.Fatal(err)
	}
	second := first.Add(time.Hour)
	s.now = func() time.Time { return second }
	if err := s.SaveFull(loaded); err != nil {
		t.Fatal(err)
	}
	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if !st.CreatedAt.Equal(first) || !st.UpdatedAt.Equal(second) {
		t.Errorf("created %v updated %v", st.CreatedAt, st.UpdatedAt)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "absent.vbin"))
	_, err := s.LoadFull()
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "open" {
		t.Fatalf("got %v, want *StorageError", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("a missing file should match fs.ErrNotExist")
	}
}

func TestFormatErrors(t *testing.T) {
	good, err := encodeSnapshot(sample(t), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { copy(b, "NOPE"); return b }, ErrBadMagic},
		{"future version", func(b []byte) []byte { binary.BigEndian.PutUint32(b[4:], Version+1); return b }, ErrVersionMismatch},
		{"truncated", func(b []byte) []byte { return b[:len(b)/2] }, ErrCorrupt},
		{"short header", func(b []byte) []byte { return b[:10] }, ErrCorrupt},
		{"index past end", func(b []byte) []byte { binary.BigEndian.PutUint64(b[20:], uint64(len(b))); return b }, ErrCorrupt},
		{"term count past end", func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[12:], 1<<24-1)
			return b
		}, ErrCorrupt},
		{"wrapping index offset", func(b []byte) []byte {
			n := uint64(1<<32 - 1)
			binary.BigEndian.PutUint32(b[12:], uint32(n))
			// IndexOffset + n*indexEntrySize wraps around to HeaderSize.
			binary.BigEndian.PutUint64(b[20:], HeaderSize-n*indexEntrySize)
			return b
		}, ErrCorrupt},
		{"wrapping meta section", func(b []byte) []byte {
			binary.BigEndian.PutUint64(b[36:], 1<<64-16)
			binary.BigEndian.PutUint32(b[44:], 32)
			return b
		}, ErrCorrupt},
		{"tampered body", func(b []byte) []byte {
			i := bytes.Index(b, []byte("hello world"))
			b[i] = 'j'
			return b
		}, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "code.vbin")
			if err := os.WriteFile(path, tt.mutate(slices.Clone(good)), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Open(path).LoadFull()
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("got %v, want *FormatError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.vbin")
	s := Open(path)
	if err := s.SaveFull(sample(t)); err != nil {
		t.Fatal(err)
	}
	small := codebase.New()
	mustAdd(t, small, "only", "1")
	if err := s.SaveFull(small); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadFull()
	if err != nil {
		t.Fatal(err)
	}
	if !small.Equal(loaded) {
		t.Error("second save should replace the first")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestManagerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.vbin")
	m := codebase.NewManager(path, codebase.WithStorage(Open(path)))
	if err := m.Load(); err != nil {
		t.Fatalf("load of a fresh path: %v", err)
	}
	m.CreateBranch("main")
	m.Checkout("main")
	s, _ := m.OpenSession("main")
	e, _ := compiler.ParseExpr("fn(x) => x * x")
	s.AddDefinition("square", e)
	head, err := m.Commit(s, "main")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	again := codebase.NewManager(path, codebase.WithStorage(Open(path)))
	if err := again.Load(); err != nil {
		t.Fatal(err)
	}
	if again.StateHash() != head {
		t.Error("checked-out bindings should be restored from the snapshot")
	}
	if !m.Codebase().Equal(again.Codebase()) {
		t.Error("codebase should survive the round trip")
	}
}
