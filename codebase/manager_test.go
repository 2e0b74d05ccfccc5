package codebase

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/vela/compiler/hash"
)

// memStorage keeps one snapshot in memory.
type memStorage struct {
	saved *Codebase
}

func (s *memStorage) SaveFull(cb *Codebase) error {
	s.saved = Restore(cb.Terms(), cb.Bindings(), cb.Metadata())
	return nil
}

func (s *memStorage) LoadFull() (*Codebase, error) {
	if s.saved == nil {
		return nil, fs.ErrNotExist
	}
	return Restore(s.saved.Terms(), s.saved.Bindings(), s.saved.Metadata()), nil
}

func TestCreateBranch(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "code.vbin"))
	b, err := m.CreateBranch("main")
	if err != nil {
		t.Fatal(err)
	}
	if b.Head != EmptyStateHash() {
		t.Error("a new branch should point at the empty state")
	}
	if _, err := m.CreateBranch("main"); !errors.Is(err, ErrBranchExists) {
		t.Errorf("duplicate branch: got %v", err)
	}
	if m.StateHash() != EmptyStateHash() {
		t.Error("an empty codebase has the empty state hash")
	}
}

func TestHashExprHex(t *testing.T) {
	m := NewManager("unused")
	a := m.HashExpr(parse(t, "fn(x) => x + 1"))
	b := m.HashExpr(parse(t, "fn(y)   =>   y+1"))
	if a != b || len(a) != 64 {
		t.Errorf("got %q and %q", a, b)
	}
	if _, err := hash.ParseHex(a); err != nil {
		t.Error(err)
	}
}

func TestSessionDoesNotTouchCodebaseUntilCommit(t *testing.T) {
	m := NewManager("unused")
	if _, err := m.CreateBranch("main"); err != nil {
		t.Fatal(err)
	}
	s, err := m.OpenSession("main")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddDefinition("two", parse(t, "2")); err != nil {
		t.Fatal(err)
	}
	if m.Codebase().Len() != 0 {
		t.Error("pending definitions must not reach the codebase")
	}
	if s.ID.String() == "" || s.State != SessionOpen {
		t.Errorf("session: %+v", s)
	}
}

func TestCommitAdvancesHead(t *testing.T) {
	m := NewManager("unused")
	m.CreateBranch("main")
	if err := m.Checkout("main"); err != nil {
		t.Fatal(err)
	}

	s, _ := m.OpenSession("main")
	s.AddDefinition("double", parse(t, "fn(x) => x * 2"))
	s.AddDefinition("quad", parse(t, "fn(x) => double(double(x))"))

	head, err := m.Commit(s, "main")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != SessionCommitted {
		t.Errorf("state: got %s", s.State)
	}
	b, _ := m.Branch("main")
	if b.Head != head || head == EmptyStateHash() {
		t.Error("branch head should advance to the new state")
	}
	if m.StateHash() != head {
		t.Error("checked-out branch bindings should match the head")
	}
	quad, ok := m.Codebase().GetTermByName("quad")
	if !ok {
		t.Fatal("quad not bound")
	}
	double, _ := m.Codebase().GetTermByName("double")
	if !quad.DependsOn(double.Hash) {
		t.Error("later pending definitions should see earlier ones")
	}

	if err := s.AddDefinition("late", parse(t, "1")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("add after commit: got %v", err)
	}
	if _, err := m.Commit(s, "main"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second commit: got %v", err)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	m := NewManager("unused")
	m.CreateBranch("main")
	s, _ := m.OpenSession("main")
	s.AddDefinition("ok", parse(t, "1"))
	s.AddDefinition("broken", parse(t, "ok + true"))

	if _, err := m.Commit(s, "main"); err == nil {
		t.Fatal("expected commit to fail")
	}
	if m.Codebase().Len() != 0 {
		t.Error("a failed commit must not store any term")
	}
	b, _ := m.Branch("main")
	if b.Head != EmptyStateHash() {
		t.Error("a failed commit must not move the branch")
	}
	if s.State != SessionOpen {
		t.Error("a failed commit leaves the session open")
	}
}

func TestCommitStaleHead(t *testing.T) {
	m := NewManager("unused")
	m.CreateBranch("main")
	first, _ := m.OpenSession("main")
	second, _ := m.OpenSession("main")

	first.AddDefinition("a", parse(t, "1"))
	if _, err := m.Commit(first, "main"); err != nil {
		t.Fatal(err)
	}
	second.AddDefinition("b", parse(t, "2"))
	if _, err := m.Commit(second, "main"); !errors.Is(err, ErrStaleHead) {
		t.Errorf("got %v, want ErrStaleHead", err)
	}
}

func TestDiscard(t *testing.T) {
	s := NewEditSession(EmptyStateHash())
	s.AddDefinition("x", parse(t, "1"))
	if err := s.Discard(); err != nil {
		t.Fatal(err)
	}
	if s.State != SessionDiscarded || s.Pending != nil {
		t.Errorf("got %+v", s)
	}
	if err := s.Discard(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second discard: got %v", err)
	}
}

func TestCheckoutSwitchesBindings(t *testing.T) {
	m := NewManager("unused")
	m.CreateBranch("main")
	m.CreateBranch("feature")

	s, _ := m.OpenSession("feature")
	s.AddDefinition("x", parse(t, "42"))
	if _, err := m.Commit(s, "feature"); err != nil {
		t.Fatal(err)
	}

	if err := m.Checkout("feature"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Codebase().GetTermByName("x"); !ok {
		t.Error("feature should bind x")
	}
	if err := m.Checkout("main"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Codebase().GetTermByName("x"); ok {
		t.Error("main should not bind x")
	}
	if m.Codebase().Len() != 1 {
		t.Error("switching branches keeps every term stored")
	}

	var nf *NotFoundError
	if err := m.Checkout("nope"); !errors.As(err, &nf) {
		t.Errorf("got %v, want *NotFoundError", err)
	}
}

func TestManagerSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.vbin")
	store := &memStorage{}

	m := NewManager(path, WithStorage(store))
	if err := m.Load(); err != nil {
		t.Fatalf("load with nothing saved: %v", err)
	}
	m.CreateBranch("main")
	m.Checkout("main")
	s, _ := m.OpenSession("main")
	s.AddDefinition("answer", parse(t, "42"))
	head, err := m.Commit(s, "main")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.SidecarPath()); err != nil {
		t.Fatalf("branch file not written: %v", err)
	}

	again := NewManager(path, WithStorage(store))
	if err := again.Load(); err != nil {
		t.Fatal(err)
	}
	b, err := again.Branch("main")
	if err != nil || b.Head != head {
		t.Errorf("branch after reload: %+v, %v", b, err)
	}
	if again.Current() != "main" {
		t.Errorf("current: got %q", again.Current())
	}
	if err := again.Checkout("main"); err != nil {
		t.Fatal(err)
	}
	if _, ok := again.Codebase().GetTermByName("answer"); !ok {
		t.Error("answer should survive the reload")
	}
}

func TestManagerWithoutStorage(t *testing.T) {
	m := NewManager("unused")
	if err := m.Save(); !errors.Is(err, ErrNoStorage) {
		t.Errorf("Save: got %v", err)
	}
	if err := m.Load(); !errors.Is(err, ErrNoStorage) {
		t.Errorf("Load: got %v", err)
	}
}

func TestWriteFileAtomicLeavesTargetOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := WriteFileAtomic(path, func(f *os.File) error {
		f.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("target changed to %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
}
