package codebase

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
)

// Storage persists whole codebase snapshots.
type Storage interface {
	SaveFull(cb *Codebase) error
	LoadFull() (*Codebase, error)
}

// Branch is a named pointer to a name-binding state.
type Branch struct {
	Name string
	Head hash.Hash
}

// Option configures a Manager.
type Option func(*Manager)

// WithStorage sets the snapshot storage used by Load and Save.
func WithStorage(s Storage) Option {
	return func(m *Manager) { m.storage = s }
}

// Manager owns a codebase together with its branches and the state
// snapshots they point at. It is single-writer: callers serialize
// mutations, the mutex only protects readers.
type Manager struct {
	mu       sync.Mutex
	path     string
	storage  Storage
	cb       *Codebase
	branches map[string]*Branch
	states   map[hash.Hash]map[string]hash.Hash
	current  string
}

// NewManager creates a manager for the snapshot at storagePath. Nothing is
// read until Load.
func NewManager(storagePath string, opts ...Option) *Manager {
	m := &Manager{
		path:     storagePath,
		cb:       New(),
		branches: make(map[string]*Branch),
		states:   map[hash.Hash]map[string]hash.Hash{EmptyStateHash(): {}},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Codebase returns the managed term store.
func (m *Manager) Codebase() *Codebase { return m.cb }

// Path returns the snapshot path.
func (m *Manager) Path() string { return m.path }

// HashExpr returns the hex content hash of a bare expression.
func (m *Manager) HashExpr(expr compiler.Expr) string {
	return hash.HashExpr(expr).String()
}

// ---------------------------------------------------------------------------
// State hashes
// ---------------------------------------------------------------------------

// StateHashOf hashes a set of name bindings: SHA-256 over the
// (name, hash) pairs sorted by name.
func StateHashOf(bindings map[string]hash.Hash) hash.Hash {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := []byte{hash.HashVersion}
	for _, name := range names {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
		h := bindings[name]
		buf = append(buf, h[:]...)
	}
	return hash.Sum(buf)
}

// EmptyStateHash is the state hash of a codebase with no names.
func EmptyStateHash() hash.Hash {
	return StateHashOf(nil)
}

// StateHash returns the state hash of the current name bindings.
func (m *Manager) StateHash() hash.Hash {
	return StateHashOf(m.cb.Bindings())
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

// CreateBranch mints a branch pointing at the empty state.
func (m *Manager) CreateBranch(name string) (*Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	b := &Branch{Name: name, Head: EmptyStateHash()}
	m.branches[name] = b
	log.Infof("created branch %s", name)
	return &Branch{Name: b.Name, Head: b.Head}, nil
}

// Branch returns a copy of the named branch.
func (m *Manager) Branch(name string) (Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[name]
	if !ok {
		return Branch{}, &NotFoundError{Kind: "branch", Key: name}
	}
	return *b, nil
}

// Branches returns every branch, sorted by name.
func (m *Manager) Branches() []Branch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Branch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Current returns the checked-out branch name, or "".
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Checkout restores the name bindings recorded at the branch head.
func (m *Manager) Checkout(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[name]
	if !ok {
		return &NotFoundError{Kind: "branch", Key: name}
	}
	bindings, ok := m.states[b.Head]
	if !ok {
		return &NotFoundError{Kind: "state", Key: b.Head.String()}
	}
	if err := m.cb.RestoreBindings(bindings); err != nil {
		return err
	}
	m.current = name
	log.Infof("checked out %s at %s", name, b.Head.Short())
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// OpenSession opens an edit session at the branch's current head.
func (m *Manager) OpenSession(branch string) (*EditSession, error) {
	b, err := m.Branch(branch)
	if err != nil {
		return nil, err
	}
	return NewEditSession(b.Head), nil
}

// Commit checks every pending definition in order, each seeing the branch
// state plus the definitions before it. If any fails, or the branch moved
// since the session was opened, nothing changes. Otherwise all terms are
// stored, the new state is recorded and the branch head advances to it.
func (m *Manager) Commit(s *EditSession, branch string) (hash.Hash, error) {
	if s.State != SessionOpen {
		return hash.Hash{}, ErrSessionClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.branches[branch]
	if !ok {
		return hash.Hash{}, &NotFoundError{Kind: "branch", Key: branch}
	}
	if b.Head != s.BranchHead {
		return hash.Hash{}, fmt.Errorf("commit to %s: %w", branch, ErrStaleHead)
	}
	base, ok := m.states[b.Head]
	if !ok {
		return hash.Hash{}, &NotFoundError{Kind: "state", Key: b.Head.String()}
	}

	working := maps.Clone(base)
	if working == nil {
		working = make(map[string]hash.Hash)
	}
	prepared := make(map[hash.Hash]*Term, len(s.Pending))
	order := make([]*Term, 0, len(s.Pending))
	for _, p := range s.Pending {
		t, err := m.cb.prepare(TermInput{
			Name: p.Name,
			Expr: p.Expr,
			Type: p.Type,
			Resolve: func(name string) (hash.Hash, bool) {
				h, ok := working[name]
				return h, ok
			},
		}, prepared)
		if err != nil {
			return hash.Hash{}, fmt.Errorf("commit to %s: %w", branch, err)
		}
		if _, dup := prepared[t.Hash]; !dup {
			prepared[t.Hash] = t
			order = append(order, t)
		}
		working[p.Name] = t.Hash
	}

	m.cb.mu.Lock()
	for _, t := range order {
		m.cb.put(t)
	}
	m.cb.meta.UpdatedAt = time.Now().UTC()
	m.cb.mu.Unlock()

	head := StateHashOf(working)
	m.states[head] = working
	b.Head = head
	s.State = SessionCommitted

	if m.current == branch {
		if err := m.cb.RestoreBindings(working); err != nil {
			return hash.Hash{}, err
		}
	}
	log.Infof("committed %d definitions to %s, head %s", len(s.Pending), branch, head.Short())
	return head, nil
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// SidecarPath returns the path of the branch file next to the snapshot.
func (m *Manager) SidecarPath() string {
	return m.path + ".branches"
}

// Load reads the snapshot and the branch sidecar. A missing snapshot file
// leaves the manager empty.
func (m *Manager) Load() error {
	if m.storage == nil {
		return ErrNoStorage
	}
	cb, err := m.storage.LoadFull()
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("no snapshot at %s, starting empty", m.path)
		cb = New()
	default:
		return err
	}

	side, err := readSidecar(m.SidecarPath())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
	m.branches = make(map[string]*Branch)
	m.states = map[hash.Hash]map[string]hash.Hash{EmptyStateHash(): {}}
	m.current = ""
	if side != nil {
		side.apply(m)
	}
	return nil
}

// Save writes the snapshot and the branch sidecar. Each file is replaced
// atomically.
func (m *Manager) Save() error {
	if m.storage == nil {
		return ErrNoStorage
	}
	if err := m.storage.SaveFull(m.cb); err != nil {
		return err
	}
	m.mu.Lock()
	side := newSidecar(m)
	m.mu.Unlock()
	return writeSidecar(m.SidecarPath(), side)
}

// WriteFileAtomic writes data to a temp file in path's directory, syncs it
// and renames it over path. On failure path is untouched.
func WriteFileAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	success = true
	return nil
}
