package codebase

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.codebase")

// Metadata carries snapshot timestamps.
type Metadata struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ---------------------------------------------------------------------------
// Codebase: content-addressed term store
// ---------------------------------------------------------------------------

// Codebase indexes terms by content hash and by name, and keeps the reverse
// dependency index current on every insertion. Terms are never removed;
// only name bindings move.
type Codebase struct {
	mu         sync.RWMutex
	byHash     map[hash.Hash]*Term
	byName     map[string]hash.Hash
	dependents map[hash.Hash]map[hash.Hash]struct{}
	meta       Metadata
}

// New creates an empty codebase.
func New() *Codebase {
	now := time.Now().UTC()
	return &Codebase{
		byHash:     make(map[hash.Hash]*Term),
		byName:     make(map[string]hash.Hash),
		dependents: make(map[hash.Hash]map[hash.Hash]struct{}),
		meta:       Metadata{CreatedAt: now, UpdatedAt: now},
	}
}

// Restore rebuilds a codebase from stored terms and name bindings without
// re-checking them. Dependencies outside terms are left dangling.
func Restore(terms []*Term, names map[string]hash.Hash, meta Metadata) *Codebase {
	cb := New()
	cb.meta = meta
	for _, t := range terms {
		cb.put(t)
	}
	for name, h := range names {
		cb.byName[name] = h
	}
	return cb
}

// AddTerm type-checks expr against ty (inferring when ty is nil), hashes it
// and inserts it under name. Free identifiers resolve against the current
// name bindings. Inserting content that is already stored only rebinds name.
func (cb *Codebase) AddTerm(name string, expr compiler.Expr, ty compiler.Type) (hash.Hash, error) {
	t, err := cb.Insert(TermInput{Name: name, Expr: expr, Type: ty})
	if err != nil {
		return hash.Hash{}, err
	}
	return t.Hash, nil
}

// Insert is the general form of AddTerm.
func (cb *Codebase) Insert(in TermInput) (*Term, error) {
	t, err := cb.prepare(in, nil)
	if err != nil {
		return nil, err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	stored := cb.put(t)
	for _, name := range in.selfNames() {
		cb.bindLocked(name, stored.Hash)
	}
	cb.meta.UpdatedAt = time.Now().UTC()
	return stored, nil
}

// prepare checks and hashes a definition without inserting it. pending
// holds terms prepared earlier in the same batch that are not yet stored.
func (cb *Codebase) prepare(in TermInput, pending map[hash.Hash]*Term) (*Term, error) {
	self := in.selfNames()
	for _, name := range self {
		if compiler.IsBuiltin(name) {
			return nil, fmt.Errorf("name %q shadows a builtin", name)
		}
	}
	resolve := in.Resolve
	if resolve == nil {
		resolve = cb.resolveName
	}

	termType := func(h hash.Hash) (compiler.Type, bool) {
		if t, ok := pending[h]; ok {
			return t.Type, true
		}
		if t, ok := cb.GetTerm(h); ok {
			return t.Type, true
		}
		return nil, false
	}
	env := compiler.TypeEnvFunc(func(name string) (compiler.Type, bool) {
		h, ok := resolve(name)
		if !ok {
			return nil, false
		}
		return termType(h)
	})

	ty, err := compiler.CheckDefinition(in.Expr, in.Type, env, self...)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", displayName(in.Name), err)
	}

	node, refs := hash.NormalizeTerm(in.Expr, ty, self, resolve)
	deps := dependencySet(refs)
	for _, d := range deps {
		if _, ok := termType(d); !ok {
			return nil, &DependencyError{Missing: d}
		}
	}

	return &Term{
		Hash:         hash.Sum(hash.Serialize(node)),
		Name:         in.Name,
		Expr:         in.Expr,
		Type:         ty,
		Dependencies: deps,
		Refs:         refs,
	}, nil
}

func displayName(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}

// put stores t unless its hash is already present, and indexes its
// dependency edges. It returns the stored term. Callers hold the write lock
// or own cb exclusively.
func (cb *Codebase) put(t *Term) *Term {
	if existing, ok := cb.byHash[t.Hash]; ok {
		return existing
	}
	cb.byHash[t.Hash] = t
	for _, d := range t.Dependencies {
		set, ok := cb.dependents[d]
		if !ok {
			set = make(map[hash.Hash]struct{})
			cb.dependents[d] = set
		}
		set[t.Hash] = struct{}{}
	}
	log.Debugf("stored %s (%s)", t.Hash.Short(), displayName(t.Name))
	return t
}

func (cb *Codebase) bindLocked(name string, h hash.Hash) {
	if prev, ok := cb.byName[name]; ok && prev != h {
		log.Infof("rebinding %s: %s -> %s", name, prev.Short(), h.Short())
	}
	cb.byName[name] = h
}

func (cb *Codebase) resolveName(name string) (hash.Hash, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	h, ok := cb.byName[name]
	return h, ok
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// GetTerm returns the term stored under h.
func (cb *Codebase) GetTerm(h hash.Hash) (*Term, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	t, ok := cb.byHash[h]
	return t, ok
}

// GetTermByName returns the term currently bound to name.
func (cb *Codebase) GetTermByName(name string) (*Term, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	h, ok := cb.byName[name]
	if !ok {
		return nil, false
	}
	t, ok := cb.byHash[h]
	return t, ok
}

// Find resolves a user reference: a bound name, a full hex hash, or a
// unique hex prefix of at least four digits.
func (cb *Codebase) Find(ref string) (*Term, error) {
	if t, ok := cb.GetTermByName(ref); ok {
		return t, nil
	}
	if h, err := hash.ParseHex(ref); err == nil {
		if t, ok := cb.GetTerm(h); ok {
			return t, nil
		}
		return nil, &NotFoundError{Kind: "term", Key: ref}
	}
	if len(ref) >= 4 {
		cb.mu.RLock()
		defer cb.mu.RUnlock()
		var match *Term
		for h, t := range cb.byHash {
			if strings.HasPrefix(h.String(), ref) {
				if match != nil {
					return nil, fmt.Errorf("ambiguous hash prefix %q", ref)
				}
				match = t
			}
		}
		if match != nil {
			return match, nil
		}
	}
	return nil, &NotFoundError{Kind: "name", Key: ref}
}

// TermBody returns the stored expression and pinned references of h.
func (cb *Codebase) TermBody(h hash.Hash) (compiler.Expr, map[string]hash.Hash, error) {
	t, ok := cb.GetTerm(h)
	if !ok {
		return nil, nil, &NotFoundError{Kind: "term", Key: h.String()}
	}
	return t.Expr, t.Refs, nil
}

// TypeOf returns the type of the term bound to name.
func (cb *Codebase) TypeOf(name string) (compiler.Type, bool) {
	t, ok := cb.GetTermByName(name)
	if !ok {
		return nil, false
	}
	return t.Type, true
}

// NameBinding is one entry of the name index.
type NameBinding struct {
	Name string
	Hash hash.Hash
}

// Names enumerates the current bindings, sorted by name.
func (cb *Codebase) Names() []NameBinding {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	out := make([]NameBinding, 0, len(cb.byName))
	for name, h := range cb.byName {
		out = append(out, NameBinding{Name: name, Hash: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamesOf returns every name bound to h, sorted.
func (cb *Codebase) NamesOf(h hash.Hash) []string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	var names []string
	for name, bound := range cb.byName {
		if bound == h {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Hashes returns every stored hash, sorted.
func (cb *Codebase) Hashes() []hash.Hash {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	hs := make([]hash.Hash, 0, len(cb.byHash))
	for h := range cb.byHash {
		hs = append(hs, h)
	}
	hash.Sort(hs)
	return hs
}

// Terms returns every stored term in hash order.
func (cb *Codebase) Terms() []*Term {
	hs := cb.Hashes()
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	out := make([]*Term, len(hs))
	for i, h := range hs {
		out[i] = cb.byHash[h]
	}
	return out
}

// Len returns the number of stored terms.
func (cb *Codebase) Len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return len(cb.byHash)
}

// Metadata returns the snapshot timestamps.
func (cb *Codebase) Metadata() Metadata {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.meta
}

// ---------------------------------------------------------------------------
// Name bindings
// ---------------------------------------------------------------------------

// Bind points name at an existing term.
func (cb *Codebase) Bind(name string, h hash.Hash) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if _, ok := cb.byHash[h]; !ok {
		return &NotFoundError{Kind: "term", Key: h.String()}
	}
	cb.bindLocked(name, h)
	cb.meta.UpdatedAt = time.Now().UTC()
	return nil
}

// Unbind removes a name. The term stays stored.
func (cb *Codebase) Unbind(name string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if _, ok := cb.byName[name]; !ok {
		return &NotFoundError{Kind: "name", Key: name}
	}
	delete(cb.byName, name)
	cb.meta.UpdatedAt = time.Now().UTC()
	return nil
}

// Bindings returns a copy of the name index.
func (cb *Codebase) Bindings() map[string]hash.Hash {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return maps.Clone(cb.byName)
}

// RestoreBindings replaces the name index. Every hash must be stored.
func (cb *Codebase) RestoreBindings(bindings map[string]hash.Hash) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for name, h := range bindings {
		if _, ok := cb.byHash[h]; !ok {
			return &NotFoundError{Kind: "term", Key: name + "@" + h.String()}
		}
	}
	cb.byName = maps.Clone(bindings)
	if cb.byName == nil {
		cb.byName = make(map[string]hash.Hash)
	}
	cb.meta.UpdatedAt = time.Now().UTC()
	return nil
}

// ---------------------------------------------------------------------------
// Dependency graph
// ---------------------------------------------------------------------------

// GetDirectDependencies returns the stored dependency set of h, or nil if h
// is unknown.
func (cb *Codebase) GetDirectDependencies(h hash.Hash) []hash.Hash {
	t, ok := cb.GetTerm(h)
	if !ok {
		return nil
	}
	return append([]hash.Hash(nil), t.Dependencies...)
}

// GetAllDependencies returns the transitive dependency closure of h, sorted.
// It fails with *DependencyError on a dangling edge.
func (cb *Codebase) GetAllDependencies(h hash.Hash) ([]hash.Hash, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	root, ok := cb.byHash[h]
	if !ok {
		return nil, &NotFoundError{Kind: "term", Key: h.String()}
	}

	visited := make(map[hash.Hash]bool)
	queue := []*Term{root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, d := range t.Dependencies {
			if visited[d] {
				continue
			}
			dep, ok := cb.byHash[d]
			if !ok {
				return nil, &DependencyError{From: t.Hash, Missing: d}
			}
			visited[d] = true
			queue = append(queue, dep)
		}
	}

	out := make([]hash.Hash, 0, len(visited))
	for d := range visited {
		out = append(out, d)
	}
	hash.Sort(out)
	return out, nil
}

// GetDependents returns the direct reverse edges of h, sorted.
func (cb *Codebase) GetDependents(h hash.Hash) []hash.Hash {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	set := cb.dependents[h]
	out := make([]hash.Hash, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	hash.Sort(out)
	return out
}

// Roots returns the hashes currently bound to a name, sorted.
func (cb *Codebase) Roots() []hash.Hash {
	cb.mu.RLock()
	seen := make(map[hash.Hash]bool, len(cb.byName))
	for _, h := range cb.byName {
		seen[h] = true
	}
	cb.mu.RUnlock()
	out := make([]hash.Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	hash.Sort(out)
	return out
}

// Reachable marks every stored term reachable from roots, roots included.
// Dangling edges are skipped.
func (cb *Codebase) Reachable(roots []hash.Hash) map[hash.Hash]bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	marked := make(map[hash.Hash]bool)
	var stack []hash.Hash
	for _, r := range roots {
		if _, ok := cb.byHash[r]; ok && !marked[r] {
			marked[r] = true
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range cb.byHash[h].Dependencies {
			if _, ok := cb.byHash[d]; ok && !marked[d] {
				marked[d] = true
				stack = append(stack, d)
			}
		}
	}
	return marked
}

// Unreachable lists stored terms not reachable from roots, sorted. Nothing
// is removed.
func (cb *Codebase) Unreachable(roots []hash.Hash) []hash.Hash {
	live := cb.Reachable(roots)
	var dead []hash.Hash
	for _, h := range cb.Hashes() {
		if !live[h] {
			dead = append(dead, h)
		}
	}
	return dead
}

// Equal reports whether both codebases hold the same terms, the same name
// bindings and the same reverse index. Metadata is ignored.
func (cb *Codebase) Equal(o *Codebase) bool {
	if cb == o {
		return true
	}
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(cb.byHash) != len(o.byHash) || !maps.Equal(cb.byName, o.byName) {
		return false
	}
	for h, t := range cb.byHash {
		if !t.Equal(o.byHash[h]) {
			return false
		}
	}
	if len(cb.dependents) != len(o.dependents) {
		return false
	}
	for h, set := range cb.dependents {
		if !maps.Equal(set, o.dependents[h]) {
			return false
		}
	}
	return true
}
