package namespace

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler/hash"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.namespace")

// RedefinitionPolicy decides what AddDefinition does with a path that is
// already bound.
type RedefinitionPolicy int

const (
	// Overwrite rebinds the path. The old term stays in the codebase and
	// in the path's history.
	Overwrite RedefinitionPolicy = iota
	// Reject fails the command.
	Reject
)

func (p RedefinitionPolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("RedefinitionPolicy(%d)", int(p))
}

// ParsePolicy parses "overwrite" or "reject". The empty string is Overwrite.
func ParsePolicy(s string) (RedefinitionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "overwrite":
		return Overwrite, nil
	case "reject":
		return Reject, nil
	}
	return 0, fmt.Errorf("unknown redefinition policy %q", s)
}

var (
	// ErrDefinitionExists is returned under the Reject policy and when a
	// rename target is taken.
	ErrDefinitionExists = errors.New("definition already exists")
	ErrNamespaceExists  = errors.New("namespace already exists")
)

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the redefinition policy.
func WithPolicy(p RedefinitionPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLog appends every executed command to l.
func WithLog(l *LogFile) Option {
	return func(s *Store) { s.journal = l }
}

// Store is the namespace view of a codebase.
type Store struct {
	cb         *codebase.Codebase
	current    Path
	policy     RedefinitionPolicy
	history    map[string][]hash.Hash
	metadata   map[string]map[string]string
	namespaces map[string]Path
	applied    []Command
	journal    *LogFile

	// anchored is set once the journal records where this store started.
	anchored bool
}

// New wraps cb. Names already bound in cb are visible. Their history starts
// with the binding they had when the store first rebinds them.
func New(cb *codebase.Codebase, opts ...Option) *Store {
	s := &Store{
		cb:         cb,
		history:    make(map[string][]hash.Hash),
		metadata:   make(map[string]map[string]string),
		namespaces: map[string]Path{"": Root()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the command log at path, replays it into a store over cb and
// keeps the log attached for further commands.
func Open(path string, cb *codebase.Codebase, opts ...Option) (*Store, error) {
	lf, cmds, err := OpenLog(path)
	if err != nil {
		return nil, err
	}
	s := New(cb, opts...)
	if err := s.Replay(cmds); err != nil {
		lf.Close()
		return nil, err
	}
	s.journal = lf
	s.anchored = true
	return s, nil
}

// Close closes the attached log, if any.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func (s *Store) Codebase() *codebase.Codebase { return s.cb }

// Current returns the current namespace.
func (s *Store) Current() Path { return s.current }

func (s *Store) Policy() RedefinitionPolicy { return s.policy }

// Log returns the commands applied so far, in order.
func (s *Store) Log() []Command { return append([]Command(nil), s.applied...) }

// ExecuteCommand applies cmd and appends it to the log. A failed command,
// including one whose log append fails, leaves the names, history and
// current namespace unchanged and returns a *CommandError. Terms it
// inserted stay stored, since the term store only grows.
func (s *Store) ExecuteCommand(cmd Command) error {
	saved := s.snapshot()
	if err := s.apply(cmd); err != nil {
		s.restore(saved)
		return &CommandError{Command: cmd, Err: err}
	}
	if s.journal != nil {
		if err := s.appendLog(saved.current, cmd); err != nil {
			s.restore(saved)
			return &CommandError{Command: cmd, Err: err}
		}
	}
	s.applied = append(s.applied, cmd)
	return nil
}

// appendLog writes cmd to the journal. A store that was not built by
// replaying the journal first records the namespace it started in, so that
// replay resolves unqualified paths the way this store did.
func (s *Store) appendLog(start Path, cmd Command) error {
	if !s.anchored {
		if err := s.journal.Append(UseNamespace{Namespace: start}); err != nil {
			return err
		}
		s.anchored = true
	}
	return s.journal.Append(cmd)
}

// storeState is the mutable name state of a Store.
type storeState struct {
	bindings   map[string]hash.Hash
	current    Path
	history    map[string][]hash.Hash
	metadata   map[string]map[string]string
	namespaces map[string]Path
}

// snapshot copies the name state. History slices are shared: commands
// only append to them, which never changes what an older slice header sees.
func (s *Store) snapshot() storeState {
	return storeState{
		bindings:   s.cb.Bindings(),
		current:    s.current,
		history:    maps.Clone(s.history),
		metadata:   maps.Clone(s.metadata),
		namespaces: maps.Clone(s.namespaces),
	}
}

func (s *Store) restore(st storeState) {
	if err := s.cb.RestoreBindings(st.bindings); err != nil {
		log.Errorf("restoring names: %s", err)
	}
	s.current = st.current
	s.history = st.history
	s.metadata = st.metadata
	s.namespaces = st.namespaces
}

// Apply returns a copy of s with cmd applied; s itself is not changed.
// Terms are shared, since the term store only grows.
func Apply(s *Store, cmd Command) (*Store, error) {
	next := s.clone()
	if err := next.apply(cmd); err != nil {
		return nil, &CommandError{Command: cmd, Err: err}
	}
	next.applied = append(next.applied, cmd)
	return next, nil
}

func (s *Store) clone() *Store {
	next := &Store{
		cb:         codebase.Restore(s.cb.Terms(), s.cb.Bindings(), s.cb.Metadata()),
		current:    s.current,
		policy:     s.policy,
		history:    make(map[string][]hash.Hash, len(s.history)),
		metadata:   make(map[string]map[string]string, len(s.metadata)),
		namespaces: make(map[string]Path, len(s.namespaces)),
		applied:    append([]Command(nil), s.applied...),
	}
	for k, v := range s.history {
		next.history[k] = append([]hash.Hash(nil), v...)
	}
	for k, v := range s.metadata {
		next.metadata[k] = v
	}
	for k, v := range s.namespaces {
		next.namespaces[k] = v
	}
	return next
}

// BatchResult counts the outcome of ExecuteBatch.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// ExecuteBatch runs every command. Failures are logged and skipped.
func (s *Store) ExecuteBatch(cmds []Command) BatchResult {
	var r BatchResult
	for _, cmd := range cmds {
		if err := s.ExecuteCommand(cmd); err != nil {
			log.Warningf("%s", err)
			r.Failed++
			r.Errors = append(r.Errors, err)
			continue
		}
		r.Succeeded++
	}
	log.Infof("batch: %d succeeded, %d failed", r.Succeeded, r.Failed)
	return r
}

// Replay applies a recorded log without appending to the attached log.
// It stops at the first failure. Recorded commands were accepted when
// they were first executed, so the redefinition policy is not re-checked.
func (s *Store) Replay(cmds []Command) error {
	policy := s.policy
	s.policy = Overwrite
	defer func() { s.policy = policy }()
	for i, cmd := range cmds {
		if err := s.apply(cmd); err != nil {
			return fmt.Errorf("replay command %d: %w", i, &CommandError{Command: cmd, Err: err})
		}
		s.applied = append(s.applied, cmd)
	}
	return nil
}

// target resolves the namespace a definition path refers to. Unqualified
// paths land in the current namespace.
func (s *Store) target(p DefinitionPath) (ns Path, alias bool) {
	ns = p.Namespace
	if ns.IsRoot() {
		ns = s.current
	}
	return ns, !ns.IsRoot() && ns.Equal(s.current)
}

func (s *Store) apply(cmd Command) error {
	switch c := cmd.(type) {
	case AddDefinition:
		return s.addDefinition(c)
	case RemoveDefinition:
		return s.removeDefinition(c)
	case RenameDefinition:
		return s.renameDefinition(c)
	case CreateNamespace:
		if err := validNamespace(c.Namespace); err != nil {
			return err
		}
		if c.Namespace.IsRoot() || s.hasNamespace(c.Namespace) {
			return fmt.Errorf("%w: %s", ErrNamespaceExists, c.Namespace)
		}
		s.addNamespace(c.Namespace)
		return nil
	case UseNamespace:
		if err := validNamespace(c.Namespace); err != nil {
			return err
		}
		s.current = c.Namespace
		s.addNamespace(c.Namespace)
		return nil
	case nil:
		return errors.New("nil command")
	}
	return fmt.Errorf("%w: %T", errUnknownCommand, cmd)
}

func (s *Store) addDefinition(c AddDefinition) error {
	if err := c.Path.validate(); err != nil {
		return err
	}
	if c.Content == nil {
		return errors.New("no content")
	}
	ns, alias := s.target(c.Path)
	qualified := ns.Qualify(c.Path.Name)
	prev, hadPrev := s.cb.GetTermByName(qualified)
	if hadPrev && s.policy == Reject {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, qualified)
	}
	var prevBare *codebase.Term
	if alias {
		var err error
		if alias, prevBare, err = s.claimAlias(c.Path.Name); err != nil {
			return err
		}
	}

	in := codebase.TermInput{
		Name:    qualified,
		Expr:    c.Content.Expr(),
		Type:    c.Signature,
		Resolve: s.resolver(),
	}
	if alias {
		in.Aliases = []string{c.Path.Name}
	}
	term, err := s.cb.Insert(in)
	if err != nil {
		return err
	}

	s.record(qualified, prev, term.Hash)
	if alias && prevBare != nil {
		s.record(c.Path.Name, prevBare, term.Hash)
	}
	if len(c.Metadata) > 0 {
		s.metadata[qualified] = c.Metadata
	}
	s.addNamespace(ns)
	log.Debugf("added %s = %s", qualified, term.Hash.Short())
	return nil
}

func (s *Store) removeDefinition(c RemoveDefinition) error {
	if err := c.Path.validate(); err != nil {
		return err
	}
	ns, alias := s.target(c.Path)
	qualified := ns.Qualify(c.Path.Name)
	term, ok := s.cb.GetTermByName(qualified)
	if !ok {
		return &codebase.NotFoundError{Kind: "definition", Key: qualified}
	}
	if err := s.cb.Unbind(qualified); err != nil {
		return err
	}
	if alias {
		if bare, ok := s.cb.GetTermByName(c.Path.Name); ok && bare.Hash == term.Hash {
			if err := s.cb.Unbind(c.Path.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// claimAlias decides whether the bare name may point at a definition of
// the current namespace. It returns the term the bare name was bound to, if
// any. Under Reject any existing binding refuses the command. Otherwise an
// existing alias is rebound, and a root definition of that name is left alone.
func (s *Store) claimAlias(bare string) (bool, *codebase.Term, error) {
	t, ok := s.cb.GetTermByName(bare)
	if !ok {
		return true, nil, nil
	}
	if s.policy == Reject {
		return false, nil, fmt.Errorf("%w: %s", ErrDefinitionExists, bare)
	}
	if !s.isAlias(bare, t.Hash) {
		log.Warningf("%s is a root definition, not aliasing it", bare)
		return false, nil, nil
	}
	return true, t, nil
}

// isAlias reports whether the root name bare points at the same term as a
// namespaced definition of that name.
func (s *Store) isAlias(bare string, h hash.Hash) bool {
	for _, ns := range s.Namespaces() {
		if ns.IsRoot() {
			continue
		}
		if t, ok := s.cb.GetTermByName(ns.Qualify(bare)); ok && t.Hash == h {
			return true
		}
	}
	return false
}

// record appends h to the history of name. prev is what name was bound to
// before, which seeds a history the store has not seen yet.
func (s *Store) record(name string, prev *codebase.Term, h hash.Hash) {
	hist := s.history[name]
	if len(hist) == 0 && prev != nil {
		hist = []hash.Hash{prev.Hash}
	}
	if len(hist) > 0 && hist[len(hist)-1] == h {
		s.history[name] = hist
		return
	}
	if len(hist) > 0 {
		log.Infof("redefined %s: %s -> %s", name, hist[len(hist)-1].Short(), h.Short())
	}
	s.history[name] = append(hist, h)
}

func (s *Store) renameDefinition(c RenameDefinition) error {
	if err := c.From.validate(); err != nil {
		return err
	}
	if err := c.To.validate(); err != nil {
		return err
	}
	fromNS, fromAlias := s.target(c.From)
	toNS, toAlias := s.target(c.To)
	from, to := fromNS.Qualify(c.From.Name), toNS.Qualify(c.To.Name)
	term, ok := s.cb.GetTermByName(from)
	if !ok {
		return &codebase.NotFoundError{Kind: "definition", Key: from}
	}
	if _, taken := s.cb.GetTermByName(to); taken {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, to)
	}
	if err := s.cb.Bind(to, term.Hash); err != nil {
		return err
	}
	if err := s.cb.Unbind(from); err != nil {
		return err
	}
	if fromAlias {
		if bare, ok := s.cb.GetTermByName(c.From.Name); ok && bare.Hash == term.Hash {
			if err := s.cb.Unbind(c.From.Name); err != nil {
				return err
			}
		}
	}
	if toAlias {
		if _, taken := s.cb.GetTermByName(c.To.Name); !taken {
			if err := s.cb.Bind(c.To.Name, term.Hash); err != nil {
				return err
			}
		}
	}

	s.history[to] = append(s.history[to], s.history[from]...)
	if len(s.history[to]) == 0 {
		s.history[to] = []hash.Hash{term.Hash}
	}
	delete(s.history, from)
	if md, ok := s.metadata[from]; ok {
		s.metadata[to] = md
		delete(s.metadata, from)
	}
	s.addNamespace(toNS)
	log.Debugf("renamed %s -> %s", from, to)
	return nil
}

func validNamespace(ns Path) error {
	for _, seg := range ns {
		if !validSegment(seg) {
			return fmt.Errorf("%w: bad segment %q", ErrInvalidPath, seg)
		}
	}
	return nil
}

func (s *Store) hasNamespace(ns Path) bool {
	for _, p := range s.Namespaces() {
		if p.Equal(ns) {
			return true
		}
	}
	return false
}

// resolver looks names up relative to the current namespace first.
func (s *Store) resolver() hash.Resolver {
	return func(name string) (hash.Hash, bool) {
		t, err := s.Lookup(name)
		if err != nil {
			return hash.Hash{}, false
		}
		return t.Hash, true
	}
}

func (s *Store) addNamespace(ns Path) {
	for p := ns; !p.IsRoot(); p = p.Parent() {
		s.namespaces[p.String()] = p
	}
}

// Lookup finds name in the current namespace, then as an absolute name.
func (s *Store) Lookup(name string) (*codebase.Term, error) {
	if !s.current.IsRoot() {
		if t, ok := s.cb.GetTermByName(s.current.Qualify(name)); ok {
			return t, nil
		}
	}
	if t, ok := s.cb.GetTermByName(name); ok {
		return t, nil
	}
	return nil, &codebase.NotFoundError{Kind: "definition", Key: name}
}

// Entry is a bound definition.
type Entry struct {
	Path DefinitionPath
	Hash hash.Hash
}

// Definitions lists the names bound directly in ns, sorted.
func (s *Store) Definitions(ns Path) []Entry {
	var out []Entry
	for _, b := range s.cb.Names() {
		dp, err := ParseDefinitionPath(b.Name)
		if err != nil || !dp.Namespace.Equal(ns) {
			continue
		}
		out = append(out, Entry{Path: dp, Hash: b.Hash})
	}
	return out
}

// Namespaces lists every known namespace, root first, sorted.
func (s *Store) Namespaces() []Path {
	seen := make(map[string]Path, len(s.namespaces))
	for k, v := range s.namespaces {
		seen[k] = v
	}
	for _, b := range s.cb.Names() {
		dp, err := ParseDefinitionPath(b.Name)
		if err != nil {
			continue
		}
		for p := dp.Namespace; !p.IsRoot(); p = p.Parent() {
			seen[p.String()] = p
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Path, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// History returns every hash the path has been bound to, oldest first.
func (s *Store) History(p DefinitionPath) []hash.Hash {
	return append([]hash.Hash(nil), s.history[p.Qualified()]...)
}

// Metadata returns the metadata recorded with the latest definition at p.
func (s *Store) Metadata(p DefinitionPath) map[string]string {
	return s.metadata[p.Qualified()]
}
