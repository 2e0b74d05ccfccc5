package testengine

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"path"
	"strings"

	"github.com/chazu/vela/codebase"
	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/chazu/vela/interp"
)

// Kind is the family a test case belongs to.
type Kind string

const (
	KindEdge     Kind = "edge"
	KindProperty Kind = "property"
	KindEval     Kind = "eval"
	KindSkip     Kind = "skip"
)

// TestCase is one generated test.
type TestCase struct {
	ID       string // <kind>/<index>/<args>
	Name     string
	Hash     hash.Hash
	Kind     Kind
	Args     []interp.Value // nil for eval and skip cases
	Expected compiler.Type  // type the result must conform to
	Reason   string         // set for skip cases
}

// Key returns the cache key of the case.
func (tc TestCase) Key() CacheKey { return CacheKey{Hash: tc.Hash, TestID: tc.ID} }

func (tc TestCase) String() string { return tc.Name + " " + tc.ID }

func newCase(t *codebase.Term, name string, kind Kind, index int, args []interp.Value, expected compiler.Type) TestCase {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return TestCase{
		ID:       fmt.Sprintf("%s/%d/(%s)", kind, index, strings.Join(parts, ", ")),
		Name:     name,
		Hash:     t.Hash,
		Kind:     kind,
		Args:     args,
		Expected: expected,
	}
}

// GenConfig controls test generation.
type GenConfig struct {
	MaxTestsPerFunction int
	EnablePropertyTests bool
	EnableEdgeCases     bool

	// UseCache drops terms whose every case already passed, when the
	// generator has a cache (WithCache).
	UseCache   bool
	NameFilter string // glob if it has meta characters, else substring
}

// DefaultGenConfig returns the generator defaults.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		MaxTestsPerFunction: 10,
		EnablePropertyTests: true,
		EnableEdgeCases:     true,
		UseCache:            true,
	}
}

// Generator produces test cases from a codebase. Output depends only on
// the codebase contents, the config and, with WithCache, the cache.
type Generator struct {
	cfg   GenConfig
	cache *Cache
}

// GenOption configures a Generator.
type GenOption func(*Generator)

// WithCache lets the generator consult c when UseCache is set.
func WithCache(c *Cache) GenOption {
	return func(g *Generator) { g.cache = c }
}

func NewGenerator(cfg GenConfig, opts ...GenOption) *Generator {
	if cfg.MaxTestsPerFunction <= 0 {
		cfg.MaxTestsPerFunction = DefaultGenConfig().MaxTestsPerFunction
	}
	g := &Generator{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// settled reports whether every case has a cached pass. Skip cases are
// never cached, so a term that has one is never settled.
func (g *Generator) settled(cases []TestCase) bool {
	if !g.cfg.UseCache || g.cache == nil {
		return false
	}
	for _, tc := range cases {
		o, ok := g.cache.Get(tc.Key())
		if !ok || o.Status() != StatusPassed {
			return false
		}
	}
	return true
}

func (g *Generator) matches(name string) bool {
	f := g.cfg.NameFilter
	if f == "" {
		return true
	}
	if strings.ContainsAny(f, `*?[\`) {
		ok, err := path.Match(f, name)
		return err == nil && ok
	}
	return strings.Contains(name, f)
}

// Generate returns the cases for every named term, ordered by name. A term
// bound under several names is tested once, under the first matching name.
func (g *Generator) Generate(cb *codebase.Codebase) []TestCase {
	seen := make(map[hash.Hash]bool)
	var out []TestCase
	settled := 0
	for _, b := range cb.Names() {
		if seen[b.Hash] || !g.matches(b.Name) {
			continue
		}
		seen[b.Hash] = true
		t, ok := cb.GetTerm(b.Hash)
		if !ok {
			continue
		}
		cases := g.forTerm(t, b.Name)
		if g.settled(cases) {
			settled++
			continue
		}
		out = append(out, cases...)
	}
	log.Debugf("generated %d tests for %d terms (%d already passing)", len(out), len(seen), settled)
	return out
}

func (g *Generator) forTerm(t *codebase.Term, name string) []TestCase {
	fn, ok := t.Type.(*compiler.FnType)
	if !ok {
		return []TestCase{newCase(t, name, KindEval, 0, nil, t.Type)}
	}
	for _, p := range fn.Params {
		if compiler.IsFunction(p) {
			tc := newCase(t, name, KindSkip, 0, nil, fn.Result)
			tc.Reason = "higher-order parameter " + p.String()
			return []TestCase{tc}
		}
	}

	if len(fn.Params) == 0 {
		return []TestCase{newCase(t, name, KindEdge, 0, []interp.Value{}, fn.Result)}
	}
	limit := g.cfg.MaxTestsPerFunction
	var out []TestCase
	if g.cfg.EnableEdgeCases {
		for i, args := range edgeTuples(fn.Params, limit) {
			out = append(out, newCase(t, name, KindEdge, i, args, fn.Result))
		}
	}
	if g.cfg.EnablePropertyTests && len(out) < limit {
		rng := rand.New(rand.NewPCG(seedOf(t.Hash)))
		for i := 0; len(out) < limit; i++ {
			args := make([]interp.Value, len(fn.Params))
			for j, p := range fn.Params {
				args[j] = randomValue(rng, p)
			}
			out = append(out, newCase(t, name, KindProperty, i, args, fn.Result))
		}
	}
	return out
}

func seedOf(h hash.Hash) (uint64, uint64) {
	return binary.BigEndian.Uint64(h[0:8]), binary.BigEndian.Uint64(h[8:16])
}

// edgeValues is the boundary table for a parameter type. Type variables
// are exercised with integers.
func edgeValues(t compiler.Type) []interp.Value {
	base, ok := t.(*compiler.BaseType)
	if !ok {
		return intEdges
	}
	switch base.Name {
	case compiler.FloatType.Name:
		return floatEdges
	case compiler.StringType.Name:
		return stringEdges
	case compiler.BoolType.Name:
		return boolEdges
	}
	return intEdges
}

var (
	intEdges    = []interp.Value{interp.Int(0), interp.Int(1), interp.Int(-1), interp.Int(math.MaxInt64), interp.Int(math.MinInt64)}
	floatEdges  = []interp.Value{interp.Float(0), interp.Float(1), interp.Float(-1), interp.Float(0.5), interp.Float(math.MaxFloat64), interp.Float(math.SmallestNonzeroFloat64)}
	stringEdges = []interp.Value{interp.String(""), interp.String("a"), interp.String("hello world"), interp.String("héllo")}
	boolEdges   = []interp.Value{interp.Bool(false), interp.Bool(true)}
)

// edgeTuples enumerates the cartesian product of the parameters' boundary
// tables in lexicographic order, stopping at limit.
func edgeTuples(params []compiler.Type, limit int) [][]interp.Value {
	tables := make([][]interp.Value, len(params))
	for i, p := range params {
		tables[i] = edgeValues(p)
	}
	idx := make([]int, len(params))
	var out [][]interp.Value
	for len(out) < limit {
		tuple := make([]interp.Value, len(params))
		for i, j := range idx {
			tuple[i] = tables[i][j]
		}
		out = append(out, tuple)

		// Advance the odometer, rightmost position fastest.
		k := len(idx) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(tables[k]) {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			break
		}
	}
	return out
}

const propertyAlphabet = "abcdefghijklmnopqrstuvwxyz "

func randomValue(rng *rand.Rand, t compiler.Type) interp.Value {
	base, _ := t.(*compiler.BaseType)
	name := compiler.IntType.Name
	if base != nil {
		name = base.Name
	}
	switch name {
	case compiler.FloatType.Name:
		return interp.Float(math.Round((rng.Float64()*2000-1000)*100) / 100)
	case compiler.StringType.Name:
		b := make([]byte, rng.IntN(9))
		for i := range b {
			b[i] = propertyAlphabet[rng.IntN(len(propertyAlphabet))]
		}
		return interp.String(b)
	case compiler.BoolType.Name:
		return interp.Bool(rng.IntN(2) == 1)
	}
	return interp.Int(rng.Int64N(2001) - 1000)
}
