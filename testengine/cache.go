package testengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chazu/vela/compiler/hash"
	"github.com/zeebo/xxh3"
)

// Backend selects the persistent store behind a Cache.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// ParseBackend parses a backend name. The empty string is SQLite.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(s)) {
	case "", BackendSQLite:
		return BackendSQLite, nil
	case BackendBadger:
		return BackendBadger, nil
	}
	return "", fmt.Errorf("unknown cache backend %q", s)
}

// CacheKey identifies a cached outcome. The term hash makes entries for
// changed code unreachable without explicit invalidation.
type CacheKey struct {
	Hash   hash.Hash
	TestID string
}

// CachedResult is one stored outcome.
type CachedResult struct {
	Key        CacheKey
	Outcome    Outcome
	RecordedAt time.Time
}

// backingStore persists cache entries. Writes are serialized by Cache.
type backingStore interface {
	load() ([]CachedResult, error)
	put(r CachedResult) error
	clear() error
	close() error
}

const numShards = 32

type shard struct {
	mu      sync.RWMutex
	entries map[CacheKey]CachedResult
}

// Cache is a persistent outcome cache with a sharded in-memory front.
// Reads only take a shard lock; writes also go through to the backend.
type Cache struct {
	backend Backend
	shards  [numShards]shard
	wmu     sync.Mutex
	store   backingStore
}

// OpenCache opens or creates the cache at path and loads it into memory.
// SQLite uses path as a file, badger as a directory. An empty path keeps
// the backend in memory.
func OpenCache(path string, backend Backend) (*Cache, error) {
	var (
		st  backingStore
		err error
	)
	switch backend {
	case "", BackendSQLite:
		backend = BackendSQLite
		st, err = openSQLite(path)
	case BackendBadger:
		st, err = openBadger(path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	c := &Cache{backend: backend, store: st}
	for i := range c.shards {
		c.shards[i].entries = make(map[CacheKey]CachedResult)
	}
	rows, err := st.load()
	if err != nil {
		st.close()
		return nil, fmt.Errorf("load test cache: %w", err)
	}
	for _, r := range rows {
		c.shardFor(r.Key).entries[r.Key] = r
	}
	log.Infof("opened %s test cache at %q with %d results", backend, path, len(rows))
	return c, nil
}

func (c *Cache) shardFor(k CacheKey) *shard {
	buf := make([]byte, 0, hash.Size+len(k.TestID))
	buf = append(buf, k.Hash[:]...)
	buf = append(buf, k.TestID...)
	return &c.shards[xxh3.Hash(buf)%numShards]
}

// Backend returns the backend in use.
func (c *Cache) Backend() Backend { return c.backend }

// Get returns the cached outcome for k.
func (c *Cache) Get(k CacheKey) (Outcome, bool) {
	s := c.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	return r.Outcome, true
}

// Put stores o under k, replacing any previous entry.
func (c *Cache) Put(k CacheKey, o Outcome) error {
	r := CachedResult{Key: k, Outcome: o, RecordedAt: time.Now().UTC()}
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	c.wmu.Lock()
	err := c.store.put(r)
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("cache %s %s: %w", k.Hash.Short(), k.TestID, err)
	}
	s.entries[k] = r
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	for i := range c.shards {
		c.shards[i].mu.Lock()
		defer c.shards[i].mu.Unlock()
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.store.clear(); err != nil {
		return fmt.Errorf("clear test cache: %w", err)
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[CacheKey]CachedResult)
	}
	log.Infof("cleared test cache")
	return nil
}

// AllResults returns every entry, ordered by hash then test id.
func (c *Cache) AllResults() []CachedResult {
	var out []CachedResult
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, r := range s.entries {
			out = append(out, r)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if c := hash.Compare(out[i].Key.Hash, out[j].Key.Hash); c != 0 {
			return c < 0
		}
		return out[i].Key.TestID < out[j].Key.TestID
	})
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Close releases the backend.
func (c *Cache) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.store.close()
}
