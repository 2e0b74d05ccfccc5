package testengine

import (
	"fmt"
	"os"
	"time"

	"github.com/chazu/vela/compiler"
	"github.com/chazu/vela/compiler/hash"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// badgerLogger routes badger's logging into commonlog. Its info output is
// demoted to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { log.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { log.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { log.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { log.Debugf(format, args...) }

// badgerRecord is the CBOR value stored under hash||testID.
type badgerRecord struct {
	Status     Status `cbor:"1,keyasint"`
	Detail     string `cbor:"2,keyasint,omitempty"`
	RecordedAt int64  `cbor:"3,keyasint"`
}

type badgerStore struct {
	db *badger.DB
}

func openBadger(path string) (*badgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create test cache directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	db, err := badger.Open(opts.WithLogger(badgerLogger{}))
	if err != nil {
		return nil, fmt.Errorf("open test cache: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func badgerKey(k CacheKey) []byte {
	key := make([]byte, 0, hash.Size+len(k.TestID))
	key = append(key, k.Hash[:]...)
	return append(key, k.TestID...)
}

func (s *badgerStore) load() ([]CachedResult, error) {
	var out []CachedResult
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if len(key) < hash.Size {
				return fmt.Errorf("short cache key of %d bytes", len(key))
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec badgerRecord
			if err := cbor.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode cache entry: %w", err)
			}
			o, err := makeOutcome(rec.Status, rec.Detail)
			if err != nil {
				return err
			}
			var k CacheKey
			copy(k.Hash[:], key[:hash.Size])
			k.TestID = string(key[hash.Size:])
			out = append(out, CachedResult{Key: k, Outcome: o, RecordedAt: time.Unix(0, rec.RecordedAt).UTC()})
		}
		return nil
	})
	return out, err
}

func (s *badgerStore) put(r CachedResult) error {
	val, err := compiler.CBOREncMode().Marshal(&badgerRecord{
		Status:     r.Outcome.Status(),
		Detail:     outcomeDetail(r.Outcome),
		RecordedAt: r.RecordedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(r.Key), val)
	})
}

func (s *badgerStore) clear() error { return s.db.DropAll() }

func (s *badgerStore) close() error { return s.db.Close() }
