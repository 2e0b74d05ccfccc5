package testengine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chazu/vela/compiler/hash"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS test_results (
	term_hash   TEXT NOT NULL,
	test_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (term_hash, test_id)
);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open test cache: %w", err)
	}
	// One connection: a single writer, and :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate test cache: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) load() ([]CachedResult, error) {
	rows, err := s.db.Query(`SELECT term_hash, test_id, status, detail, recorded_at FROM test_results`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedResult
	for rows.Next() {
		var (
			hexHash, id, status, detail string
			recorded                    int64
		)
		if err := rows.Scan(&hexHash, &id, &status, &detail, &recorded); err != nil {
			return nil, err
		}
		h, err := hash.ParseHex(hexHash)
		if err != nil {
			return nil, err
		}
		st, err := parseStatus(status)
		if err != nil {
			return nil, err
		}
		o, err := makeOutcome(st, detail)
		if err != nil {
			return nil, err
		}
		out = append(out, CachedResult{
			Key:        CacheKey{Hash: h, TestID: id},
			Outcome:    o,
			RecordedAt: time.Unix(0, recorded).UTC(),
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) put(r CachedResult) error {
	_, err := s.db.Exec(
		`INSERT INTO test_results (term_hash, test_id, status, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(term_hash, test_id) DO UPDATE SET
		   status = excluded.status, detail = excluded.detail, recorded_at = excluded.recorded_at`,
		r.Key.Hash.String(), r.Key.TestID, r.Outcome.Status().String(), outcomeDetail(r.Outcome), r.RecordedAt.UnixNano(),
	)
	return err
}

func (s *sqliteStore) clear() error {
	_, err := s.db.Exec(`DELETE FROM test_results`)
	return err
}

func (s *sqliteStore) close() error { return s.db.Close() }
