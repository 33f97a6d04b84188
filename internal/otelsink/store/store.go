// Package store implements otell's embedded columnar storage and query
// engine over DuckDB.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/otell-io/otell/internal/otelsink/broadcast"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/otellerr"
	"github.com/otell-io/otell/internal/otelsink/query"
)

// Store is otell's embedded DuckDB-backed store. All access to db is
// serialized through mu: DuckDB's single-writer-connection semantics make
// one connection safest to share across the whole process rather than
// pooling.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	logs   *broadcast.Bus[model.LogRecord]
}

// Open opens (or creates) a DuckDB database at path, applying the schema.
func Open(path string) (*Store, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, otellerr.Wrapf(otellerr.Io, err, "failed to create db directory for %s", path)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "failed to open duckdb")
	}
	if _, err := db.Exec("PRAGMA threads=4;"); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "failed to set pragmas")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "failed to initialize schema")
	}

	dbPath := path
	if dbPath == "" {
		dbPath = ":memory:"
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
		logs:   broadcast.New[model.LogRecord](8192),
	}, nil
}

// OpenInMemory opens an ephemeral, process-local store. Used by tests and
// by any caller that wants a scratch database.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SubscribeLogs registers a new live-tail subscriber.
func (s *Store) SubscribeLogs() *broadcast.Subscription[model.LogRecord] {
	return s.logs.Subscribe()
}

func (s *Store) publishLog(r model.LogRecord) {
	s.logs.Publish(r)
}

// Status reports row counts, the oldest/newest log timestamp, and on-disk
// size (zero for in-memory databases).
func (s *Store) Status() (query.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logsCount, err := s.scalarInt("SELECT COUNT(*) FROM logs")
	if err != nil {
		return query.StatusResponse{}, err
	}
	spansCount, err := s.scalarInt("SELECT COUNT(*) FROM spans")
	if err != nil {
		return query.StatusResponse{}, err
	}
	metricsCount, err := s.scalarInt("SELECT COUNT(*) FROM metric_points")
	if err != nil {
		return query.StatusResponse{}, err
	}
	oldest, err := s.scalarTime("SELECT MIN(ts) FROM logs")
	if err != nil {
		return query.StatusResponse{}, err
	}
	newest, err := s.scalarTime("SELECT MAX(ts) FROM logs")
	if err != nil {
		return query.StatusResponse{}, err
	}

	var sizeBytes uint64
	if s.dbPath != ":memory:" {
		if info, err := os.Stat(s.dbPath); err == nil {
			sizeBytes = uint64(info.Size())
		}
	}

	return query.StatusResponse{
		DBPath:       s.dbPath,
		DBSizeBytes:  sizeBytes,
		LogsCount:    logsCount,
		SpansCount:   spansCount,
		MetricsCount: metricsCount,
		OldestTs:     oldest,
		NewestTs:     newest,
	}, nil
}

func (s *Store) scalarInt(query string) (int, error) {
	var n int64
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, otellerr.Wrapf(otellerr.Store, err, "query failed: %s", query)
	}
	return int(n), nil
}

func (s *Store) scalarTime(query string) (*time.Time, error) {
	var t sql.NullTime
	if err := s.db.QueryRow(query).Scan(&t); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "query failed: %s", query)
	}
	if !t.Valid {
		return nil, nil
	}
	out := t.Time
	return &out, nil
}
