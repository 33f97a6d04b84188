package store

import (
	"os"
	"time"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// PruneTTL deletes logs, spans, and metric points older than ttl. Logs and
// metrics are pruned on their ts column; spans are pruned on end_ts so a
// long-running span survives until it completes.
func (s *Store) PruneTTL(ttl time.Duration) error {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM logs WHERE ts < ?`, cutoff); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prune logs by ttl")
	}
	if _, err := s.db.Exec(`DELETE FROM spans WHERE end_ts < ?`, cutoff); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prune spans by ttl")
	}
	if _, err := s.db.Exec(`DELETE FROM metric_points WHERE ts < ?`, cutoff); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prune metrics by ttl")
	}
	return nil
}

// pruneSizeBatch is the number of oldest rows removed per table once the
// database file exceeds its configured byte budget.
const pruneSizeBatch = 10000

// PruneSize deletes the oldest rows from logs and metric_points when the
// database file exceeds maxBytes. Spans are never size-pruned; only
// PruneTTL removes them.
// A no-op for an in-memory database, which has no file size to measure.
func (s *Store) PruneSize(maxBytes int64) error {
	if s.dbPath == ":memory:" {
		return nil
	}

	info, err := os.Stat(s.dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return otellerr.Wrapf(otellerr.Io, err, "stat database file")
	}
	if info.Size() <= maxBytes {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM logs WHERE id IN (
		SELECT id FROM logs ORDER BY ts ASC LIMIT ?)`, pruneSizeBatch); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prune logs by size")
	}
	if _, err := s.db.Exec(`DELETE FROM metric_points WHERE id IN (
		SELECT id FROM metric_points ORDER BY ts ASC LIMIT ?)`, pruneSizeBatch); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prune metrics by size")
	}
	return nil
}

// RunRetention applies both the age-based and size-based prune passes.
// ttl of zero disables age-based pruning; maxBytes of zero disables
// size-based pruning.
func (s *Store) RunRetention(ttl time.Duration, maxBytes int64) error {
	if ttl > 0 {
		if err := s.PruneTTL(ttl); err != nil {
			return err
		}
	}
	if maxBytes > 0 {
		if err := s.PruneSize(maxBytes); err != nil {
			return err
		}
	}
	return nil
}
