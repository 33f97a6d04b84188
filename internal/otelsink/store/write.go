package store

import (
	"database/sql"

	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// InsertLogs writes a batch of log records in a single transaction and
// publishes each to the live-tail bus. A no-op for an empty batch.
func (s *Store) InsertLogs(records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "begin logs insert")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO logs (id, ts, service, severity, trace_id, span_id, body, attrs_json, attrs_text)
		VALUES (nextval('logs_id_seq'), ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prepare logs insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Ts, r.Service, r.Severity, nullableStr(r.TraceID), nullableStr(r.SpanID), r.Body, r.AttrsJSON, r.AttrsText); err != nil {
			return otellerr.Wrapf(otellerr.Store, err, "insert log row")
		}
	}

	if err := tx.Commit(); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "commit logs insert")
	}

	for _, r := range records {
		s.publishLog(r)
	}
	return nil
}

// InsertSpans upserts a batch of span records by (trace_id, span_id). A
// no-op for an empty batch.
func (s *Store) InsertSpans(records []model.SpanRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "begin spans insert")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO spans
		(trace_id, span_id, parent_span_id, service, name, start_ts, end_ts, status, attrs_json, events_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prepare spans insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.TraceID, r.SpanID, nullableStr(r.ParentSpanID), r.Service, r.Name, r.StartTs, r.EndTs, r.Status, r.AttrsJSON, r.EventsJSON); err != nil {
			return otellerr.Wrapf(otellerr.Store, err, "insert span row")
		}
	}

	if err := tx.Commit(); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "commit spans insert")
	}
	return nil
}

// InsertMetrics writes a batch of metric points in a single transaction. A
// no-op for an empty batch.
func (s *Store) InsertMetrics(points []model.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "begin metrics insert")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO metric_points (id, ts, name, service, value, attrs_json)
		VALUES (nextval('metric_id_seq'), ?, ?, ?, ?, ?)`)
	if err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "prepare metrics insert")
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(p.Ts, p.Name, p.Service, p.Value, p.AttrsJSON); err != nil {
			return otellerr.Wrapf(otellerr.Store, err, "insert metric row")
		}
	}

	if err := tx.Commit(); err != nil {
		return otellerr.Wrapf(otellerr.Store, err, "commit metrics insert")
	}
	return nil
}

func nullableStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
