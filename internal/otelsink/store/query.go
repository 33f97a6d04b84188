package store

import (
	"sort"
	"time"

	"github.com/otell-io/otell/internal/otelsink/duckdb"
	"github.com/otell-io/otell/internal/otelsink/filter"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/otellerr"
	"github.com/otell-io/otell/internal/otelsink/query"
)

// SearchLogs runs a pattern/attribute/time search over the logs table,
// pushing structured filters to SQL and applying pattern matching, glob
// attribute filters, and context expansion in memory.
func (s *Store) SearchLogs(req *query.SearchRequest) (*query.SearchResponse, error) {
	candidates, err := s.fetchLogsCandidates(req)
	if err != nil {
		return nil, err
	}

	filtered, err := applyPattern(candidates, req)
	if err != nil {
		return nil, err
	}
	totalMatches := len(filtered)

	var stats *query.SearchStats
	if req.IncludeStats {
		st := computeSearchStats(filtered)
		stats = &st
	}

	if req.CountOnly {
		return &query.SearchResponse{
			TotalMatches: totalMatches,
			Returned:     0,
			Records:      nil,
			Stats:        stats,
		}, nil
	}

	limit := req.Limit
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	selected := append([]model.LogRecord(nil), filtered[:limit]...)

	if req.ContextLines > 0 {
		selected, err = s.expandWithContext(selected, req.ContextLines)
		if err != nil {
			return nil, err
		}
	}
	if req.ContextSeconds != nil {
		selected, err = s.expandWithTimeContext(selected, *req.ContextSeconds)
		if err != nil {
			return nil, err
		}
	}

	return &query.SearchResponse{
		TotalMatches: totalMatches,
		Returned:     len(selected),
		Records:      selected,
		Stats:        stats,
	}, nil
}

// GetTrace reconstructs a trace's span subtree and accompanying log
// context.
func (s *Store) GetTrace(req *query.TraceRequest) (*query.TraceResponse, error) {
	spans, err := s.fetchTraceSpans(req.TraceID)
	if err != nil {
		return nil, err
	}
	if req.RootSpanID != nil {
		spans = filterSubtree(spans, *req.RootSpanID)
	}

	var logs []model.LogRecord
	truncated := false
	switch req.Logs {
	case query.LogContextNone, "":
		logs = nil
	case query.LogContextAll:
		logs, err = s.fetchLogsForTrace(req.TraceID, -1)
		if err != nil {
			return nil, err
		}
	case query.LogContextBounded:
		logs, err = s.fetchLogsForTraceBounded(req.TraceID, spans, 50)
		if err != nil {
			return nil, err
		}
		all, err := s.fetchLogsForTrace(req.TraceID, -1)
		if err != nil {
			return nil, err
		}
		truncated = len(logs) < len(all)
	}

	return &query.TraceResponse{
		TraceID: req.TraceID,
		Spans:   spans,
		Logs:    logs,
		Context: query.LogsContextMeta{
			Policy:    string(logContextPolicy(req.Logs)),
			Limit:     50,
			Truncated: truncated,
		},
	}, nil
}

// GetSpan fetches a single span plus its log context.
func (s *Store) GetSpan(req *query.SpanRequest) (*query.SpanResponse, error) {
	trace, err := s.GetTrace(&query.TraceRequest{
		TraceID: req.TraceID,
		Logs:    query.LogContextNone,
	})
	if err != nil {
		return nil, err
	}

	var found *model.SpanRecord
	for i := range trace.Spans {
		if trace.Spans[i].SpanID == req.SpanID {
			found = &trace.Spans[i]
			break
		}
	}
	if found == nil {
		return nil, otellerr.Newf(otellerr.Store, "span not found: %s", req.SpanID)
	}

	var logs []model.LogRecord
	switch req.Logs {
	case query.LogContextNone, "":
		logs = nil
	case query.LogContextAll:
		all, err := s.fetchLogsForTrace(req.TraceID, -1)
		if err != nil {
			return nil, err
		}
		for _, l := range all {
			if l.SpanID != nil && *l.SpanID == req.SpanID {
				logs = append(logs, l)
			}
		}
	case query.LogContextBounded:
		logs, err = s.fetchLogsAroundSpan(req.TraceID, req.SpanID, 30)
		if err != nil {
			return nil, err
		}
	}

	truncated := req.Logs == query.LogContextBounded && len(logs) == 30
	return &query.SpanResponse{
		Span: *found,
		Logs: logs,
		Context: query.LogsContextMeta{
			Policy:    string(logContextPolicy(req.Logs)),
			Limit:     30,
			Truncated: truncated,
		},
	}, nil
}

func logContextPolicy(mode query.LogContextMode) string {
	switch mode {
	case query.LogContextAll:
		return "all"
	case query.LogContextBounded:
		return "bounded"
	default:
		return "none"
	}
}

// ListTraces lists root spans (one entry per trace) matching a filter.
//
// NOTE: the ts_* orders sort by duration_ms, not by the root span's
// start_ts: ts_asc (and the empty default) sorts by duration ascending,
// and ts_desc sorts by duration descending, the same as duration_desc.
func (s *Store) ListTraces(req *query.TracesRequest) ([]query.TraceListItem, error) {
	s.mu.Lock()
	rows, err := s.queryRootSpanRows(req.Service)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var items []query.TraceListItem
	for _, r := range rows {
		if !filter.TimeWindow(req.Window).Contains(r.startTs) {
			continue
		}
		if req.Status != nil && r.status != *req.Status {
			continue
		}
		items = append(items, query.TraceListItem{
			TraceID:    r.traceID,
			RootName:   r.rootName,
			DurationMS: r.endTs.Sub(r.startTs).Milliseconds(),
			SpanCount:  r.spanCount,
			Status:     r.status,
		})
	}

	switch req.Sort {
	case filter.SortDurationDesc, filter.SortTsDesc:
		sort.SliceStable(items, func(i, j int) bool { return items[i].DurationMS > items[j].DurationMS })
	default: // ts_asc, including the empty default
		sort.SliceStable(items, func(i, j int) bool { return items[i].DurationMS < items[j].DurationMS })
	}

	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

type rootSpanRow struct {
	traceID   string
	rootName  string
	startTs   time.Time
	endTs     time.Time
	status    string
	spanCount int
}

func (s *Store) queryRootSpanRows(service *string) ([]rootSpanRow, error) {
	b := duckdb.NewQueryBuilder("spans s").
		Select("s.trace_id", "s.name", "s.start_ts", "s.end_ts", "s.status",
			"(SELECT COUNT(*) FROM spans s2 WHERE s2.trace_id = s.trace_id) AS span_count").
		Where("s.parent_span_id IS NULL")
	if service != nil {
		b = b.Where("EXISTS (SELECT 1 FROM spans sf WHERE sf.trace_id = s.trace_id AND sf.service = ?)", *service)
	}

	sqlText, args, err := b.Build()
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "build traces query")
	}

	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "query traces failed")
	}
	defer rows.Close()

	var out []rootSpanRow
	for rows.Next() {
		var r rootSpanRow
		if err := rows.Scan(&r.traceID, &r.rootName, &r.startTs, &r.endTs, &r.status, &r.spanCount); err != nil {
			return nil, otellerr.Wrapf(otellerr.Store, err, "map traces row failed")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryMetrics fetches raw points for a metric name and aggregates them
// into one series per group.
func (s *Store) QueryMetrics(req *query.MetricsRequest) (*query.MetricsResponse, error) {
	sqlText, args, err := duckdb.NewQueryBuilder("metric_points").
		Select("ts", "name", "service", "value", "attrs_json").
		Eq("name", req.Name).
		OrderBy("ts").
		Build()
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "build metrics query")
	}

	s.mu.Lock()
	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		s.mu.Unlock()
		return nil, otellerr.Wrapf(otellerr.Store, err, "query metrics failed")
	}

	var points []model.MetricPoint
	for rows.Next() {
		var p model.MetricPoint
		if err := rows.Scan(&p.Ts, &p.Name, &p.Service, &p.Value, &p.AttrsJSON); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, otellerr.Wrapf(otellerr.Store, err, "map metrics row failed")
		}
		points = append(points, p)
	}
	rows.Close()
	s.mu.Unlock()
	if err := rows.Err(); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "iterate metrics rows failed")
	}

	var kept []model.MetricPoint
	for _, p := range points {
		if !filter.TimeWindow(req.Window).Contains(p.Ts) {
			continue
		}
		if req.Service != nil && p.Service != *req.Service {
			continue
		}
		kept = append(kept, p)
	}

	series := aggregateMetrics(kept, req.GroupBy, req.Agg, req.Limit)
	return &query.MetricsResponse{Points: kept, Series: series}, nil
}

// ListMetricNames lists distinct metric names observed in a window, sorted
// by descending observation count then name.
func (s *Store) ListMetricNames(req *query.MetricsListRequest) (*query.MetricsListResponse, error) {
	sqlText, args := duckdb.NewQueryBuilder("metric_points").
		Select("ts", "name", "service").
		OrderBy("-ts").
		MustBuild()

	s.mu.Lock()
	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		s.mu.Unlock()
		return nil, otellerr.Wrapf(otellerr.Store, err, "query metric names failed")
	}

	type row struct {
		ts      time.Time
		name    string
		service string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ts, &r.name, &r.service); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, otellerr.Wrapf(otellerr.Store, err, "map metric names row failed")
		}
		all = append(all, r)
	}
	rows.Close()
	s.mu.Unlock()
	if err := rows.Err(); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "iterate metric names rows failed")
	}

	counts := make(map[string]int)
	for _, r := range all {
		if !filter.TimeWindow(req.Window).Contains(r.ts) {
			continue
		}
		if req.Service != nil && r.service != *req.Service {
			continue
		}
		counts[r.name]++
	}

	items := make([]query.MetricNameItem, 0, len(counts))
	for name, count := range counts {
		items = append(items, query.MetricNameItem{Name: name, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}

	return &query.MetricsListResponse{Metrics: items}, nil
}
