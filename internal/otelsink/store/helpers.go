package store

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/otell-io/otell/internal/otelsink/duckdb"
	"github.com/otell-io/otell/internal/otelsink/filter"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/otellerr"
	"github.com/otell-io/otell/internal/otelsink/query"
)

// fetchLogsCandidates pushes the structured half of a search (service,
// trace/span id equality, severity floor, time bounds) down to SQL, then
// applies attribute glob filters in memory, matching the split the Rust
// query engine uses.
func (s *Store) fetchLogsCandidates(req *query.SearchRequest) ([]model.LogRecord, error) {
	b := duckdb.NewQueryBuilder("logs").
		Select("ts", "service", "severity", "trace_id", "span_id", "body", "attrs_json", "attrs_text").
		TimeRange(req.Window.Since, req.Window.Until).
		OrderBy("ts")

	if req.Service != nil {
		b = b.Eq("service", *req.Service)
	}
	if req.TraceID != nil {
		b = b.Eq("trace_id", *req.TraceID)
	}
	if req.SpanID != nil {
		b = b.Eq("span_id", *req.SpanID)
	}
	if req.SeverityGte != nil {
		b = b.Gte("severity", int32(*req.SeverityGte))
	}

	sqlText, args, err := b.Build()
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "build search query")
	}

	s.mu.Lock()
	rows, err := s.db.Query(sqlText, args...)
	s.mu.Unlock()
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "query search failed")
	}
	defer rows.Close()

	var results []model.LogRecord
	for rows.Next() {
		var r model.LogRecord
		var traceID, spanID nullableString
		if err := rows.Scan(&r.Ts, &r.Service, &r.Severity, &traceID, &spanID, &r.Body, &r.AttrsJSON, &r.AttrsText); err != nil {
			return nil, otellerr.Wrapf(otellerr.Store, err, "map search row failed")
		}
		r.TraceID = traceID.ptr()
		r.SpanID = spanID.ptr()

		if !matchesAttrFilters(r.AttrsJSON, req.AttrFilters) {
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "iterate search rows failed")
	}

	if req.Sort == filter.SortTsDesc {
		reverseLogs(results)
	}
	return results, nil
}

func (s *Store) fetchTraceSpans(traceID string) ([]model.SpanRecord, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT trace_id, span_id, parent_span_id, service, name, start_ts, end_ts, status, attrs_json, events_json
		FROM spans WHERE trace_id = ? ORDER BY start_ts ASC`, traceID)
	s.mu.Unlock()
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Store, err, "query trace spans failed")
	}
	defer rows.Close()

	var spans []model.SpanRecord
	for rows.Next() {
		var sp model.SpanRecord
		var parent nullableString
		if err := rows.Scan(&sp.TraceID, &sp.SpanID, &parent, &sp.Service, &sp.Name, &sp.StartTs, &sp.EndTs, &sp.Status, &sp.AttrsJSON, &sp.EventsJSON); err != nil {
			return nil, otellerr.Wrapf(otellerr.Store, err, "map trace span failed")
		}
		sp.ParentSpanID = parent.ptr()
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

func (s *Store) fetchLogsForTrace(traceID string, limit int) ([]model.LogRecord, error) {
	req := query.DefaultSearchRequest()
	req.TraceID = &traceID
	req.Limit = limit
	records, err := s.fetchLogsCandidates(&req)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) fetchLogsAroundSpan(traceID, spanID string, limit int) ([]model.LogRecord, error) {
	spans, err := s.fetchTraceSpans(traceID)
	if err != nil {
		return nil, err
	}
	var span *model.SpanRecord
	for i := range spans {
		if spans[i].SpanID == spanID {
			span = &spans[i]
			break
		}
	}
	if span == nil {
		return nil, otellerr.Newf(otellerr.Store, "span not found: %s", spanID)
	}

	lower := span.StartTs.Add(-time.Second)
	upper := span.EndTs.Add(time.Second)

	req := query.DefaultSearchRequest()
	req.TraceID = &traceID
	req.Sort = filter.SortTsAsc
	req.Limit = -1
	rows, err := s.fetchLogsCandidates(&req)
	if err != nil {
		return nil, err
	}

	var out []model.LogRecord
	for _, l := range rows {
		if !l.Ts.Before(lower) && !l.Ts.After(upper) {
			out = append(out, l)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fetchLogsForTraceBounded selects a time-anchored subset of a trace's
// logs when the full set exceeds limit: the root span's start/end, every
// ERROR span's start/end, and the two slowest spans' start/end, each
// expanded ±1s, deduped, and if still over limit, the first half plus the
// trailing remainder in time order.
func (s *Store) fetchLogsForTraceBounded(traceID string, spans []model.SpanRecord, limit int) ([]model.LogRecord, error) {
	allLogs, err := s.fetchLogsForTrace(traceID, -1)
	if err != nil {
		return nil, err
	}
	if len(allLogs) <= limit {
		return allLogs, nil
	}

	var anchors []time.Time
	for _, sp := range spans {
		if sp.ParentSpanID == nil {
			anchors = append(anchors, sp.StartTs, sp.EndTs)
			break
		}
	}
	for _, sp := range spans {
		if sp.Status == "ERROR" {
			anchors = append(anchors, sp.StartTs, sp.EndTs)
		}
	}

	slow := append([]model.SpanRecord(nil), spans...)
	sort.SliceStable(slow, func(i, j int) bool { return slow[i].DurationMS() > slow[j].DurationMS() })
	for i := 0; i < len(slow) && i < 2; i++ {
		anchors = append(anchors, slow[i].StartTs, slow[i].EndTs)
	}

	var chosen []model.LogRecord
	for _, anchor := range anchors {
		lower := anchor.Add(-time.Second)
		upper := anchor.Add(time.Second)
		for _, l := range allLogs {
			if !l.Ts.Before(lower) && !l.Ts.After(upper) {
				chosen = append(chosen, l)
			}
		}
	}

	chosen = dedupeLogs(chosen)
	if len(chosen) <= limit {
		return chosen, nil
	}

	half := limit / 2
	out := make([]model.LogRecord, 0, limit)
	out = append(out, chosen[:half]...)
	out = append(out, chosen[len(chosen)-(limit-half):]...)
	return out, nil
}

func (s *Store) expandWithContext(selected []model.LogRecord, contextLines int) ([]model.LogRecord, error) {
	if len(selected) == 0 {
		return nil, nil
	}

	req := query.DefaultSearchRequest()
	req.Limit = -1
	all, err := s.fetchLogsCandidates(&req)
	if err != nil {
		return nil, err
	}

	type identity struct {
		ts     time.Time
		body   string
		spanID string
	}
	ids := make(map[identity]struct{}, len(selected))
	for _, l := range selected {
		ids[identity{l.Ts, l.Body, derefOr(l.SpanID, "")}] = struct{}{}
	}

	keep := make(map[int]struct{})
	for idx, row := range all {
		if _, ok := ids[identity{row.Ts, row.Body, derefOr(row.SpanID, "")}]; ok {
			start := idx - contextLines
			if start < 0 {
				start = 0
			}
			end := idx + contextLines + 1
			if end > len(all) {
				end = len(all)
			}
			for i := start; i < end; i++ {
				keep[i] = struct{}{}
			}
		}
	}

	var output []model.LogRecord
	for idx, row := range all {
		if _, ok := keep[idx]; ok {
			output = append(output, row)
		}
	}
	return output, nil
}

func (s *Store) expandWithTimeContext(selected []model.LogRecord, seconds int64) ([]model.LogRecord, error) {
	if len(selected) == 0 || seconds <= 0 {
		return selected, nil
	}

	req := query.DefaultSearchRequest()
	req.Limit = -1
	all, err := s.fetchLogsCandidates(&req)
	if err != nil {
		return nil, err
	}

	thresholdMs := seconds * 1000
	var keep []model.LogRecord
	for _, row := range all {
		for _, m := range selected {
			deltaMs := row.Ts.Sub(m.Ts).Milliseconds()
			if deltaMs < 0 {
				deltaMs = -deltaMs
			}
			if deltaMs <= thresholdMs {
				keep = append(keep, row)
				break
			}
		}
	}

	return dedupeLogs(keep), nil
}

func computeSearchStats(records []model.LogRecord) query.SearchStats {
	byService := make(map[string]int)
	bySeverity := make(map[string]int)
	for _, r := range records {
		byService[r.Service]++
		bySeverity[filter.Label(r.Severity)]++
	}

	return query.SearchStats{
		ByService:  sortedCounts(byService),
		BySeverity: sortedCounts(bySeverity),
	}
}

func sortedCounts(counts map[string]int) []query.KV {
	out := make([]query.KV, 0, len(counts))
	for k, v := range counts {
		out = append(out, query.KV{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func aggregateMetrics(points []model.MetricPoint, groupBy, agg *string, limit int) []query.MetricSeries {
	groups := make(map[string][]float64)
	for _, p := range points {
		group := "all"
		if groupBy != nil && *groupBy == "service" {
			group = p.Service
		}
		groups[group] = append(groups[group], p.Value)
	}

	series := make([]query.MetricSeries, 0, len(groups))
	for group, values := range groups {
		sort.Float64s(values)
		series = append(series, query.MetricSeries{Group: group, Value: aggregateValue(values, agg)})
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Group < series[j].Group })
	if limit > 0 && len(series) > limit {
		series = series[:limit]
	}
	return series
}

func aggregateValue(sorted []float64, agg *string) float64 {
	name := "avg"
	if agg != nil {
		name = *agg
	}
	switch name {
	case "count":
		return float64(len(sorted))
	case "min":
		if len(sorted) == 0 {
			return 0
		}
		return sorted[0]
	case "max":
		if len(sorted) == 0 {
			return 0
		}
		return sorted[len(sorted)-1]
	case "p50":
		return percentile(sorted, 0.50)
	case "p95":
		return percentile(sorted, 0.95)
	case "p99":
		return percentile(sorted, 0.99)
	default:
		if len(sorted) == 0 {
			return 0
		}
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		return sum / float64(len(sorted))
	}
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Round(float64(len(sorted)-1) * pct))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func filterSubtree(spans []model.SpanRecord, root string) []model.SpanRecord {
	children := make(map[string][]string)
	byID := make(map[string]model.SpanRecord, len(spans))
	for _, sp := range spans {
		parent := derefOr(sp.ParentSpanID, "")
		children[parent] = append(children[parent], sp.SpanID)
		byID[sp.SpanID] = sp
	}

	keep := make(map[string]struct{})
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := keep[id]; seen {
			continue
		}
		keep[id] = struct{}{}
		stack = append(stack, children[id]...)
	}

	var out []model.SpanRecord
	for id := range keep {
		if sp, ok := byID[id]; ok {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTs.Before(out[j].StartTs) })
	return out
}

func matchesAttrFilters(attrsJSON string, filters []filter.AttrFilter) bool {
	if len(filters) == 0 {
		return true
	}

	var parsed map[string]any
	_ = json.Unmarshal([]byte(attrsJSON), &parsed)

	for _, f := range filters {
		key := strings.TrimPrefix(f.Key, "attrs.")
		value, _ := parsed[key].(string)
		if !f.Matches(value) {
			return false
		}
	}
	return true
}

func applyPattern(rows []model.LogRecord, req *query.SearchRequest) ([]model.LogRecord, error) {
	if req.Pattern == nil {
		return rows, nil
	}
	pattern := *req.Pattern

	if req.Fixed {
		needle := pattern
		if req.IgnoreCase {
			needle = strings.ToLower(needle)
		}
		var out []model.LogRecord
		for _, r := range rows {
			haystack := r.Body
			if req.IgnoreCase {
				haystack = strings.ToLower(haystack)
			}
			if strings.Contains(haystack, needle) {
				out = append(out, r)
			}
		}
		return out, nil
	}

	expr := pattern
	if req.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Parse, err, "invalid regex pattern")
	}

	var out []model.LogRecord
	for _, r := range rows {
		if re.MatchString(r.Body) {
			out = append(out, r)
		}
	}
	return out, nil
}

func dedupeLogs(logs []model.LogRecord) []model.LogRecord {
	type identity struct {
		ts     time.Time
		body   string
		spanID string
	}
	seen := make(map[identity]struct{}, len(logs))
	out := logs[:0:0]
	for _, l := range logs {
		id := identity{l.Ts, l.Body, derefOr(l.SpanID, "")}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out
}

func reverseLogs(logs []model.LogRecord) {
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

type nullableString struct {
	Value string
	Valid bool
}

func (n *nullableString) Scan(src any) error {
	if src == nil {
		n.Value, n.Valid = "", false
		return nil
	}
	switch v := src.(type) {
	case string:
		n.Value, n.Valid = v, true
	case []byte:
		n.Value, n.Valid = string(v), true
	}
	return nil
}

func (n nullableString) ptr() *string {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
