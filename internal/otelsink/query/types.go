// Package query holds the request and response types exchanged across
// otell's query transport (UDS/TCP framed protocol and HTTP/JSON).
package query

import (
	"time"

	"github.com/otell-io/otell/internal/otelsink/filter"
	"github.com/otell-io/otell/internal/otelsink/model"
)

// SearchRequest describes a log search.
type SearchRequest struct {
	Pattern        *string
	Fixed          bool
	IgnoreCase     bool
	Service        *string
	TraceID        *string
	SpanID         *string
	SeverityGte    *filter.Severity
	AttrFilters    []filter.AttrFilter
	Window         filter.TimeWindow
	Sort           filter.SortOrder
	Limit          int
	ContextLines   int
	ContextSeconds *int64
	CountOnly      bool
	IncludeStats   bool
}

// DefaultSearchRequest returns a SearchRequest with otell's documented
// defaults (limit 100, ts_asc sort, unconstrained window).
func DefaultSearchRequest() SearchRequest {
	return SearchRequest{
		Window: filter.All(),
		Sort:   filter.SortTsAsc,
		Limit:  100,
	}
}

// SearchStats holds grouped counts over the matched log set.
type SearchStats struct {
	ByService  []KV
	BySeverity []KV
}

// KV is a generic (label, count) pair preserving insertion order.
type KV struct {
	Key   string
	Count int
}

// SearchResponse is the result of a log search.
type SearchResponse struct {
	TotalMatches int
	Returned     int
	Records      []model.LogRecord
	Stats        *SearchStats
}

// LogContextMode selects how much log context accompanies a trace or span
// lookup.
type LogContextMode string

const (
	LogContextNone    LogContextMode = "none"
	LogContextBounded LogContextMode = "bounded"
	LogContextAll     LogContextMode = "all"
)

// TraceRequest asks for a full trace plus optional log context.
type TraceRequest struct {
	TraceID    string
	RootSpanID *string
	Logs       LogContextMode
}

// LogsContextMeta describes how the returned log context was selected.
type LogsContextMeta struct {
	Policy    string
	Limit     int
	Truncated bool
}

// TraceResponse is a reconstructed trace subtree plus log context.
type TraceResponse struct {
	TraceID string
	Spans   []model.SpanRecord
	Logs    []model.LogRecord
	Context LogsContextMeta
}

// SpanRequest asks for a single span plus optional log context.
type SpanRequest struct {
	TraceID string
	SpanID  string
	Logs    LogContextMode
}

// SpanResponse is a single span plus log context.
type SpanResponse struct {
	Span    model.SpanRecord
	Logs    []model.LogRecord
	Context LogsContextMeta
}

// TracesRequest lists root spans (traces) matching a filter.
type TracesRequest struct {
	Service *string
	Status  *string
	Window  filter.TimeWindow
	Sort    filter.SortOrder
	Limit   int
}

// TraceListItem summarizes one trace for list_traces.
type TraceListItem struct {
	TraceID    string
	RootName   string
	DurationMS int64
	SpanCount  int
	Status     string
}

// MetricsRequest queries raw points and/or aggregated series for one
// metric name.
type MetricsRequest struct {
	Name    string
	Service *string
	Window  filter.TimeWindow
	GroupBy *string
	Agg     *string
	Limit   int
}

// MetricSeries is one aggregated (group, value) result.
type MetricSeries struct {
	Group string
	Value float64
}

// MetricsResponse holds raw points plus any aggregated series.
type MetricsResponse struct {
	Points []model.MetricPoint
	Series []MetricSeries
}

// MetricsListRequest lists distinct metric names observed in a window.
type MetricsListRequest struct {
	Service *string
	Window  filter.TimeWindow
	Limit   int
}

// MetricNameItem is one (name, count) entry in a metrics list.
type MetricNameItem struct {
	Name  string
	Count int
}

// MetricsListResponse lists distinct metric names.
type MetricsListResponse struct {
	Metrics []MetricNameItem
}

// StatusResponse reports store-wide counters and sizing.
type StatusResponse struct {
	DBPath       string
	DBSizeBytes  uint64
	LogsCount    int
	SpansCount   int
	MetricsCount int
	OldestTs     *time.Time
	NewestTs     *time.Time
}

// QueryHandle carries an opaque, base64-encoded request for deferred
// resolution via the transport's ResolveHandle operation.
type QueryHandle struct {
	Handle string
}
