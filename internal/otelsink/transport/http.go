package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/otell-io/otell/internal/otelsink/broadcast"
	"github.com/otell-io/otell/internal/otelsink/filter"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/query"
)

// tailStore is the subset of *store.Store the HTTP tail endpoint needs on
// top of queryStore.
type tailStore interface {
	queryStore
	SubscribeLogs() *broadcast.Subscription[model.LogRecord]
}

// HTTPServer exposes otell's query operations as HTTP/JSON endpoints, plus
// a Server-Sent Events endpoint for live log tailing.
type HTTPServer struct {
	store  tailStore
	logger zerolog.Logger
}

// NewHTTPServer builds an HTTPServer over store.
func NewHTTPServer(store tailStore, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{store: store, logger: logger.With().Str("component", "query_http").Logger()}
}

// Mux returns the HTTP handler tree: one POST route per query operation,
// GET /v1/trace/{id} (bounded log context), GET /v1/status, and
// GET /v1/tail for live log streaming.
func (s *HTTPServer) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/search", s.handle(func(r *http.Request) (any, error) {
		var req query.SearchRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.SearchLogs(&req)
	}))
	mux.HandleFunc("POST /v1/trace", s.handle(func(r *http.Request) (any, error) {
		var req query.TraceRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.GetTrace(&req)
	}))
	mux.HandleFunc("GET /v1/trace/{id}", s.handle(func(r *http.Request) (any, error) {
		req := query.TraceRequest{TraceID: r.PathValue("id"), Logs: query.LogContextBounded}
		return s.store.GetTrace(&req)
	}))
	mux.HandleFunc("POST /v1/span", s.handle(func(r *http.Request) (any, error) {
		var req query.SpanRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.GetSpan(&req)
	}))
	mux.HandleFunc("POST /v1/traces", s.handle(func(r *http.Request) (any, error) {
		var req query.TracesRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.ListTraces(&req)
	}))
	mux.HandleFunc("POST /v1/metrics", s.handle(func(r *http.Request) (any, error) {
		var req query.MetricsRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.QueryMetrics(&req)
	}))
	mux.HandleFunc("POST /v1/metrics/list", s.handle(func(r *http.Request) (any, error) {
		var req query.MetricsListRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.store.ListMetricNames(&req)
	}))
	mux.HandleFunc("GET /v1/status", s.handle(func(r *http.Request) (any, error) {
		return s.store.Status()
	}))
	mux.HandleFunc("POST /v1/resolve_handle", s.handle(func(r *http.Request) (any, error) {
		var req query.QueryHandle
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		resp := HandleRequest(s.store, Envelope{Kind: KindResolveHandle, Payload: payload})
		if resp.Error != "" {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		var result any
		if err := json.Unmarshal(resp.Payload, &result); err != nil {
			return nil, err
		}
		return result, nil
	}))
	mux.HandleFunc("GET /v1/tail", s.handleTail)
	return mux
}

func decodeJSON(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func (s *HTTPServer) handle(op func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := op(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode query response")
		}
	}
}

// tailFilter holds the GET /v1/tail query-parameter filters applied to each
// record before it is emitted.
type tailFilter struct {
	service     *string
	traceID     *string
	spanID      *string
	severityGte *filter.Severity
	pattern     *regexp.Regexp
	fixed       string
	ignoreCase  bool
}

func parseTailFilter(q url.Values) (tailFilter, error) {
	var tf tailFilter
	if v := q.Get("service"); v != "" {
		tf.service = &v
	}
	if v := q.Get("trace_id"); v != "" {
		tf.traceID = &v
	}
	if v := q.Get("span_id"); v != "" {
		tf.spanID = &v
	}
	if v := q.Get("severity_gte"); v != "" {
		sev, err := filter.ParseSeverity(v)
		if err != nil {
			n, numErr := strconv.Atoi(v)
			if numErr != nil {
				return tailFilter{}, err
			}
			sev = filter.Severity(n)
		}
		tf.severityGte = &sev
	}

	tf.ignoreCase = q.Has("ignore_case")
	fixed := q.Has("fixed")
	if pattern := q.Get("pattern"); pattern != "" {
		if fixed {
			tf.fixed = pattern
			if tf.ignoreCase {
				tf.fixed = strings.ToLower(tf.fixed)
			}
		} else {
			expr := pattern
			if tf.ignoreCase {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return tailFilter{}, err
			}
			tf.pattern = re
		}
	}
	return tf, nil
}

func (tf tailFilter) matches(r model.LogRecord) bool {
	if tf.service != nil && r.Service != *tf.service {
		return false
	}
	if tf.traceID != nil && (r.TraceID == nil || *r.TraceID != *tf.traceID) {
		return false
	}
	if tf.spanID != nil && (r.SpanID == nil || *r.SpanID != *tf.spanID) {
		return false
	}
	if tf.severityGte != nil && r.Severity < int32(*tf.severityGte) {
		return false
	}
	if tf.fixed != "" {
		haystack := r.Body
		if tf.ignoreCase {
			haystack = strings.ToLower(haystack)
		}
		if !strings.Contains(haystack, tf.fixed) {
			return false
		}
	}
	if tf.pattern != nil && !tf.pattern.MatchString(r.Body) {
		return false
	}
	return true
}

// handleTail streams newly ingested logs matching the request's query-param
// filters as Server-Sent Events until the client disconnects.
func (s *HTTPServer) handleTail(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	tf, err := parseTailFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.store.SubscribeLogs()
	defer sub.Close()

	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-sub.C():
			if !ok {
				return
			}
			if !tf.matches(record) {
				continue
			}
			data, err := json.Marshal(record)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
