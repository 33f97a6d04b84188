package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/query"
	"github.com/otell-io/otell/internal/otelsink/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFramedServerHandlesSearchOverUDS(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "payment ok", AttrsJSON: "{}"},
	}))

	udsPath := filepath.Join(t.TempDir(), "otell-query.sock")
	srv, err := NewFramedServer(s, udsPath, "127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Serve(ctx)

	conn, err := net.Dial("unix", udsPath)
	require.NoError(t, err)
	defer conn.Close()

	req := query.DefaultSearchRequest()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	envelope, err := json.Marshal(Envelope{Kind: KindSearch, Payload: payload})
	require.NoError(t, err)

	_, err = conn.Write(append(envelope, '\n'))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp ResponseEnvelope
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Empty(t, resp.Error)

	var search query.SearchResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &search))
	assert.Equal(t, 1, search.TotalMatches)
}

func TestFramedServerReportsUnknownKind(t *testing.T) {
	s := newTestStore(t)

	udsPath := filepath.Join(t.TempDir(), "otell-query.sock")
	srv, err := NewFramedServer(s, udsPath, "127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Serve(ctx)

	conn, err := net.Dial("unix", udsPath)
	require.NoError(t, err)
	defer conn.Close()

	envelope, err := json.Marshal(Envelope{Kind: "bogus"})
	require.NoError(t, err)
	_, err = conn.Write(append(envelope, '\n'))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp ResponseEnvelope
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Contains(t, resp.Error, "unknown request kind")
}

func TestHTTPServerStatusEndpoint(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "payment ok", AttrsJSON: "{}"},
	}))

	h := NewHTTPServer(s, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status query.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.LogsCount)
}

func TestHTTPServerSearchEndpoint(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "payment ok", AttrsJSON: "{}"},
	}))

	h := NewHTTPServer(s, zerolog.Nop())
	body, err := json.Marshal(query.DefaultSearchRequest())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp query.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalMatches)
}

func TestHTTPServerGetTraceByID(t *testing.T) {
	s := newTestStore(t)
	traceID := "0102030405060708090a0b0c0d0e0f10"
	require.NoError(t, s.InsertSpans([]model.SpanRecord{
		{TraceID: traceID, SpanID: "0102030405060708", Service: "checkout", Name: "root", StartTs: time.Now(), EndTs: time.Now(), Status: "OK", AttrsJSON: "{}", EventsJSON: "[]"},
	}))

	h := NewHTTPServer(s, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/v1/trace/"+traceID, nil)
	w := httptest.NewRecorder()
	h.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp query.TraceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, traceID, resp.TraceID)
	require.Len(t, resp.Spans, 1)
	assert.Equal(t, "bounded", resp.Context.Policy)
}

func TestHTTPServerResolveHandleMatchesDirectDispatch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "payment ok", AttrsJSON: "{}"},
	}))

	payload, err := json.Marshal(query.DefaultSearchRequest())
	require.NoError(t, err)
	inner := Envelope{Kind: KindSearch, Payload: payload}

	direct := HandleRequest(s, inner)

	handle, err := EncodeHandle(inner)
	require.NoError(t, err)
	resolved := HandleRequest(s, Envelope{Kind: KindResolveHandle, Payload: mustMarshal(t, handle)})

	assert.Equal(t, direct.Kind, resolved.Kind)
	assert.JSONEq(t, string(direct.Payload), string(resolved.Payload))
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHTTPServerTailFiltersBySeverityAndService(t *testing.T) {
	s := newTestStore(t)
	h := NewHTTPServer(s, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/tail?service=checkout&severity_gte=17", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Mux().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "billing", Severity: 17, Body: "ignored: wrong service", AttrsJSON: "{}"},
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "ignored: low severity", AttrsJSON: "{}"},
		{Ts: time.Now(), Service: "checkout", Severity: 17, Body: "matches filter", AttrsJSON: "{}"},
	}))

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, rec.Body.String(), "matches filter")
	assert.NotContains(t, rec.Body.String(), "ignored: wrong service")
	assert.NotContains(t, rec.Body.String(), "ignored: low severity")
}

func TestHTTPServerTailStreamsNewLogs(t *testing.T) {
	s := newTestStore(t)
	h := NewHTTPServer(s, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/tail", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Mux().ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.InsertLogs([]model.LogRecord{
		{Ts: time.Now(), Service: "checkout", Severity: 9, Body: "live tail", AttrsJSON: "{}"},
	}))

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, rec.Body.String(), "event: log")
	assert.Contains(t, rec.Body.String(), "live tail")
}
