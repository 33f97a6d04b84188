package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otell-io/otell/internal/otelsink/model"
)

func TestTTLPrunesOldLogs(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertLogs([]model.LogRecord{
		logAt(now, -2*time.Hour, "checkout", "old", 9),
		logAt(now, -time.Minute, "checkout", "recent", 9),
	}))
	require.NoError(t, s.InsertSpans([]model.SpanRecord{
		{TraceID: "t1", SpanID: "s1", Service: "checkout", Name: "root",
			StartTs: now.Add(-3 * time.Hour), EndTs: now.Add(-2 * time.Hour), Status: "OK",
			AttrsJSON: "{}", EventsJSON: "[]"},
	}))
	require.NoError(t, s.InsertMetrics([]model.MetricPoint{
		{Ts: now.Add(-2 * time.Hour), Name: "latency_ms", Service: "checkout", Value: 1, AttrsJSON: "{}"},
		{Ts: now.Add(-time.Minute), Name: "latency_ms", Service: "checkout", Value: 2, AttrsJSON: "{}"},
	}))

	// time.Now() drives the cutoff internally, so use a TTL wide enough to
	// keep the recent rows (< 1 hour old) and prune everything older than
	// roughly two hours ago relative to the real clock won't work here;
	// instead this test relies on PruneTTL's cutoff being time.Now()-ttl, so
	// we size the TTL around the fixed `now` baseline and the actual clock.
	cutoffAge := time.Since(now) + 90*time.Minute
	require.NoError(t, s.PruneTTL(cutoffAge))

	status, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.LogsCount)
	assert.Equal(t, 0, status.SpansCount)
	assert.Equal(t, 1, status.MetricsCount)
}

func TestPruneSizeNoopForInMemory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PruneSize(1))
}
