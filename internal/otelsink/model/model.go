// Package model defines the three record types otell persists: logs,
// spans, and metric points.
package model

import "time"

// LogRecord is a single ingested log line.
type LogRecord struct {
	ID        int64
	Ts        time.Time
	Service   string
	Severity  int32
	TraceID   *string
	SpanID    *string
	Body      string
	AttrsJSON string
	AttrsText string
}

// SpanRecord is a single ingested trace span, keyed by (TraceID, SpanID).
type SpanRecord struct {
	TraceID      string
	SpanID       string
	ParentSpanID *string
	Service      string
	Name         string
	StartTs      time.Time
	EndTs        time.Time
	Status       string
	AttrsJSON    string
	EventsJSON   string
}

// DurationMS returns the span's wall-clock duration in milliseconds,
// clamped to zero if EndTs precedes StartTs.
func (s SpanRecord) DurationMS() int64 {
	d := s.EndTs.Sub(s.StartTs).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

// MetricPoint is a single ingested numeric data point.
type MetricPoint struct {
	ID        int64
	Ts        time.Time
	Name      string
	Service   string
	Value     float64
	AttrsJSON string
}
