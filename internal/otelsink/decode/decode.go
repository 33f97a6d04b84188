// Package decode converts OTLP protobuf payloads into otell's internal
// record types.
package decode

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/otell-io/otell/internal/otelsink/model"
)

// ServiceName extracts the "service.name" resource attribute, defaulting to
// "unknown" when absent.
func ServiceName(resource *resourcepb.Resource) string {
	if resource == nil {
		return "unknown"
	}
	for _, attr := range resource.GetAttributes() {
		if attr.GetKey() == "service.name" {
			return anyValueToString(attr.GetValue())
		}
	}
	return "unknown"
}

// DecodeLog converts a single OTLP log record into a LogRecord.
func DecodeLog(resource *resourcepb.Resource, lr *logspb.LogRecord) model.LogRecord {
	attrs := kvToMap(lr.GetAttributes())

	var traceID, spanID *string
	if len(lr.GetTraceId()) > 0 {
		id := bytesToHex(lr.GetTraceId())
		traceID = &id
	}
	if len(lr.GetSpanId()) > 0 {
		id := bytesToHex(lr.GetSpanId())
		spanID = &id
	}

	ts := lr.GetTimeUnixNano()
	if ts == 0 {
		ts = lr.GetObservedTimeUnixNano()
	}

	attrsJSON := kvToJSON(attrs)
	return model.LogRecord{
		Ts:        nanosToTime(ts),
		Service:   ServiceName(resource),
		Severity:  int32(lr.GetSeverityNumber()),
		TraceID:   traceID,
		SpanID:    spanID,
		Body:      anyValueToString(lr.GetBody()),
		AttrsJSON: attrsJSON,
		AttrsText: jsonToAttrText(attrs),
	}
}

// DecodeSpan converts a single OTLP span into a SpanRecord. A span with no
// status defaults to "OK", matching OTLP's unset-status convention.
func DecodeSpan(resource *resourcepb.Resource, sp *tracepb.Span) model.SpanRecord {
	attrs := kvToMap(sp.GetAttributes())

	var parentSpanID *string
	if len(sp.GetParentSpanId()) > 0 {
		id := bytesToHex(sp.GetParentSpanId())
		parentSpanID = &id
	}

	status := "OK"
	if st := sp.GetStatus(); st != nil {
		if msg := st.GetMessage(); msg != "" {
			status = msg
		} else {
			status = statusCodeToString(st.GetCode())
		}
	}

	return model.SpanRecord{
		TraceID:      bytesToHex(sp.GetTraceId()),
		SpanID:       bytesToHex(sp.GetSpanId()),
		ParentSpanID: parentSpanID,
		Service:      ServiceName(resource),
		Name:         sp.GetName(),
		StartTs:      nanosToTime(sp.GetStartTimeUnixNano()),
		EndTs:        nanosToTime(sp.GetEndTimeUnixNano()),
		Status:       status,
		AttrsJSON:    kvToJSON(attrs),
		EventsJSON:   eventsToJSON(sp.GetEvents()),
	}
}

// DecodeMetricPoints converts one OTLP metric into one MetricPoint per data
// point. Only gauge and sum metrics are ingested; histograms, summaries,
// and exponential histograms are deliberately dropped.
func DecodeMetricPoints(resource *resourcepb.Resource, metric *metricspb.Metric) []model.MetricPoint {
	service := ServiceName(resource)
	switch data := metric.GetData().(type) {
	case *metricspb.Metric_Sum:
		return numberPointsToMetrics(service, metric.GetName(), data.Sum.GetDataPoints())
	case *metricspb.Metric_Gauge:
		return numberPointsToMetrics(service, metric.GetName(), data.Gauge.GetDataPoints())
	default:
		return nil
	}
}

func numberPointsToMetrics(service, name string, points []*metricspb.NumberDataPoint) []model.MetricPoint {
	out := make([]model.MetricPoint, 0, len(points))
	for _, dp := range points {
		var value float64
		switch v := dp.GetValue().(type) {
		case *metricspb.NumberDataPoint_AsDouble:
			value = v.AsDouble
		case *metricspb.NumberDataPoint_AsInt:
			value = float64(v.AsInt)
		}
		out = append(out, model.MetricPoint{
			Ts:        nanosToTime(dp.GetTimeUnixNano()),
			Name:      name,
			Service:   service,
			Value:     value,
			AttrsJSON: kvToJSON(kvToMap(dp.GetAttributes())),
		})
	}
	return out
}

func nanosToTime(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}

func bytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func statusCodeToString(code tracepb.Status_StatusCode) string {
	switch code {
	case tracepb.Status_STATUS_CODE_ERROR:
		return "ERROR"
	case tracepb.Status_STATUS_CODE_OK:
		return "OK"
	default:
		return "OK"
	}
}

func kvToMap(kvs []*commonpb.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[kv.GetKey()] = anyValueToString(kv.GetValue())
	}
	return m
}

func kvToJSON(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// jsonToAttrText flattens an attribute map into a space-joined "key=value"
// string for full-text matching alongside the log body, sorted by key for
// deterministic output.
func jsonToAttrText(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += k + "=" + attrs[k]
	}
	return out
}

func eventsToJSON(events []*tracepb.Span_Event) string {
	if len(events) == 0 {
		return "[]"
	}
	type eventOut struct {
		Name  string            `json:"name"`
		Ts    int64             `json:"ts_unix_nano"`
		Attrs map[string]string `json:"attrs"`
	}
	out := make([]eventOut, 0, len(events))
	for _, ev := range events {
		out = append(out, eventOut{
			Name:  ev.GetName(),
			Ts:    int64(ev.GetTimeUnixNano()),
			Attrs: kvToMap(ev.GetAttributes()),
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func anyValueToString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]string, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, anyValueToString(item))
		}
		data, _ := json.Marshal(items)
		return string(data)
	case *commonpb.AnyValue_KvlistValue:
		m := kvToMap(val.KvlistValue.GetValues())
		data, _ := json.Marshal(m)
		return string(data)
	default:
		return ""
	}
}
