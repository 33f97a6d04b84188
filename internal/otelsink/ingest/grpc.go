// Package ingest implements otell's OTLP gRPC and HTTP receivers, decoding
// incoming payloads and handing them to the write pipeline.
package ingest

import (
	"context"

	"google.golang.org/grpc"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/otell-io/otell/internal/otelsink/decode"
	"github.com/otell-io/otell/internal/otelsink/forward"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/pipeline"
)

// GRPCIngest implements the OTLP logs/trace/metrics collector services via
// three thin per-signal wrappers, since gRPC requires a distinct Export
// method signature for each service.
type GRPCIngest struct {
	pipeline  *pipeline.Pipeline
	forwarder *forward.Forwarder
}

// NewGRPCIngest builds a GRPCIngest writing decoded batches to pipeline and
// optionally fanning raw requests out to forwarder.
func NewGRPCIngest(p *pipeline.Pipeline, fwd *forward.Forwarder) *GRPCIngest {
	return &GRPCIngest{pipeline: p, forwarder: fwd}
}

// Register wires all three collector services onto srv.
func (g *GRPCIngest) Register(srv *grpc.Server) {
	collogspb.RegisterLogsServiceServer(srv, &logsServiceWrapper{ingest: g})
	coltracepb.RegisterTraceServiceServer(srv, &traceServiceWrapper{ingest: g})
	colmetricspb.RegisterMetricsServiceServer(srv, &metricsServiceWrapper{ingest: g})
}

type logsServiceWrapper struct {
	collogspb.UnimplementedLogsServiceServer
	ingest *GRPCIngest
}

func (w *logsServiceWrapper) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	logs := decodeLogs(req)
	w.ingest.pipeline.SubmitLogs(logs)
	if w.ingest.forwarder != nil {
		w.ingest.forwarder.SubmitLogs(req)
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

type traceServiceWrapper struct {
	coltracepb.UnimplementedTraceServiceServer
	ingest *GRPCIngest
}

func (w *traceServiceWrapper) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	spans := decodeSpans(req)
	w.ingest.pipeline.SubmitSpans(spans)
	if w.ingest.forwarder != nil {
		w.ingest.forwarder.SubmitTraces(req)
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

type metricsServiceWrapper struct {
	colmetricspb.UnimplementedMetricsServiceServer
	ingest *GRPCIngest
}

func (w *metricsServiceWrapper) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	points := decodeMetrics(req)
	w.ingest.pipeline.SubmitMetrics(points)
	if w.ingest.forwarder != nil {
		w.ingest.forwarder.SubmitMetrics(req)
	}
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}

func decodeLogs(req *collogspb.ExportLogsServiceRequest) []model.LogRecord {
	var logs []model.LogRecord
	for _, rl := range req.GetResourceLogs() {
		resource := rl.GetResource()
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				logs = append(logs, decode.DecodeLog(resource, lr))
			}
		}
	}
	return logs
}

func decodeSpans(req *coltracepb.ExportTraceServiceRequest) []model.SpanRecord {
	var spans []model.SpanRecord
	for _, rs := range req.GetResourceSpans() {
		resource := rs.GetResource()
		for _, ss := range rs.GetScopeSpans() {
			for _, sp := range ss.GetSpans() {
				spans = append(spans, decode.DecodeSpan(resource, sp))
			}
		}
	}
	return spans
}

func decodeMetrics(req *colmetricspb.ExportMetricsServiceRequest) []model.MetricPoint {
	var points []model.MetricPoint
	for _, rm := range req.GetResourceMetrics() {
		resource := rm.GetResource()
		for _, sm := range rm.GetScopeMetrics() {
			for _, metric := range sm.GetMetrics() {
				points = append(points, decode.DecodeMetricPoints(resource, metric)...)
			}
		}
	}
	return points
}
