package ingest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
)

var errDecodeFailed = errors.New("otlp http payload decode failed")

// HTTPIngest serves the OTLP/HTTP receiver endpoints (/v1/logs, /v1/traces,
// /v1/metrics), accepting both protobuf and JSON bodies per the OTLP/HTTP
// spec.
type HTTPIngest struct {
	pipelineIngest *GRPCIngest
	logger         zerolog.Logger
}

// NewHTTPIngest builds an HTTPIngest sharing the same pipeline/forwarder
// wiring as the gRPC receiver.
func NewHTTPIngest(g *GRPCIngest, logger zerolog.Logger) *HTTPIngest {
	return &HTTPIngest{pipelineIngest: g, logger: logger.With().Str("component", "otlp_http").Logger()}
}

// Mux returns an http.ServeMux with the three OTLP export routes wired.
func (h *HTTPIngest) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", h.handleLogs)
	mux.HandleFunc("/v1/traces", h.handleTraces)
	mux.HandleFunc("/v1/metrics", h.handleMetrics)
	return mux
}

func (h *HTTPIngest) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req := &collogspb.ExportLogsServiceRequest{}
	if err := decodeOTLPHTTPPayload("logs", r.Header, body, req, h.logger); err != nil {
		http.Error(w, "failed to decode otlp payload", http.StatusBadRequest)
		return
	}

	logs := decodeLogs(req)
	h.pipelineIngest.pipeline.SubmitLogs(logs)
	if h.pipelineIngest.forwarder != nil {
		h.pipelineIngest.forwarder.SubmitLogs(req)
	}

	writeProtoResponse(w, &collogspb.ExportLogsServiceResponse{})
}

func (h *HTTPIngest) handleTraces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req := &coltracepb.ExportTraceServiceRequest{}
	if err := decodeOTLPHTTPPayload("traces", r.Header, body, req, h.logger); err != nil {
		http.Error(w, "failed to decode otlp payload", http.StatusBadRequest)
		return
	}

	spans := decodeSpans(req)
	h.pipelineIngest.pipeline.SubmitSpans(spans)
	if h.pipelineIngest.forwarder != nil {
		h.pipelineIngest.forwarder.SubmitTraces(req)
	}

	writeProtoResponse(w, &coltracepb.ExportTraceServiceResponse{})
}

func (h *HTTPIngest) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req := &colmetricspb.ExportMetricsServiceRequest{}
	if err := decodeOTLPHTTPPayload("metrics", r.Header, body, req, h.logger); err != nil {
		http.Error(w, "failed to decode otlp payload", http.StatusBadRequest)
		return
	}

	points := decodeMetrics(req)
	h.pipelineIngest.pipeline.SubmitMetrics(points)
	if h.pipelineIngest.forwarder != nil {
		h.pipelineIngest.forwarder.SubmitMetrics(req)
	}

	writeProtoResponse(w, &colmetricspb.ExportMetricsServiceResponse{})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func isJSONContentType(headers http.Header) bool {
	return strings.Contains(strings.ToLower(headers.Get("Content-Type")), "json")
}

// decodeOTLPHTTPPayload decodes body into msg, trying the format the
// Content-Type header implies first and falling back to the other format
// when that fails — some senders mislabel their content type.
func decodeOTLPHTTPPayload(signal string, headers http.Header, body []byte, msg proto.Message, logger zerolog.Logger) error {
	contentType := headers.Get("Content-Type")

	if isJSONContentType(headers) {
		if err := protojson.Unmarshal(body, msg); err == nil {
			return nil
		}
		if err := proto.Unmarshal(body, msg); err == nil {
			logger.Warn().Str("signal", signal).Str("content_type", contentType).
				Msg("otlp http payload matched protobuf despite json content-type")
			return nil
		}
		return errDecodeFailed
	}

	if err := proto.Unmarshal(body, msg); err == nil {
		return nil
	}
	if err := protojson.Unmarshal(body, msg); err == nil {
		logger.Warn().Str("signal", signal).Str("content_type", contentType).
			Msg("otlp http payload matched json despite non-json content-type")
		return nil
	}
	return errDecodeFailed
}

func writeProtoResponse(w http.ResponseWriter, resp proto.Message) {
	data, err := proto.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
