// Package forward best-effort fans accepted OTLP payloads out to a
// downstream collector, independent of otell's own storage write path.
package forward

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
	"github.com/otell-io/otell/internal/retry"
)

// Protocol selects the wire protocol used to reach the downstream
// collector.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// ParseProtocol parses a case-insensitive forward protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "grpc":
		return ProtocolGRPC, nil
	case "http":
		return ProtocolHTTP, nil
	default:
		return "", otellerr.Newf(otellerr.Config, "unknown forward protocol: %s", s)
	}
}

// Compression selects whether the forwarded payload is gzip-compressed.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// ParseCompression parses a case-insensitive forward compression name.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	default:
		return "", otellerr.Newf(otellerr.Config, "unknown forward compression: %s", s)
	}
}

// Config configures a Forwarder.
type Config struct {
	Endpoint    string
	Protocol    Protocol
	Compression Compression
	Headers     [][2]string
	Timeout     time.Duration
	QueueSize   int
}

const forwardRetries = 3

type forwardMsg struct {
	logs    *collogspb.ExportLogsServiceRequest
	traces  *coltracepb.ExportTraceServiceRequest
	metrics *colmetricspb.ExportMetricsServiceRequest
}

// Forwarder fans export requests out to a downstream OTLP collector on a
// background goroutine. Forwarding failures are logged, never returned to
// the ingest path: forwarding is strictly best-effort.
type Forwarder struct {
	cfg        Config
	logger     zerolog.Logger
	queue      chan forwardMsg
	httpClient *http.Client

	grpcConn      *grpc.ClientConn
	logsClient    collogspb.LogsServiceClient
	traceClient   coltracepb.TraceServiceClient
	metricsClient colmetricspb.MetricsServiceClient
}

// New builds and starts a Forwarder. Returns nil if cfg.Endpoint is empty:
// forwarding is entirely optional.
func New(cfg Config, logger zerolog.Logger) (*Forwarder, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	f := &Forwarder{
		cfg:        cfg,
		logger:     logger.With().Str("component", "forwarder").Logger(),
		queue:      make(chan forwardMsg, cfg.QueueSize),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	if cfg.Protocol == ProtocolGRPC {
		conn, err := dialGRPC(cfg.Endpoint)
		if err != nil {
			return nil, otellerr.Wrapf(otellerr.Io, err, "failed to dial forward endpoint %s", cfg.Endpoint)
		}
		f.grpcConn = conn
		f.logsClient = collogspb.NewLogsServiceClient(conn)
		f.traceClient = coltracepb.NewTraceServiceClient(conn)
		f.metricsClient = colmetricspb.NewMetricsServiceClient(conn)
	}

	go f.run()
	return f, nil
}

func dialGRPC(endpoint string) (*grpc.ClientConn, error) {
	endpoint = normalizeGRPCEndpoint(endpoint)
	return grpc.NewClient(endpoint, grpc.WithTransportCredentials(transportCreds(endpoint)))
}

// normalizeGRPCEndpoint strips a scheme grpc.NewClient doesn't expect in
// its target string, since otell's config accepts endpoints with or
// without one.
func normalizeGRPCEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "grpc://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return endpoint
}

func transportCreds(endpoint string) credentials.TransportCredentials {
	if strings.Contains(endpoint, ":443") {
		return credentials.NewTLS(&tls.Config{})
	}
	return insecure.NewCredentials()
}

// Close releases the forwarder's gRPC connection, if any.
func (f *Forwarder) Close() error {
	if f.grpcConn != nil {
		return f.grpcConn.Close()
	}
	return nil
}

// SubmitLogs enqueues a logs export request for forwarding. Dropped
// with a logged warning if the queue is full.
func (f *Forwarder) SubmitLogs(req *collogspb.ExportLogsServiceRequest) {
	f.enqueue(forwardMsg{logs: req})
}

// SubmitTraces enqueues a trace export request for forwarding. Dropped
// with a logged warning if the queue is full.
func (f *Forwarder) SubmitTraces(req *coltracepb.ExportTraceServiceRequest) {
	f.enqueue(forwardMsg{traces: req})
}

// SubmitMetrics enqueues a metrics export request for forwarding. Dropped
// with a logged warning if the queue is full.
func (f *Forwarder) SubmitMetrics(req *colmetricspb.ExportMetricsServiceRequest) {
	f.enqueue(forwardMsg{metrics: req})
}

func (f *Forwarder) enqueue(msg forwardMsg) {
	select {
	case f.queue <- msg:
	default:
		f.logger.Warn().Msg("forwarder dropped message: queue full")
	}
}

func (f *Forwarder) run() {
	for msg := range f.queue {
		f.dispatch(msg)
	}
}

func (f *Forwarder) dispatch(msg forwardMsg) {
	var err error
	switch {
	case msg.logs != nil:
		err = f.forwardWithRetries(func(ctx context.Context) error { return f.sendLogs(ctx, msg.logs) })
	case msg.traces != nil:
		err = f.forwardWithRetries(func(ctx context.Context) error { return f.sendTraces(ctx, msg.traces) })
	case msg.metrics != nil:
		err = f.forwardWithRetries(func(ctx context.Context) error { return f.sendMetrics(ctx, msg.metrics) })
	}
	if err != nil {
		f.logger.Warn().Err(err).Msg("forward failed after retries")
	}
}

// forwardWithRetries attempts send up to forwardRetries times with an
// exponential 30ms-based backoff between attempts.
func (f *Forwarder) forwardWithRetries(send func(ctx context.Context) error) error {
	return retry.Do(context.Background(), retry.Config{
		MaxRetries:     forwardRetries,
		InitialBackoff: 30 * time.Millisecond,
	}, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
		defer cancel()
		return send(ctx)
	}, nil)
}

func (f *Forwarder) sendLogs(ctx context.Context, req *collogspb.ExportLogsServiceRequest) error {
	if f.cfg.Protocol == ProtocolGRPC {
		_, err := f.logsClient.Export(f.withHeaders(ctx), req)
		return err
	}
	return f.sendHTTP(ctx, "/v1/logs", req)
}

func (f *Forwarder) sendTraces(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) error {
	if f.cfg.Protocol == ProtocolGRPC {
		_, err := f.traceClient.Export(f.withHeaders(ctx), req)
		return err
	}
	return f.sendHTTP(ctx, "/v1/traces", req)
}

func (f *Forwarder) sendMetrics(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) error {
	if f.cfg.Protocol == ProtocolGRPC {
		_, err := f.metricsClient.Export(f.withHeaders(ctx), req)
		return err
	}
	return f.sendHTTP(ctx, "/v1/metrics", req)
}

func (f *Forwarder) withHeaders(ctx context.Context) context.Context {
	if len(f.cfg.Headers) == 0 {
		return ctx
	}
	md := metadata.MD{}
	for _, kv := range f.cfg.Headers {
		md.Append(kv[0], kv[1])
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (f *Forwarder) sendHTTP(ctx context.Context, path string, msg proto.Message) error {
	body, err := proto.Marshal(msg)
	if err != nil {
		return otellerr.Wrapf(otellerr.Internal, err, "marshal forward payload")
	}

	encoding := ""
	if f.cfg.Compression == CompressionGzip {
		body, err = gzipCompress(body)
		if err != nil {
			return otellerr.Wrapf(otellerr.Internal, err, "gzip forward payload")
		}
		encoding = "gzip"
	}

	url := strings.TrimSuffix(f.cfg.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return otellerr.Wrapf(otellerr.Internal, err, "build forward request")
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	for _, kv := range f.cfg.Headers {
		req.Header.Set(kv[0], kv[1])
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return otellerr.Wrapf(otellerr.Io, err, "forward request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return otellerr.Newf(otellerr.Io, "forward endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
