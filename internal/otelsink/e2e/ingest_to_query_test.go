// Package e2e exercises otell's full path from OTLP ingestion through to
// query, independent of any network transport.
package e2e

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/otell-io/otell/internal/otelsink/decode"
	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/pipeline"
	"github.com/otell-io/otell/internal/otelsink/query"
	"github.com/otell-io/otell/internal/otelsink/store"
	"github.com/otell-io/otell/internal/otelsink/transport"
)

func resourceWithService(name string) *resourcepb.Resource {
	return &resourcepb.Resource{
		Attributes: []*commonpb.KeyValue{
			{Key: "service.name", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: name}}},
		},
	}
}

func TestIngestedSpanAndLogAreQueryableThroughFramedProtocol(t *testing.T) {
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := pipeline.New(ctx, st, pipeline.Config{ChannelCapacity: 8, FlushInterval: 10 * time.Millisecond, BatchSize: 1000}, zerolog.Nop())

	resource := resourceWithService("checkout")
	traceID := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	spanID := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	now := time.Now()
	span := &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		Name:              "checkout.process",
		StartTimeUnixNano: uint64(now.UnixNano()),
		EndTimeUnixNano:   uint64(now.Add(50 * time.Millisecond).UnixNano()),
	}
	logRecord := &logspb.LogRecord{
		TimeUnixNano:   uint64(now.UnixNano()),
		SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
		Body:           &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "checkout completed"}},
		TraceId:        traceID,
		SpanId:         spanID,
	}

	p.SubmitSpans([]model.SpanRecord{decode.DecodeSpan(resource, span)})
	p.SubmitLogs([]model.LogRecord{decode.DecodeLog(resource, logRecord)})

	require.Eventually(t, func() bool {
		status, err := st.Status()
		return err == nil && status.LogsCount == 1 && status.SpansCount == 1
	}, time.Second, 5*time.Millisecond)

	traceReq := query.TraceRequest{TraceID: hex.EncodeToString(traceID), Logs: query.LogContextAll}
	payload, err := json.Marshal(traceReq)
	require.NoError(t, err)

	resp := transport.HandleRequest(st, transport.Envelope{Kind: transport.KindTrace, Payload: payload})
	require.Empty(t, resp.Error)

	var traceResp query.TraceResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &traceResp))
	require.Len(t, traceResp.Spans, 1)
	require.Equal(t, "checkout.process", traceResp.Spans[0].Name)
	require.Len(t, traceResp.Logs, 1)
	require.Equal(t, "checkout completed", traceResp.Logs[0].Body)
}
