package ingest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
)

func TestHandleLogsAcceptsProtobufBody(t *testing.T) {
	p := newTestPipeline(t)
	ingest := NewGRPCIngest(p, nil)
	h := NewHTTPIngest(ingest, zerolog.Nop())

	req := &collogspb.ExportLogsServiceRequest{}
	body, err := proto.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/x-protobuf")
	w := httptest.NewRecorder()

	h.handleLogs(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleLogsRejectsGarbageBody(t *testing.T) {
	p := newTestPipeline(t)
	ingest := NewGRPCIngest(p, nil)
	h := NewHTTPIngest(ingest, zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader("not-a-valid-payload-at-all-\xff\xfe"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.handleLogs(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
