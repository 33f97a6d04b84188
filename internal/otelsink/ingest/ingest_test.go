package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/otell-io/otell/internal/otelsink/pipeline"
	"github.com/otell-io/otell/internal/otelsink/store"
)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return pipeline.New(ctx, s, pipeline.Config{ChannelCapacity: 8, FlushInterval: 10 * time.Millisecond, BatchSize: 100}, zerolog.Nop())
}
