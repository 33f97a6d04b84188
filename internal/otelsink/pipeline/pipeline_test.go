package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otell-io/otell/internal/otelsink/model"
	"github.com/otell-io/otell/internal/otelsink/query"
	"github.com/otell-io/otell/internal/otelsink/store"
)

func TestPipelineWritesLogs(t *testing.T) {
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, s, Config{ChannelCapacity: 8, FlushInterval: 10 * time.Millisecond, BatchSize: 4}, zerolog.Nop())

	p.SubmitLogs([]model.LogRecord{{
		Ts:        time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Service:   "api",
		Severity:  17,
		Body:      "error",
		AttrsJSON: "{}",
	}})

	time.Sleep(40 * time.Millisecond)

	req := query.DefaultSearchRequest()
	res, err := s.SearchLogs(&req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalMatches)
	assert.Equal(t, "error", res.Records[0].Body)
}

func TestPipelineFlushesOnBatchSize(t *testing.T) {
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(ctx, s, Config{ChannelCapacity: 8, FlushInterval: 5 * time.Second, BatchSize: 2}, zerolog.Nop())

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		p.SubmitLogs([]model.LogRecord{{
			Ts:        base.Add(time.Duration(i) * time.Second),
			Service:   "api",
			Severity:  9,
			Body:      "line",
			AttrsJSON: "{}",
		}})
	}

	time.Sleep(40 * time.Millisecond)

	req := query.DefaultSearchRequest()
	res, err := s.SearchLogs(&req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalMatches)
}
