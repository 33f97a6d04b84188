// Package pipeline buffers ingested records in memory and flushes them to
// the store on a batch-size or time trigger, one writer goroutine per
// signal type.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/otell-io/otell/internal/otelsink/model"
)

// Config tunes channel buffering and flush behavior. Defaults mirror
// otell's documented write path: a 256-item submit channel, 200ms flush
// ticks, and a 2048-record batch trigger.
type Config struct {
	ChannelCapacity int
	FlushInterval   time.Duration
	BatchSize       int
}

// DefaultConfig returns otell's documented pipeline defaults.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity: 256,
		FlushInterval:   200 * time.Millisecond,
		BatchSize:       2048,
	}
}

// writer is the subset of *store.Store each batch writer needs.
type writer interface {
	InsertLogs([]model.LogRecord) error
	InsertSpans([]model.SpanRecord) error
	InsertMetrics([]model.MetricPoint) error
}

// Pipeline fans submitted batches out to three independent buffer-and-flush
// loops, one per record type, so a slow metric flush never blocks log
// ingestion.
type Pipeline struct {
	ctx       context.Context
	logsCh    chan []model.LogRecord
	spansCh   chan []model.SpanRecord
	metricsCh chan []model.MetricPoint
	logger    zerolog.Logger
}

// New starts the three writer goroutines and returns a Pipeline ready to
// accept submissions. The writer loops exit when ctx is canceled.
func New(ctx context.Context, store writer, cfg Config, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		ctx:       ctx,
		logsCh:    make(chan []model.LogRecord, cfg.ChannelCapacity),
		spansCh:   make(chan []model.SpanRecord, cfg.ChannelCapacity),
		metricsCh: make(chan []model.MetricPoint, cfg.ChannelCapacity),
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}

	go runLogWriter(ctx, store, p.logsCh, cfg.BatchSize, cfg.FlushInterval, p.logger)
	go runSpanWriter(ctx, store, p.spansCh, cfg.BatchSize, cfg.FlushInterval, p.logger)
	go runMetricWriter(ctx, store, p.metricsCh, cfg.BatchSize, cfg.FlushInterval, p.logger)

	return p
}

// SubmitLogs enqueues a batch of logs, blocking the caller when the channel
// is full so ingestion applies backpressure instead of losing data. Only
// pipeline shutdown (ctx canceled) aborts the send.
func (p *Pipeline) SubmitLogs(batch []model.LogRecord) {
	select {
	case p.logsCh <- batch:
	case <-p.ctx.Done():
		p.logger.Warn().Int("size", len(batch)).Msg("log pipeline dropped batch: shutting down")
	}
}

// SubmitSpans enqueues a batch of spans, blocking the caller when the
// channel is full so ingestion applies backpressure instead of losing data.
// Only pipeline shutdown (ctx canceled) aborts the send.
func (p *Pipeline) SubmitSpans(batch []model.SpanRecord) {
	select {
	case p.spansCh <- batch:
	case <-p.ctx.Done():
		p.logger.Warn().Int("size", len(batch)).Msg("span pipeline dropped batch: shutting down")
	}
}

// SubmitMetrics enqueues a batch of metric points, blocking the caller when
// the channel is full so ingestion applies backpressure instead of losing
// data. Only pipeline shutdown (ctx canceled) aborts the send.
func (p *Pipeline) SubmitMetrics(batch []model.MetricPoint) {
	select {
	case p.metricsCh <- batch:
	case <-p.ctx.Done():
		p.logger.Warn().Int("size", len(batch)).Msg("metric pipeline dropped batch: shutting down")
	}
}

func runLogWriter(ctx context.Context, store writer, ch <-chan []model.LogRecord, batchSize int, flushInterval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var buffer []model.LogRecord
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			buffer = append(buffer, batch...)
			if len(buffer) >= batchSize {
				flushLogs(store, &buffer, logger)
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				flushLogs(store, &buffer, logger)
			}
		}
	}
}

func runSpanWriter(ctx context.Context, store writer, ch <-chan []model.SpanRecord, batchSize int, flushInterval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var buffer []model.SpanRecord
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			buffer = append(buffer, batch...)
			if len(buffer) >= batchSize {
				flushSpans(store, &buffer, logger)
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				flushSpans(store, &buffer, logger)
			}
		}
	}
}

func runMetricWriter(ctx context.Context, store writer, ch <-chan []model.MetricPoint, batchSize int, flushInterval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var buffer []model.MetricPoint
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			buffer = append(buffer, batch...)
			if len(buffer) >= batchSize {
				flushMetrics(store, &buffer, logger)
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				flushMetrics(store, &buffer, logger)
			}
		}
	}
}

func flushLogs(store writer, buffer *[]model.LogRecord, logger zerolog.Logger) {
	if err := store.InsertLogs(*buffer); err != nil {
		logger.Warn().Err(err).Msg("failed to write log batch")
	}
	*buffer = (*buffer)[:0]
}

func flushSpans(store writer, buffer *[]model.SpanRecord, logger zerolog.Logger) {
	if err := store.InsertSpans(*buffer); err != nil {
		logger.Warn().Err(err).Msg("failed to write span batch")
	}
	*buffer = (*buffer)[:0]
}

func flushMetrics(store writer, buffer *[]model.MetricPoint, logger zerolog.Logger) {
	if err := store.InsertMetrics(*buffer); err != nil {
		logger.Warn().Err(err).Msg("failed to write metric batch")
	}
	*buffer = (*buffer)[:0]
}
