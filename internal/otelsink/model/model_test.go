package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpanDurationMSClampsNegative(t *testing.T) {
	now := time.Now()
	s := SpanRecord{StartTs: now, EndTs: now.Add(-time.Second)}
	assert.Equal(t, int64(0), s.DurationMS())
}

func TestSpanDurationMS(t *testing.T) {
	now := time.Now()
	s := SpanRecord{StartTs: now, EndTs: now.Add(150 * time.Millisecond)}
	assert.Equal(t, int64(150), s.DurationMS())
}
