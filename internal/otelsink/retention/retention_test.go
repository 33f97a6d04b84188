package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingStore struct {
	calls atomic.Int32
}

func (s *countingStore) RunRetention(ttl time.Duration, maxBytes int64) error {
	s.calls.Add(1)
	return nil
}

func TestControllerSweepsOnEachTick(t *testing.T) {
	store := &countingStore{}
	c := New(store, time.Hour, 1024, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	_ = c.Run(ctx)

	assert.GreaterOrEqual(t, store.calls.Load(), int32(3))
}
