package otellerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Store, cause, "failed to write batch")

	assert.Equal(t, Store, KindOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestIs(t *testing.T) {
	err := New(Parse, "bad trace id")
	assert.True(t, Is(err, Parse))
	assert.False(t, Is(err, Store))
}
