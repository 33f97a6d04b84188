package forward

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionParseVariants(t *testing.T) {
	cases := []struct {
		input string
		want  Compression
	}{
		{"gzip", CompressionGzip},
		{"GZIP", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
	}
	for _, c := range cases {
		got, err := ParseCompression(c.input)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := ParseCompression("zstd")
	assert.Error(t, err)
}

func TestProtocolParseVariants(t *testing.T) {
	got, err := ParseProtocol("GRPC")
	require.NoError(t, err)
	assert.Equal(t, ProtocolGRPC, got)

	got, err = ParseProtocol("http")
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, got)

	_, err = ParseProtocol("carrier-pigeon")
	assert.Error(t, err)
}

func TestNewReturnsNilWithoutEndpoint(t *testing.T) {
	f, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, f)
}
