package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityParse(t *testing.T) {
	sev, err := ParseSeverity("warn")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarn, sev)

	_, err = ParseSeverity("wat")
	assert.Error(t, err)
}

func TestSeverityParseWarningAlias(t *testing.T) {
	sev, err := ParseSeverity("WARNING")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarn, sev)
}

func TestAttrFilterParseAndMatch(t *testing.T) {
	f, err := ParseAttrFilter("attrs.peer=redis:*")
	require.NoError(t, err)
	assert.Equal(t, "attrs.peer", f.Key)
	assert.True(t, f.Matches("redis:6379"))
	assert.False(t, f.Matches("postgres:5432"))
}

func TestAttrFilterParseRejectsEmptyParts(t *testing.T) {
	_, err := ParseAttrFilter("=redis:*")
	assert.Error(t, err)

	_, err = ParseAttrFilter("attrs.peer=")
	assert.Error(t, err)

	_, err = ParseAttrFilter("no-equals-sign")
	assert.Error(t, err)
}

func TestLabelBuckets(t *testing.T) {
	assert.Equal(t, "WARN", Label(13))
	assert.Equal(t, "INFO", Label(12))
	assert.Equal(t, "FATAL", Label(25))
}
