package duckdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSimpleSelect(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs", q)
	assert.Empty(t, args)
}

func TestBuilderSelectColumns(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").
		Select("ts", "service", "body").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT ts, service, body FROM logs", q)
	assert.Empty(t, args)
}

func TestBuilderTimeRangeDefaultsToTsColumn(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	q, args, err := NewQueryBuilder("logs").
		TimeRange(&start, &end).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs WHERE ts >= ? AND ts <= ?", q)
	assert.Equal(t, []interface{}{start, end}, args)
}

func TestBuilderTimeRangeOneSidedBound(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args, err := NewQueryBuilder("logs").
		TimeRange(&since, nil).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs WHERE ts >= ?", q)
	assert.Equal(t, []interface{}{since}, args)
}

func TestBuilderCustomTimeColumn(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	q, args, err := NewQueryBuilder("spans").
		TimeColumn("start_ts").
		TimeRange(&start, &end).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM spans WHERE start_ts >= ? AND start_ts <= ?", q)
	assert.Equal(t, []interface{}{start, end}, args)
}

func TestBuilderEq(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").
		Eq("service", "checkout").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs WHERE service = ?", q)
	assert.Equal(t, []interface{}{"checkout"}, args)
}

func TestBuilderEqSkipsEmptyString(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").
		Eq("service", "").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs", q)
	assert.Empty(t, args)
}

func TestBuilderMultipleFiltersCombineWithAnd(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").
		Eq("service", "checkout").
		Gte("severity", int32(13)).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs WHERE service = ? AND severity >= ?", q)
	assert.Equal(t, []interface{}{"checkout", int32(13)}, args)
}

func TestBuilderOrderByDescPrefix(t *testing.T) {
	q, _, err := NewQueryBuilder("metric_points").
		OrderBy("-ts").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM metric_points ORDER BY ts DESC", q)
}

func TestBuilderLimitAppendsPlaceholder(t *testing.T) {
	q, args, err := NewQueryBuilder("logs").
		Limit(100).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM logs LIMIT ?", q)
	assert.Equal(t, []interface{}{100}, args)
}

func TestBuilderWhereWithExistsSubquery(t *testing.T) {
	q, args, err := NewQueryBuilder("spans s").
		Select("s.trace_id").
		Where("s.parent_span_id IS NULL").
		Where("EXISTS (SELECT 1 FROM spans sf WHERE sf.trace_id = s.trace_id AND sf.service = ?)", "checkout").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "SELECT s.trace_id FROM spans s WHERE s.parent_span_id IS NULL AND EXISTS (SELECT 1 FROM spans sf WHERE sf.trace_id = s.trace_id AND sf.service = ?)", q)
	assert.Equal(t, []interface{}{"checkout"}, args)
}

func TestBuilderRequiresTableName(t *testing.T) {
	_, _, err := NewQueryBuilder("").Build()
	assert.Error(t, err)
}

func TestBuilderMustBuildPanicsOnMissingTable(t *testing.T) {
	assert.Panics(t, func() {
		NewQueryBuilder("").MustBuild()
	})
}
