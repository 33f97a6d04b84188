// Package duckdb holds small helpers for building and running queries
// against otell's embedded DuckDB store.
package duckdb

import (
	"fmt"
	"strings"
	"time"
)

// Builder constructs SELECT queries with a fluent API.
type Builder struct {
	table      string
	columns    []string
	where      []whereClause
	groupBy    []string
	orderBy    []orderClause
	limit      int
	args       []interface{}
	timeColumn string // configurable: ts by default
}

// whereClause represents a WHERE condition.
type whereClause struct {
	expr string
	args []interface{}
}

// orderClause represents an ORDER BY clause.
type orderClause struct {
	column string
	desc   bool
}

// NewQueryBuilder creates a new query builder for the specified table.
func NewQueryBuilder(table string) *Builder {
	return &Builder{
		table:      table,
		timeColumn: "ts",
		args:       make([]interface{}, 0),
	}
}

// Select specifies the columns to retrieve.
// Supports column names, aggregates, and aliases.
// Examples:
//
//	Select("name", "age")
//	Select("SUM(count) as total_count", "MIN(ts) as first_seen")
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// TimeColumn sets the name of the time column for time range filtering.
// Default is "ts". Use this before calling TimeRange().
func (b *Builder) TimeColumn(name string) *Builder {
	b.timeColumn = name
	return b
}

// TimeRange adds a time range filter using the configured time column.
// Either bound may be nil, in which case that side is left unconstrained.
// Generates: WHERE <timeColumn> >= ? AND/OR <timeColumn> <= ?
func (b *Builder) TimeRange(start, end *time.Time) *Builder {
	switch {
	case start != nil && end != nil:
		b.where = append(b.where, whereClause{
			expr: fmt.Sprintf("%s >= ? AND %s <= ?", b.timeColumn, b.timeColumn),
			args: []interface{}{*start, *end},
		})
	case start != nil:
		b.Gte(b.timeColumn, *start)
	case end != nil:
		b.Lte(b.timeColumn, *end)
	}
	return b
}

// Where adds a custom WHERE clause with optional arguments.
// Multiple Where() calls are combined with AND.
// Examples:
//
//	Where("service = ?", "my-service")
//	Where("severity BETWEEN ? AND ?", 9, 13)
//	Where("parent_span_id IS NULL")
func (b *Builder) Where(expr string, args ...interface{}) *Builder {
	b.where = append(b.where, whereClause{
		expr: expr,
		args: args,
	})
	return b
}

// Eq adds an equality filter.
// Generates: WHERE column = ?
// If value is empty string, the filter is skipped (wildcard behavior).
func (b *Builder) Eq(column string, value interface{}) *Builder {
	if str, ok := value.(string); ok && str == "" {
		return b
	}
	return b.Where(fmt.Sprintf("%s = ?", column), value)
}

// In adds an IN clause.
// Generates: WHERE column IN (?, ?, ...)
// If values is empty, the filter is skipped.
func (b *Builder) In(column string, values ...interface{}) *Builder {
	if len(values) == 0 {
		return b
	}
	placeholders := make([]string, len(values))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	expr := fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
	return b.Where(expr, values...)
}

// Between adds a BETWEEN clause.
// Generates: WHERE column BETWEEN ? AND ?
func (b *Builder) Between(column string, min, max interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s BETWEEN ? AND ?", column), min, max)
}

// Gte adds a >= comparison.
// Generates: WHERE column >= ?
func (b *Builder) Gte(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s >= ?", column), value)
}

// Gt adds a > comparison.
// Generates: WHERE column > ?
func (b *Builder) Gt(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s > ?", column), value)
}

// Lte adds a <= comparison.
// Generates: WHERE column <= ?
func (b *Builder) Lte(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s <= ?", column), value)
}

// Lt adds a < comparison.
// Generates: WHERE column < ?
func (b *Builder) Lt(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s < ?", column), value)
}

// GroupBy adds GROUP BY columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// OrderBy adds ORDER BY clauses.
// Use "-" prefix for DESC order.
// Examples:
//
//	OrderBy("ts")        // ASC
//	OrderBy("-ts")       // DESC
func (b *Builder) OrderBy(columns ...string) *Builder {
	for _, col := range columns {
		desc := false
		if strings.HasPrefix(col, "-") {
			desc = true
			col = col[1:]
		}
		b.orderBy = append(b.orderBy, orderClause{
			column: col,
			desc:   desc,
		})
	}
	return b
}

// Limit sets the maximum number of rows to return. Zero means unlimited.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build constructs the SQL query and returns the query string and arguments.
func (b *Builder) Build() (string, []interface{}, error) {
	if b.table == "" {
		return "", nil, fmt.Errorf("table name is required")
	}

	var query strings.Builder

	query.WriteString("SELECT ")
	if len(b.columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(b.columns, ", "))
	}

	query.WriteString(" FROM ")
	query.WriteString(b.table)

	if len(b.where) > 0 {
		query.WriteString(" WHERE ")
		exprs := make([]string, len(b.where))
		for i, w := range b.where {
			exprs[i] = w.expr
			b.args = append(b.args, w.args...)
		}
		query.WriteString(strings.Join(exprs, " AND "))
	}

	if len(b.groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		query.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		orderParts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			if o.desc {
				orderParts[i] = o.column + " DESC"
			} else {
				orderParts[i] = o.column
			}
		}
		query.WriteString(strings.Join(orderParts, ", "))
	}

	if b.limit > 0 {
		query.WriteString(" LIMIT ?")
		b.args = append(b.args, b.limit)
	}

	return query.String(), b.args, nil
}

// MustBuild builds the query and panics on error. Useful in call sites
// where the table name is a compile-time constant and Build can never fail.
func (b *Builder) MustBuild() (string, []interface{}) {
	q, args, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q, args
}
