// Package filter holds the query engine's filter vocabulary: severity
// levels, sort orders, attribute glob filters, and time windows.
package filter

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// Severity mirrors OTLP's severity number bands. The numeric value is used
// directly for severity_gte comparisons, not the inclusive lower bound of
// the band it names.
type Severity int32

const (
	SeverityTrace Severity = 1
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
	SeverityFatal Severity = 21
)

// ParseSeverity parses a case-insensitive severity name, accepting "WARNING"
// as an alias for Warn.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(s) {
	case "TRACE":
		return SeverityTrace, nil
	case "DEBUG":
		return SeverityDebug, nil
	case "INFO":
		return SeverityInfo, nil
	case "WARN", "WARNING":
		return SeverityWarn, nil
	case "ERROR":
		return SeverityError, nil
	case "FATAL":
		return SeverityFatal, nil
	default:
		return 0, otellerr.Newf(otellerr.Parse, "unknown severity: %s", s)
	}
}

// Label returns the band name a raw severity number falls into, following
// the same bucket boundaries OTLP defines.
func Label(sev int32) string {
	switch {
	case sev >= 1 && sev <= 4:
		return "TRACE"
	case sev >= 5 && sev <= 8:
		return "DEBUG"
	case sev >= 9 && sev <= 12:
		return "INFO"
	case sev >= 13 && sev <= 16:
		return "WARN"
	case sev >= 17 && sev <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SortOrder controls result ordering for search and trace-list queries.
type SortOrder string

const (
	SortTsAsc       SortOrder = "ts_asc"
	SortTsDesc      SortOrder = "ts_desc"
	SortDurationDesc SortOrder = "duration_desc"
)

// AttrFilter is a single key=glob attribute constraint applied in memory
// after the structured SQL filters have narrowed the candidate set.
type AttrFilter struct {
	Key       string
	ValueGlob string
}

// ParseAttrFilter parses a "key=glob" filter expression.
func ParseAttrFilter(input string) (AttrFilter, error) {
	key, glob, ok := strings.Cut(input, "=")
	if !ok {
		return AttrFilter{}, otellerr.Newf(otellerr.Parse, "invalid where filter: %s", input)
	}
	key = strings.TrimSpace(key)
	glob = strings.TrimSpace(glob)
	if key == "" || glob == "" {
		return AttrFilter{}, otellerr.Newf(otellerr.Parse, "invalid where filter: %s", input)
	}
	return AttrFilter{Key: key, ValueGlob: glob}, nil
}

// Matches reports whether value satisfies the filter's glob pattern.
func (f AttrFilter) Matches(value string) bool {
	ok, err := filepath.Match(f.ValueGlob, value)
	if err != nil {
		return false
	}
	return ok
}

// TimeWindow bounds a query by inclusive since/until timestamps. A nil
// bound is unconstrained on that side.
type TimeWindow struct {
	Since *time.Time
	Until *time.Time
}

// All returns an unconstrained window.
func All() TimeWindow {
	return TimeWindow{}
}

// Contains reports whether ts falls within the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	if w.Since != nil && ts.Before(*w.Since) {
		return false
	}
	if w.Until != nil && ts.After(*w.Until) {
		return false
	}
	return true
}
