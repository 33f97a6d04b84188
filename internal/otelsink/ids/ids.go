// Package ids validates the hex-encoded trace and span identifiers used at
// the query transport's request boundary.
package ids

import (
	"strings"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// TraceID is a validated, lowercase 32-hex-digit trace identifier.
type TraceID string

// SpanID is a validated, lowercase 16-hex-digit span identifier.
type SpanID string

// ParseTraceID validates and lowercases a trace id.
func ParseTraceID(input string) (TraceID, error) {
	if !isHexOfLen(input, 32) {
		return "", otellerr.Newf(otellerr.Parse, "invalid trace id: %s", input)
	}
	return TraceID(strings.ToLower(input)), nil
}

// ParseSpanID validates and lowercases a span id.
func ParseSpanID(input string) (SpanID, error) {
	if !isHexOfLen(input, 16) {
		return "", otellerr.Newf(otellerr.Parse, "invalid span id: %s", input)
	}
	return SpanID(strings.ToLower(input)), nil
}

func isHexOfLen(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
