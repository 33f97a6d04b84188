// Package transport implements otell's query-side wire protocols: a framed
// newline-delimited JSON request/response protocol over Unix domain socket
// and TCP, and an HTTP/JSON surface with a Server-Sent Events tail
// endpoint.
package transport

import (
	"encoding/base64"
	"encoding/json"

	"github.com/otell-io/otell/internal/otelsink/query"
)

// RequestKind tags which query operation an Envelope carries, standing in
// for the request enum a language with sum types would use natively.
type RequestKind string

const (
	KindSearch        RequestKind = "search"
	KindTrace         RequestKind = "trace"
	KindSpan          RequestKind = "span"
	KindTraces        RequestKind = "traces"
	KindMetrics       RequestKind = "metrics"
	KindMetricsList   RequestKind = "metrics_list"
	KindStatus        RequestKind = "status"
	KindResolveHandle RequestKind = "resolve_handle"
)

// EncodeHandle packages req as the opaque, self-describing handle that
// ResolveHandle later decodes and re-dispatches.
func EncodeHandle(req Envelope) (query.QueryHandle, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return query.QueryHandle{}, err
	}
	return query.QueryHandle{Handle: base64.StdEncoding.EncodeToString(data)}, nil
}

func decodeHandle(payload json.RawMessage) (Envelope, error) {
	var handle query.QueryHandle
	if err := json.Unmarshal(payload, &handle); err != nil {
		return Envelope{}, err
	}
	data, err := base64.StdEncoding.DecodeString(handle.Handle)
	if err != nil {
		return Envelope{}, err
	}
	var inner Envelope
	if err := json.Unmarshal(data, &inner); err != nil {
		return Envelope{}, err
	}
	return inner, nil
}

// Envelope is one framed request: a kind tag plus the kind-specific
// payload, deferred as raw JSON until the kind is known.
type Envelope struct {
	Kind    RequestKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponseEnvelope is one framed response. Error is set instead of Payload
// when the operation failed.
type ResponseEnvelope struct {
	Kind    RequestKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// queryStore is the subset of *store.Store the protocol dispatcher needs.
type queryStore interface {
	SearchLogs(*query.SearchRequest) (*query.SearchResponse, error)
	GetTrace(*query.TraceRequest) (*query.TraceResponse, error)
	GetSpan(*query.SpanRequest) (*query.SpanResponse, error)
	ListTraces(*query.TracesRequest) ([]query.TraceListItem, error)
	QueryMetrics(*query.MetricsRequest) (*query.MetricsResponse, error)
	ListMetricNames(*query.MetricsListRequest) (*query.MetricsListResponse, error)
	Status() (query.StatusResponse, error)
}

// HandleRequest dispatches a decoded Envelope to the matching store
// operation and wraps the result (or error) back into a ResponseEnvelope.
// A KindResolveHandle request decodes its base64(JSON Envelope) payload and
// re-dispatches it, returning exactly the response the inner request would
// have produced directly.
func HandleRequest(store queryStore, req Envelope) ResponseEnvelope {
	if req.Kind == KindResolveHandle {
		inner, err := decodeHandle(req.Payload)
		if err != nil {
			return ResponseEnvelope{Kind: req.Kind, Error: err.Error()}
		}
		return HandleRequest(store, inner)
	}

	result, err := dispatch(store, req)
	if err != nil {
		return ResponseEnvelope{Kind: req.Kind, Error: err.Error()}
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return ResponseEnvelope{Kind: req.Kind, Error: err.Error()}
	}
	return ResponseEnvelope{Kind: req.Kind, Payload: payload}
}

func dispatch(store queryStore, req Envelope) (any, error) {
	switch req.Kind {
	case KindSearch:
		var r query.SearchRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.SearchLogs(&r)
	case KindTrace:
		var r query.TraceRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.GetTrace(&r)
	case KindSpan:
		var r query.SpanRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.GetSpan(&r)
	case KindTraces:
		var r query.TracesRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.ListTraces(&r)
	case KindMetrics:
		var r query.MetricsRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.QueryMetrics(&r)
	case KindMetricsList:
		var r query.MetricsListRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			return nil, err
		}
		return store.ListMetricNames(&r)
	case KindStatus:
		return store.Status()
	default:
		return nil, errUnknownKind(req.Kind)
	}
}

type errUnknownKind RequestKind

func (e errUnknownKind) Error() string {
	return "unknown request kind: " + string(e)
}
