// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability defines the span record, kinds, statuses and the
// tracer interfaces shared by the tracing core and instrumentation wrappers.
package observability

import (
	"encoding/json"
	"fmt"
	"time"
)

// Span is the finished, exportable record of one traced unit of work.
// Spans form a tree sharing a TraceID.
type Span struct {
	// TraceID is the 32 character lowercase hex trace identifier.
	TraceID string

	// SpanID is the 16 character lowercase hex span identifier.
	SpanID string

	// ParentID is the SpanID of the parent span. Empty for root spans.
	ParentID string

	// Name is a human-readable description of this span.
	Name string

	// Kind is the operation category of the span.
	Kind SpanKind

	// StartTime is when this span began.
	StartTime time.Time

	// EndTime is when this span completed. Zero for active spans.
	EndTime time.Time

	// Status indicates the span's outcome.
	Status SpanStatus

	// Attributes contains key-value metadata about this span.
	Attributes map[string]any

	// Events are timestamped log entries within this span.
	Events []Event
}

// SpanKind categorizes the AI workload a span represents.
type SpanKind string

const (
	SpanKindLLM       SpanKind = "LLM"
	SpanKindAgent     SpanKind = "AGENT"
	SpanKindTool      SpanKind = "TOOL"
	SpanKindChain     SpanKind = "CHAIN"
	SpanKindRetriever SpanKind = "RETRIEVER"
	SpanKindEmbedding SpanKind = "EMBEDDING"
	SpanKindReranker  SpanKind = "RERANKER"
	SpanKindGuardrail SpanKind = "GUARDRAIL"
	SpanKindVectorDB  SpanKind = "VECTOR_DB"
)

// SpanKinds lists every valid kind.
var SpanKinds = []SpanKind{
	SpanKindLLM, SpanKindAgent, SpanKindTool, SpanKindChain, SpanKindRetriever,
	SpanKindEmbedding, SpanKindReranker, SpanKindGuardrail, SpanKindVectorDB,
}

// Valid reports whether k is one of the closed set of kinds.
func (k SpanKind) Valid() bool {
	for _, known := range SpanKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseSpanKind returns the kind for s, falling back to CHAIN.
func ParseSpanKind(s string) SpanKind {
	if k := SpanKind(s); k.Valid() {
		return k
	}
	return SpanKindChain
}

// SpanStatus indicates whether a span completed successfully.
type SpanStatus struct {
	// Code is the status category.
	Code StatusCode

	// Message provides additional context for errors.
	Message string
}

// StatusCode represents the outcome of a span.
type StatusCode int

const (
	// StatusCodeUnset indicates no status was explicitly set.
	StatusCodeUnset StatusCode = 0

	// StatusCodeOK indicates successful completion.
	StatusCodeOK StatusCode = 1

	// StatusCodeError indicates an error occurred.
	StatusCodeError StatusCode = 2
)

// String returns the wire name of the code.
func (c StatusCode) String() string {
	switch c {
	case StatusCodeOK:
		return "OK"
	case StatusCodeError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c StatusCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *StatusCode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*c = StatusCodeOK
	case "ERROR":
		*c = StatusCodeError
	case "UNSET", "":
		*c = StatusCodeUnset
	default:
		return fmt.Errorf("unknown status code %q", string(b))
	}
	return nil
}

// Event represents a timestamped occurrence within a span.
type Event struct {
	// Name identifies the event type.
	Name string

	// Timestamp is when this event occurred.
	Timestamp time.Time

	// Attributes contains event-specific metadata.
	Attributes map[string]any
}

// TraceContext contains the identifiers of a live span.
type TraceContext struct {
	// TraceID uniquely identifies the trace.
	TraceID string

	// SpanID identifies the current span.
	SpanID string

	// TraceFlags contains trace-level flags (sampled, debug, etc).
	TraceFlags byte
}

// wireStatus is the status object of the wire record.
type wireStatus struct {
	Code    StatusCode `json:"code"`
	Message *string    `json:"message"`
}

// wireSpan is the JSON wire record of an exported span.
type wireSpan struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	Name         string         `json:"name"`
	Kind         SpanKind       `json:"kind"`
	StartTime    int64          `json:"start_time_unix_nano"`
	EndTime      int64          `json:"end_time_unix_nano"`
	Status       wireStatus     `json:"status"`
	Attributes   map[string]any `json:"attributes"`
}

// MarshalJSON encodes the span as its wire record.
func (s Span) MarshalJSON() ([]byte, error) {
	w := wireSpan{
		TraceID:    s.TraceID,
		SpanID:     s.SpanID,
		Name:       s.Name,
		Kind:       ParseSpanKind(string(s.Kind)),
		StartTime:  s.StartTime.UnixNano(),
		Status:     wireStatus{Code: s.Status.Code},
		Attributes: s.Attributes,
	}
	if s.ParentID != "" {
		parent := s.ParentID
		w.ParentSpanID = &parent
	}
	if !s.EndTime.IsZero() {
		w.EndTime = s.EndTime.UnixNano()
	}
	if s.Status.Message != "" {
		msg := s.Status.Message
		w.Status.Message = &msg
	}
	if w.Attributes == nil {
		w.Attributes = map[string]any{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire record.
func (s *Span) UnmarshalJSON(b []byte) error {
	var w wireSpan
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Span{
		TraceID:    w.TraceID,
		SpanID:     w.SpanID,
		Name:       w.Name,
		Kind:       ParseSpanKind(string(w.Kind)),
		StartTime:  time.Unix(0, w.StartTime),
		Status:     SpanStatus{Code: w.Status.Code},
		Attributes: w.Attributes,
	}
	if w.ParentSpanID != nil {
		s.ParentID = *w.ParentSpanID
	}
	if w.EndTime != 0 {
		s.EndTime = time.Unix(0, w.EndTime)
	}
	if w.Status.Message != nil {
		s.Status.Message = *w.Status.Message
	}
	return nil
}
