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

package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
)

// Span is a live, redaction-aware handle to one traced operation.
// Every attribute write passes through the tracer's redaction policy, so
// hidden values never reach the underlying span. A Span is safe for
// concurrent use; after End all writes are ignored.
type Span struct {
	span    trace.Span
	name    string
	policy  *redact.Policy
	logger  *slog.Logger
	metrics *MetricsCollector

	mu     sync.Mutex
	ended  bool
	failed bool
}

var _ observability.SpanHandle = (*Span)(nil)

func newSpan(span trace.Span, name string, policy *redact.Policy, logger *slog.Logger, metrics *MetricsCollector) *Span {
	return &Span{
		span:    span,
		name:    name,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
	}
}

// nonRecordingSpan returns a span that stores nothing and is never exported.
func nonRecordingSpan(name string, logger *slog.Logger) *Span {
	return newSpan(trace.SpanFromContext(context.Background()), name, nil, logger, nil)
}

// Name returns the span name.
func (s *Span) Name() string {
	return s.name
}

// IsRecording reports whether writes to the span are stored.
func (s *Span) IsRecording() bool {
	return s.span.IsRecording()
}

// Ended reports whether End has been called.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// writable must be called with mu held.
func (s *Span) writable(op, key string) bool {
	if !s.ended {
		return true
	}
	s.logger.Debug("write to ended span ignored",
		"span", s.name,
		"op", op,
		"key", key,
	)
	return false
}

// SetAttribute stores key unless the redaction policy hides it.
func (s *Span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable("set_attribute", key) {
		return
	}
	s.setLocked(key, value)
}

// SetAttributes stores each entry of attrs, subject to the policy.
func (s *Span) SetAttributes(attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable("set_attributes", "") {
		return
	}
	for k, v := range attrs {
		s.setLocked(k, v)
	}
}

func (s *Span) setLocked(key string, value any) {
	v, ok := s.policy.Apply(key, value)
	if !ok {
		return
	}
	if kv, ok := toAttribute(key, v); ok {
		s.span.SetAttributes(kv)
	}
}

// SetInput records the operation input. Strings are stored as text/plain;
// other values are JSON-encoded.
func (s *Span) SetInput(value any) {
	text, mime := encodeValue(value)
	s.SetAttributes(map[string]any{
		observability.AttrInputValue:    text,
		observability.AttrInputMimeType: mime,
	})
}

// SetOutput records the operation output, encoded like SetInput.
func (s *Span) SetOutput(value any) {
	text, mime := encodeValue(value)
	s.SetAttributes(map[string]any{
		observability.AttrOutputValue:    text,
		observability.AttrOutputMimeType: mime,
	})
}

// SetKind records the span kind.
func (s *Span) SetKind(kind observability.SpanKind) {
	s.SetAttribute(observability.AttrSpanKind, string(observability.ParseSpanKind(string(kind))))
}

// SetError marks the span failed and records an exception event. Error
// details bypass the redaction policy.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable("set_error", "") {
		return
	}
	s.failed = true
	errType := reflect.TypeOf(err).String()
	s.span.RecordError(err)
	s.span.SetAttributes(
		attribute.String(observability.AttrExceptionType, errType),
		attribute.String(observability.AttrExceptionMessage, err.Error()),
	)
	s.span.SetStatus(codes.Error, err.Error())
}

// RecordError is SetError under the observability.SpanHandle name.
func (s *Span) RecordError(err error) {
	s.SetError(err)
}

// SetStatus sets the span status.
func (s *Span) SetStatus(code observability.StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable("set_status", "") {
		return
	}
	switch code {
	case observability.StatusCodeOK:
		s.span.SetStatus(codes.Ok, "")
	case observability.StatusCodeError:
		s.failed = true
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, "")
	}
}

// AddEvent records a named event. Event attributes pass the policy.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable("add_event", name) {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		if v, ok := s.policy.Apply(k, v); ok {
			if kv, ok := toAttribute(k, v); ok {
				kvs = append(kvs, kv)
			}
		}
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

// End completes the span. Calls after the first are no-ops.
func (s *Span) End(opts ...observability.SpanEndOption) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	cfg := &observability.SpanEndConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.ApplySpanEndOption(cfg)
		}
	}
	var endOpts []trace.SpanEndOption
	if cfg.Timestamp != nil {
		endOpts = append(endOpts, trace.WithTimestamp(time.Unix(0, *cfg.Timestamp)))
	}
	s.span.End(endOpts...)
	s.metrics.RecordSpanEnded()
}

// hasFailed reports whether an error status was recorded.
func (s *Span) hasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// SpanContext returns the span's identifiers.
func (s *Span) SpanContext() observability.TraceContext {
	sc := s.span.SpanContext()
	return observability.TraceContext{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
	}
}

// TraceID returns the lowercase hex trace id.
func (s *Span) TraceID() string {
	return s.span.SpanContext().TraceID().String()
}

// SpanID returns the lowercase hex span id.
func (s *Span) SpanID() string {
	return s.span.SpanContext().SpanID().String()
}

func encodeValue(value any) (string, string) {
	switch v := value.(type) {
	case string:
		return v, observability.MimeTypeTextPlain
	case json.RawMessage:
		return string(v), observability.MimeTypeJSON
	case []byte:
		return string(v), observability.MimeTypeTextPlain
	case fmt.Stringer:
		return v.String(), observability.MimeTypeTextPlain
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value), observability.MimeTypeTextPlain
	}
	return string(b), observability.MimeTypeJSON
}

// toAttribute converts v into an OTel attribute. Scalars and homogeneous
// slices map directly; anything else is JSON-encoded, falling back to its
// fmt form. Nil values are dropped.
func toAttribute(key string, v any) (attribute.KeyValue, bool) {
	switch val := v.(type) {
	case nil:
		return attribute.KeyValue{}, false
	case string:
		return attribute.String(key, val), true
	case bool:
		return attribute.Bool(key, val), true
	case int:
		return attribute.Int(key, val), true
	case int8:
		return attribute.Int64(key, int64(val)), true
	case int16:
		return attribute.Int64(key, int64(val)), true
	case int32:
		return attribute.Int64(key, int64(val)), true
	case int64:
		return attribute.Int64(key, val), true
	case uint8:
		return attribute.Int64(key, int64(val)), true
	case uint16:
		return attribute.Int64(key, int64(val)), true
	case uint32:
		return attribute.Int64(key, int64(val)), true
	case uint:
		return uintAttribute(key, uint64(val)), true
	case uint64:
		return uintAttribute(key, val), true
	case float32:
		return attribute.Float64(key, float64(val)), true
	case float64:
		return attribute.Float64(key, val), true
	case []string:
		return attribute.StringSlice(key, val), true
	case []bool:
		return attribute.BoolSlice(key, val), true
	case []int:
		return attribute.IntSlice(key, val), true
	case []int64:
		return attribute.Int64Slice(key, val), true
	case []float64:
		return attribute.Float64Slice(key, val), true
	case []float32:
		out := make([]float64, len(val))
		for i, f := range val {
			out[i] = float64(f)
		}
		return attribute.Float64Slice(key, out), true
	case error:
		return attribute.String(key, val.Error()), true
	case fmt.Stringer:
		return attribute.String(key, val.String()), true
	}
	if b, err := json.Marshal(v); err == nil {
		return attribute.String(key, string(b)), true
	}
	return attribute.String(key, fmt.Sprint(v)), true
}

func uintAttribute(key string, v uint64) attribute.KeyValue {
	if v > math.MaxInt64 {
		return attribute.String(key, fmt.Sprint(v))
	}
	return attribute.Int64(key, int64(v))
}
