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

// Package export converts finished spans into wire records and delivers
// them to the collector over an immediate HTTP transport, a persistent
// websocket stream, OTLP, or the console.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// Transport delivers serialized span batches.
type Transport interface {
	// Send delivers spans. It must not retain the slice after returning.
	Send(ctx context.Context, spans []observability.Span) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Recorder observes export calls. *tracing.MetricsCollector implements it.
type Recorder interface {
	RecordExport(ctx context.Context, transport string, spans int, err error, latency time.Duration)
}

// SpanExporter implements sdktrace.SpanExporter on top of a Transport.
// Failures are logged, recorded and returned to the span processor, which
// drops the batch.
type SpanExporter struct {
	name      string
	transport Transport
	recorder  Recorder
	logger    *slog.Logger

	stopped      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

var _ sdktrace.SpanExporter = (*SpanExporter)(nil)

// Option configures a SpanExporter.
type Option func(*SpanExporter)

// WithRecorder reports each export call to r.
func WithRecorder(r Recorder) Option {
	return func(e *SpanExporter) { e.recorder = r }
}

// WithLogger sets the logger for export failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *SpanExporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewSpanExporter returns an exporter that sends through transport. name
// labels logs and metrics.
func NewSpanExporter(name string, transport Transport, opts ...Option) *SpanExporter {
	e := &SpanExporter{
		name:      name,
		transport: transport,
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.WithComponent(e.logger, "exporter").With(log.TransportKey, name)
	return e
}

// ExportSpans converts spans to wire records and sends them as one batch.
func (e *SpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) (err error) {
	if len(spans) == 0 || e.stopped.Load() {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("span export panicked: %v", r)
			e.logger.Error("span export panicked", "panic", r)
		}
	}()

	records := make([]observability.Span, len(spans))
	for i, s := range spans {
		records[i] = ConvertSpan(s)
	}

	start := time.Now()
	err = e.transport.Send(ctx, records)
	latency := time.Since(start)
	if e.recorder != nil {
		e.recorder.RecordExport(ctx, e.name, len(records), err, latency)
	}

	if err != nil {
		errType, retryable := errors.Classify(err)
		e.logger.Warn("span export failed",
			"spans", len(records),
			log.DurationKey, latency.Milliseconds(),
			"error_type", errType,
			"retryable", retryable,
			log.Error(err),
		)
		return err
	}
	e.logger.Debug("spans exported",
		"spans", len(records),
		log.DurationKey, latency.Milliseconds(),
	)
	return nil
}

// Shutdown releases the transport. Only the first call has any effect.
func (e *SpanExporter) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		e.stopped.Store(true)
		e.shutdownErr = e.transport.Close(ctx)
	})
	return e.shutdownErr
}

// ConvertSpan converts a finished SDK span into the exported record. The
// kind comes from the fi.span.kind attribute and defaults to CHAIN.
func ConvertSpan(ro sdktrace.ReadOnlySpan) observability.Span {
	sc := ro.SpanContext()
	span := observability.Span{
		TraceID:   sc.TraceID().String(),
		SpanID:    sc.SpanID().String(),
		Name:      ro.Name(),
		Kind:      observability.SpanKindChain,
		StartTime: ro.StartTime(),
		EndTime:   ro.EndTime(),
	}
	if parent := ro.Parent(); parent.IsValid() {
		span.ParentID = parent.SpanID().String()
	}

	status := ro.Status()
	switch status.Code {
	case codes.Ok:
		span.Status.Code = observability.StatusCodeOK
	case codes.Error:
		span.Status.Code = observability.StatusCodeError
		span.Status.Message = status.Description
	default:
		span.Status.Code = observability.StatusCodeUnset
	}

	attrs := ro.Attributes()
	span.Attributes = make(map[string]any, len(attrs))
	for _, kv := range attrs {
		key := string(kv.Key)
		if key == observability.AttrSpanKind {
			span.Kind = observability.ParseSpanKind(kv.Value.AsString())
		}
		span.Attributes[key] = kv.Value.AsInterface()
	}

	for _, ev := range ro.Events() {
		event := observability.Event{
			Name:       ev.Name,
			Timestamp:  ev.Time,
			Attributes: make(map[string]any, len(ev.Attributes)),
		}
		for _, kv := range ev.Attributes {
			event.Attributes[string(kv.Key)] = kv.Value.AsInterface()
		}
		span.Events = append(span.Events, event)
	}
	return span
}
