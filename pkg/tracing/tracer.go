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
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
)

// Tracer creates redaction-aware spans seeded from the ambient frame.
type Tracer struct {
	tracer  trace.Tracer
	policy  *redact.Policy
	logger  *slog.Logger
	metrics *MetricsCollector
}

var _ observability.Tracer = (*Tracer)(nil)

// NewTracer wraps an OTel tracer. A nil policy hides nothing.
func NewTracer(tracer trace.Tracer, policy *redact.Policy, logger *slog.Logger) *Tracer {
	if policy == nil {
		policy = redact.AllowAll()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Tracer{
		tracer: tracer,
		policy: policy,
		logger: logger,
	}
}

type spanKey struct{}

// ContextWithSpan returns a child of ctx in which span is the active span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	ctx = trace.ContextWithSpan(ctx, span.span)
	return context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext returns the active span, or nil when ctx carries none.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// StartSpan opens a span. Its parent is the active span in ctx; without
// one the span is a root. Frame attributes are applied first so that
// caller attributes win. When tracing is suppressed in ctx the returned
// span records nothing and ctx is returned unchanged.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, *Span) {
	if IsTracingSuppressed(ctx) {
		return ctx, nonRecordingSpan(name, t.logger)
	}

	cfg := observability.NewSpanConfig(opts...)
	startOpts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if cfg.Timestamp != nil {
		startOpts = append(startOpts, trace.WithTimestamp(time.Unix(0, *cfg.Timestamp)))
	}

	ctx, otelSpan := t.tracer.Start(ctx, name, startOpts...)
	span := newSpan(otelSpan, name, t.policy, t.logger, t.metrics)

	kind := observability.ParseSpanKind(string(cfg.SpanKind))
	attrs := FrameFromContext(ctx).Attributes()
	maps.Copy(attrs, cfg.Attributes)
	attrs[observability.AttrSpanKind] = string(kind)
	span.SetAttributes(attrs)

	t.metrics.RecordSpanStarted(ctx, kind)
	return context.WithValue(ctx, spanKey{}, span), span
}

// Start implements observability.Tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, observability.SpanHandle) {
	ctx, span := t.StartSpan(ctx, name, opts...)
	return ctx, span
}

// StartActiveSpan runs fn under a new active span and ends the span when
// fn returns. A nil error sets status OK unless fn already recorded an
// error; a non-nil error is recorded and returned unchanged. A panic is
// recorded, the span ended, and the panic re-raised.
func (t *Tracer) StartActiveSpan(ctx context.Context, name string, fn func(context.Context, *Span) error, opts ...observability.SpanOption) error {
	ctx, span := t.StartSpan(ctx, name, opts...)

	defer func() {
		if r := recover(); r != nil {
			span.SetError(fmt.Errorf("panic: %v", r))
			span.End()
			panic(r)
		}
	}()

	if err := fn(ctx, span); err != nil {
		span.SetError(err)
		span.End()
		return err
	}
	if !span.hasFailed() {
		span.SetStatus(observability.StatusCodeOK, "")
	}
	span.End()
	return nil
}
