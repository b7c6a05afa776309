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
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	traceerrors "github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// MetricsCollector records span and export metrics. A nil collector
// ignores every call.
type MetricsCollector struct {
	spansStarted  metric.Int64Counter
	spansExported metric.Int64Counter
	exportBatches metric.Int64Counter
	exportLatency metric.Float64Histogram

	activeSpans atomic.Int64
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("traceai")
	mc := &MetricsCollector{}

	var err error
	mc.spansStarted, err = meter.Int64Counter(
		"traceai_spans_started_total",
		metric.WithDescription("Total number of spans started"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.spansExported, err = meter.Int64Counter(
		"traceai_spans_exported_total",
		metric.WithDescription("Total number of spans handed to a transport"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.exportBatches, err = meter.Int64Counter(
		"traceai_export_batches_total",
		metric.WithDescription("Total number of export calls"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	mc.exportLatency, err = meter.Float64Histogram(
		"traceai_export_latency_seconds",
		metric.WithDescription("Export call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"traceai_active_spans",
		metric.WithDescription("Number of spans started and not yet ended"),
		metric.WithUnit("{span}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(mc.activeSpans.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordSpanStarted counts a started span of the given kind.
func (mc *MetricsCollector) RecordSpanStarted(ctx context.Context, kind observability.SpanKind) {
	if mc == nil {
		return
	}
	mc.activeSpans.Add(1)
	mc.spansStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// RecordSpanEnded decrements the active span gauge.
func (mc *MetricsCollector) RecordSpanEnded() {
	if mc == nil {
		return
	}
	mc.activeSpans.Add(-1)
}

// RecordExport records one export call of n spans over transport.
func (mc *MetricsCollector) RecordExport(ctx context.Context, transport string, n int, err error, latency time.Duration) {
	if mc == nil {
		return
	}
	status, retryable := "success", false
	if err != nil {
		status, retryable = traceerrors.Classify(err)
	}
	attrs := metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("status", status),
		attribute.Bool("retryable", retryable),
	)
	mc.exportBatches.Add(ctx, 1, attrs)
	mc.spansExported.Add(ctx, int64(n), attrs)
	mc.exportLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("transport", transport)))
}
