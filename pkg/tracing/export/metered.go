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

package export

import (
	"context"
	"log/slog"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/errors"
)

// meteredExporter adds logging and export metrics to an exporter that does
// not go through a Transport, such as OTLP or the console.
type meteredExporter struct {
	name     string
	next     sdktrace.SpanExporter
	recorder Recorder
	logger   *slog.Logger
}

// Metered wraps next so its export calls are logged and recorded the same
// way as SpanExporter's.
func Metered(name string, next sdktrace.SpanExporter, opts ...Option) sdktrace.SpanExporter {
	// Reuse SpanExporter's option handling.
	holder := &SpanExporter{logger: log.Discard()}
	for _, opt := range opts {
		opt(holder)
	}
	return &meteredExporter{
		name:     name,
		next:     next,
		recorder: holder.recorder,
		logger:   log.WithComponent(holder.logger, "exporter").With(log.TransportKey, name),
	}
}

func (m *meteredExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	start := time.Now()
	err := m.next.ExportSpans(ctx, spans)
	if m.recorder != nil {
		m.recorder.RecordExport(ctx, m.name, len(spans), err, time.Since(start))
	}
	if err != nil {
		errType, retryable := errors.Classify(err)
		m.logger.Warn("span export failed",
			"spans", len(spans),
			"error_type", errType,
			"retryable", retryable,
			log.Error(err),
		)
	}
	return err
}

func (m *meteredExporter) Shutdown(ctx context.Context) error {
	return m.next.Shutdown(ctx)
}
