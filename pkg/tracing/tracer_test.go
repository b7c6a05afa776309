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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
)

// newTestTracer returns a tracer that exports synchronously into memory.
func newTestTracer(t *testing.T, cfg redact.Config) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	policy, err := redact.NewPolicy(cfg)
	require.NoError(t, err)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithIDGenerator(NewIDGenerator()),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracer(tp.Tracer("test"), policy, nil), exp
}

func attrs(s tracetest.SpanStub) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not exported", name)
	return tracetest.SpanStub{}
}

func TestStartSpan_RootAndChild(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})
	ctx := context.Background()

	ctx, parent := tracer.StartSpan(ctx, "parent")
	assert.Same(t, parent, SpanFromContext(ctx))

	childCtx, child := tracer.StartSpan(ctx, "child", observability.WithSpanKind(observability.SpanKindTool))
	assert.Same(t, child, SpanFromContext(childCtx))
	child.End()
	parent.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	p := findSpan(t, spans, "parent")
	c := findSpan(t, spans, "child")

	assert.False(t, p.Parent.IsValid())
	assert.Equal(t, p.SpanContext.TraceID(), c.SpanContext.TraceID())
	assert.Equal(t, p.SpanContext.SpanID(), c.Parent.SpanID())
	assert.Equal(t, "CHAIN", attrs(p)[observability.AttrSpanKind].AsString())
	assert.Equal(t, "TOOL", attrs(c)[observability.AttrSpanKind].AsString())

	assert.Equal(t, parent.TraceID(), child.TraceID())
	assert.Regexp(t, traceIDPattern, parent.TraceID())
	assert.Regexp(t, spanIDPattern, child.SpanID())
}

func TestStartSpan_UnknownKindIsChain(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	_, span := tracer.StartSpan(context.Background(), "x", observability.WithSpanKind("WORKFLOW"))
	span.End()

	assert.Equal(t, "CHAIN", attrs(exp.GetSpans()[0])[observability.AttrSpanKind].AsString())
}

func TestStartSpan_FrameAttributes(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	ctx := ContextWithSession(context.Background(), "sess-1")
	ctx = ContextWithUser(ctx, "user-1")
	ctx = ContextWithTags(ctx, "prod")

	_, span := tracer.StartSpan(ctx, "op", observability.WithAttributes(map[string]any{
		observability.AttrUserID: "override",
		"custom":                 7,
	}))
	span.End()

	a := attrs(exp.GetSpans()[0])
	assert.Equal(t, "sess-1", a[observability.AttrSessionID].AsString())
	assert.Equal(t, "override", a[observability.AttrUserID].AsString(), "caller attributes win over the frame")
	assert.Equal(t, []string{"prod"}, a[observability.AttrTags].AsStringSlice())
	assert.Equal(t, int64(7), a["custom"].AsInt64())
}

func TestStartSpan_FrameCopiedAtCreation(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	ctx, span := tracer.StartSpan(ContextWithSession(context.Background(), "before"), "op")
	_ = ContextWithSession(ctx, "after")
	span.End()

	assert.Equal(t, "before", attrs(exp.GetSpans()[0])[observability.AttrSessionID].AsString())
}

func TestStartSpan_Suppressed(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	err := WithSuppressedTracing(context.Background(), func(ctx context.Context) error {
		ctx2, span := tracer.StartSpan(ctx, "hidden")
		assert.False(t, span.IsRecording())
		assert.Nil(t, SpanFromContext(ctx2))
		span.SetAttribute("k", "v")
		span.End()

		return tracer.StartActiveSpan(ctx2, "nested", func(ctx context.Context, s *Span) error {
			assert.False(t, s.IsRecording())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Empty(t, exp.GetSpans())

	_, span := tracer.StartSpan(context.Background(), "visible")
	span.End()
	assert.Len(t, exp.GetSpans(), 1)
}

func TestStartActiveSpan_OK(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	var inner *Span
	err := tracer.StartActiveSpan(context.Background(), "work", func(ctx context.Context, span *Span) error {
		inner = SpanFromContext(ctx)
		assert.Same(t, span, inner)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, inner.Ended())

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestStartActiveSpan_Error(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})
	boom := errors.New("boom")

	err := tracer.StartActiveSpan(context.Background(), "work", func(ctx context.Context, span *Span) error {
		return boom
	})
	assert.Same(t, boom, err, "the caller's error is returned unchanged")

	s := exp.GetSpans()[0]
	assert.Equal(t, codes.Error, s.Status.Code)
	assert.Equal(t, "boom", s.Status.Description)
	require.NotEmpty(t, s.Events)
	assert.Equal(t, "exception", s.Events[0].Name)
}

func TestStartActiveSpan_RecordedErrorKeepsStatus(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	err := tracer.StartActiveSpan(context.Background(), "work", func(ctx context.Context, span *Span) error {
		span.SetError(errors.New("partial failure"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, codes.Error, exp.GetSpans()[0].Status.Code)
}

func TestStartActiveSpan_Panic(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = tracer.StartActiveSpan(context.Background(), "work", func(ctx context.Context, span *Span) error {
			panic("kaboom")
		})
	})

	spans := exp.GetSpans()
	require.Len(t, spans, 1, "span is ended before the panic propagates")
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "panic: kaboom", spans[0].Status.Description)
}

func TestTracer_ImplementsObservabilityTracer(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.Config{})

	var ot observability.Tracer = tracer
	ctx, handle := ot.Start(context.Background(), "iface", observability.WithSpanKind(observability.SpanKindLLM))
	handle.SetAttributes(map[string]any{observability.AttrLLMModelName: "gpt-4o"})
	handle.End()

	assert.NotNil(t, SpanFromContext(ctx))
	a := attrs(exp.GetSpans()[0])
	assert.Equal(t, "gpt-4o", a[observability.AttrLLMModelName].AsString())
	assert.Equal(t, "LLM", a[observability.AttrSpanKind].AsString())
}
