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


package instrument_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/future-agi/traceAI-sub007/pkg/instrument"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
	"github.com/future-agi/traceAI-sub007/pkg/tracing"
)

type fakeClient struct {
	resp   *instrument.ChatResponse
	err    error
	chunks []instrument.StreamChunk
	// block keeps the stream open after the chunks are sent.
	block bool
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(ctx context.Context, req instrument.ChatRequest) (*instrument.ChatResponse, error) {
	return f.resp, f.err
}

func (f *fakeClient) Stream(ctx context.Context, req instrument.ChatRequest) (<-chan instrument.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan instrument.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	if !f.block {
		close(ch)
	}
	return ch, nil
}

func newTracer(t *testing.T, cfg redact.Config) (*tracing.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	policy, err := redact.NewPolicy(cfg)
	require.NoError(t, err)
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tracing.NewTracer(tp.Tracer("instrument-test"), policy, nil), exp
}

func spanAttrs(s tracetest.SpanStub) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

var question = instrument.ChatRequest{
	Model:       "gpt-4o",
	Temperature: 0.5,
	Messages:    []instrument.Message{{Role: "user", Content: "hi"}},
	Metadata:    map[string]string{"team": "search"},
}

func TestWrap_InstrumentsOnce(t *testing.T) {
	tracer, _ := newTracer(t, redact.Config{})
	state := instrument.NewState()

	first := instrument.Wrap(&fakeClient{}, tracer, state)
	_, traced := first.(*instrument.TracedClient)
	assert.True(t, traced)
	assert.True(t, state.IsInstrumented("fake"))

	second := instrument.Wrap(&fakeClient{}, tracer, state)
	_, traced = second.(*instrument.TracedClient)
	assert.False(t, traced, "a library is patched once")

	assert.Same(t, first, instrument.Wrap(first, tracer, nil))
}

func TestTracedClient_Complete(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	client := instrument.Wrap(&fakeClient{resp: &instrument.ChatResponse{
		Model:        "gpt-4o-2024",
		Content:      "hello!",
		FinishReason: "stop",
		RequestID:    "req_1",
		Usage:        instrument.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7},
	}}, tracer, nil)

	resp, err := client.Complete(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, "hello!", resp.Content)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "fake.complete", s.Name)
	assert.Equal(t, codes.Ok, s.Status.Code)

	a := spanAttrs(s)
	assert.Equal(t, "LLM", a[observability.AttrSpanKind].AsString())
	assert.Equal(t, "fake", a[observability.AttrLLMProvider].AsString())
	assert.Equal(t, "gpt-4o-2024", a[observability.AttrLLMModelName].AsString(), "response model wins")
	assert.Equal(t, `{"temperature":0.5}`, a[observability.AttrLLMInvocationParameters].AsString())
	assert.Equal(t, "hi", a[observability.AttrInputValue].AsString())
	assert.Equal(t, "hello!", a[observability.AttrOutputValue].AsString())
	assert.Equal(t, int64(7), a[observability.AttrLLMTokenCountTotal].AsInt64())
	assert.Equal(t, "search", a["llm.metadata.team"].AsString())
	assert.Equal(t, "req_1", a["llm.response.request_id"].AsString())
}

func TestTracedClient_CompleteError(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	boom := errors.New("overloaded")
	client := instrument.Wrap(&fakeClient{err: boom}, tracer, nil)

	_, err := client.Complete(context.Background(), question)
	assert.Same(t, boom, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "overloaded", spans[0].Status.Description)
}

func TestTracedClient_CompleteRedacted(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{HideInputs: true, HideOutputs: true})
	client := instrument.Wrap(&fakeClient{resp: &instrument.ChatResponse{Content: "secret answer"}}, tracer, nil)

	_, err := client.Complete(context.Background(), question)
	require.NoError(t, err)

	a := spanAttrs(exp.GetSpans()[0])
	for key := range a {
		assert.NotContains(t, key, "input_messages")
		assert.NotContains(t, key, "output_messages")
	}
	assert.NotContains(t, a, observability.AttrInputValue)
	assert.NotContains(t, a, observability.AttrOutputValue)
}

func TestTracedClient_Stream(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	client := instrument.Wrap(&fakeClient{chunks: []instrument.StreamChunk{
		{Delta: "Hel"},
		{Delta: "lo"},
		{FinishReason: "stop", Usage: &instrument.Usage{InputTokens: 3, OutputTokens: 2}},
	}}, tracer, nil)

	ch, err := client.Stream(context.Background(), question)
	require.NoError(t, err)

	var text string
	for c := range ch {
		text += c.Delta
	}
	assert.Equal(t, "Hello", text)

	require.Eventually(t, func() bool { return len(exp.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	s := exp.GetSpans()[0]
	assert.Equal(t, "fake.stream", s.Name)
	assert.Equal(t, codes.Ok, s.Status.Code)

	a := spanAttrs(s)
	assert.Equal(t, "Hello", a[observability.AttrOutputValue].AsString())
	assert.Equal(t, "stop", a[observability.AttrLLMFinishReason].AsString())
	assert.Equal(t, int64(5), a[observability.AttrLLMTokenCountTotal].AsInt64())

	require.Len(t, s.Events, 1)
	assert.Equal(t, "first_token", s.Events[0].Name)
}

func TestTracedClient_StreamChunkError(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	boom := errors.New("stream reset")
	client := instrument.Wrap(&fakeClient{chunks: []instrument.StreamChunk{
		{Delta: "par"},
		{Err: boom},
		{Delta: "never"},
	}}, tracer, nil)

	ch, err := client.Stream(context.Background(), question)
	require.NoError(t, err)

	var got []instrument.StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Same(t, boom, got[1].Err)

	require.Eventually(t, func() bool { return len(exp.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	s := exp.GetSpans()[0]
	assert.Equal(t, codes.Error, s.Status.Code)
	assert.Equal(t, "par", spanAttrs(s)[observability.AttrOutputValue].AsString())
}

func TestTracedClient_StreamCancelled(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	client := instrument.Wrap(&fakeClient{block: true, chunks: []instrument.StreamChunk{{Delta: "a"}}}, tracer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.Stream(ctx, question)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "a", first.Delta)
	cancel()

	for range ch {
	}

	require.Eventually(t, func() bool { return len(exp.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, codes.Error, exp.GetSpans()[0].Status.Code)
}

func TestTracedClient_StreamDialError(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	boom := errors.New("unauthorized")
	client := instrument.Wrap(&fakeClient{err: boom}, tracer, nil)

	_, err := client.Stream(context.Background(), question)
	assert.Same(t, boom, err)
	require.Len(t, exp.GetSpans(), 1)
	assert.Equal(t, codes.Error, exp.GetSpans()[0].Status.Code)
}

func TestExtractResponse(t *testing.T) {
	tracer, exp := newTracer(t, redact.Config{})
	_, span := tracer.Start(context.Background(), "raw")

	ok := instrument.ExtractResponse(span, []byte(`{"object":"chat.completion","model":"m","choices":[{"message":{"role":"assistant","content":"yo"}}]}`))
	assert.True(t, ok)
	assert.False(t, instrument.ExtractResponse(span, []byte(`{"unrelated":true}`)))
	span.End()

	a := spanAttrs(exp.GetSpans()[0])
	assert.Equal(t, "yo", a[observability.AttrOutputValue].AsString())
	assert.Equal(t, "m", a[observability.AttrLLMModelName].AsString())
}
