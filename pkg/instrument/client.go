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


package instrument

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// ChatRequest is a vendor-neutral chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Metadata    map[string]string
}

// ChatResponse is a completed chat call.
type ChatResponse struct {
	Model        string
	Content      string
	FinishReason string
	RequestID    string
	ToolCalls    []ToolCall
	Usage        Usage
}

// StreamChunk is one increment of a streamed chat call. The final chunk
// carries Usage. A chunk with Err ends the stream.
type StreamChunk struct {
	Delta        string
	FinishReason string
	Usage        *Usage
	Err          error
}

// ChatClient is the minimal surface a vendor wrapper exposes.
type ChatClient interface {
	Name() string
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// TracedClient wraps a ChatClient so that every call produces an LLM span
// with request messages, response content and token usage.
type TracedClient struct {
	client ChatClient
	tracer observability.Tracer
}

var _ ChatClient = (*TracedClient)(nil)

// Wrap returns client wrapped with tracing. When state already records
// client.Name() as instrumented, or client is already traced, client is
// returned unchanged. A nil state skips the check.
func Wrap(client ChatClient, tracer observability.Tracer, state *State) ChatClient {
	if _, ok := client.(*TracedClient); ok {
		return client
	}
	if state != nil && !state.Instrument(client.Name()) {
		return client
	}
	return &TracedClient{client: client, tracer: tracer}
}

// Unwrap returns the wrapped client.
func (t *TracedClient) Unwrap() ChatClient {
	return t.client
}

// Name returns the underlying client's name.
func (t *TracedClient) Name() string {
	return t.client.Name()
}

func (t *TracedClient) startSpan(ctx context.Context, name string, req ChatRequest) (context.Context, observability.SpanHandle) {
	attrs := Extraction{
		Provider:         t.client.Name(),
		Model:            req.Model,
		InvocationParams: requestParams(req),
		InputMessages:    req.Messages,
	}.Attributes()
	for k, v := range req.Metadata {
		attrs["llm.metadata."+k] = v
	}
	return t.tracer.Start(ctx, name,
		observability.WithSpanKind(observability.SpanKindLLM),
		observability.WithAttributes(attrs),
	)
}

// Complete traces a single completion.
func (t *TracedClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := t.startSpan(ctx, t.client.Name()+".complete", req)
	defer span.End()

	resp, err := t.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	usage := resp.Usage
	span.SetAttributes(Extraction{
		Model:          resp.Model,
		OutputMessages: []Message{{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}},
		FinishReason:   resp.FinishReason,
		Usage:          &usage,
	}.Attributes())
	if resp.RequestID != "" {
		span.SetAttributes(map[string]any{"llm.response.request_id": resp.RequestID})
	}
	span.SetStatus(observability.StatusCodeOK, "")
	return resp, nil
}

// Stream traces a streamed completion. The span ends after the source
// channel closes, a chunk carries an error, or ctx is done. The returned
// channel is closed in every case.
func (t *TracedClient) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	startTime := time.Now()
	ctx, span := t.startSpan(ctx, t.client.Name()+".stream", req)

	chunks, err := t.client.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		var content strings.Builder
		var usage *Usage
		var finish string
		first := true

		for {
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return
			case chunk, ok := <-chunks:
				if !ok {
					span.SetAttributes(Extraction{
						OutputMessages: []Message{{Role: "assistant", Content: content.String()}},
						FinishReason:   finish,
						Usage:          usage,
					}.Attributes())
					span.SetStatus(observability.StatusCodeOK, "")
					return
				}
				if first {
					first = false
					span.AddEvent("first_token", map[string]any{
						"latency_ms": time.Since(startTime).Milliseconds(),
					})
				}
				content.WriteString(chunk.Delta)
				if chunk.FinishReason != "" {
					finish = chunk.FinishReason
				}
				if chunk.Usage != nil {
					usage = chunk.Usage
				}

				select {
				case out <- chunk:
				case <-ctx.Done():
					span.RecordError(ctx.Err())
					return
				}

				if chunk.Err != nil {
					span.SetAttributes(Extraction{
						OutputMessages: []Message{{Role: "assistant", Content: content.String()}},
					}.Attributes())
					span.RecordError(chunk.Err)
					return
				}
			}
		}
	}()
	return out, nil
}

func requestParams(req ChatRequest) map[string]any {
	params := make(map[string]any)
	if req.Temperature != 0 {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens != 0 {
		params["max_tokens"] = req.MaxTokens
	}
	return params
}

// ExtractResponse runs the default registry over a raw vendor response and
// writes the result onto span. It returns false when no extractor matched.
func ExtractResponse(span observability.SpanHandle, raw json.RawMessage) bool {
	ex, err := DefaultRegistry().Extract(raw)
	if err != nil {
		return false
	}
	span.SetAttributes(ex.Attributes())
	return true
}
