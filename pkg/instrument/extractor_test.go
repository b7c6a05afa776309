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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traceerrors "github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

const (
	openAIResponse = `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Paris", "tool_calls": [{"id": "c1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"france\"}"}}]},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 14, "completion_tokens": 2, "total_tokens": 16}
	}`

	openAIRequest = `{
		"model": "gpt-4o-mini",
		"temperature": 0.2,
		"messages": [
			{"role": "system", "content": "Answer briefly."},
			{"role": "user", "content": [{"type": "text", "text": "Capital of "}, {"type": "image_url", "image_url": {"url": "x"}}, {"type": "text", "text": "France?"}]}
		]
	}`

	anthropicResponse = `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4",
		"content": [{"type": "text", "text": "Let me check."}, {"type": "tool_use", "id": "t1", "name": "weather", "input": {"city": "Oslo"}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 20, "output_tokens": 7}
	}`

	anthropicRequest = `{
		"model": "claude-sonnet-4",
		"max_tokens": 1024,
		"system": "You are terse.",
		"messages": [{"role": "user", "content": "Weather in Oslo?"}]
	}`

	embeddingResponse = `{
		"object": "list",
		"model": "text-embedding-3-small",
		"input": ["hello", "world"],
		"data": [{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]}, {"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}],
		"usage": {"prompt_tokens": 2, "total_tokens": 2}
	}`
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"openai response", openAIResponse, "chat_completion"},
		{"openai request", openAIRequest, "chat_completion"},
		{"anthropic response", anthropicResponse, "anthropic_message"},
		{"anthropic request", anthropicRequest, "anthropic_message"},
		{"embedding list", embeddingResponse, "embedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := r.Lookup([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Name())
		})
	}
}

func TestRegistry_NoMatch(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Extract([]byte(`{"foo": 1, "bar": 2}`))
	var nf *traceerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "extractor", nf.Resource)
	assert.Equal(t, "[bar foo]", nf.ID)

	_, err = r.Extract([]byte(`[1,2]`))
	var ve *traceerrors.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	r := NewRegistry(Embedding{}, ChatCompletion{})
	e, err := r.Lookup([]byte(openAIResponse))
	require.NoError(t, err)
	assert.Equal(t, "chat_completion", e.Name())

	r = NewRegistry()
	r.Register(AnthropicMessage{})
	_, err = r.Lookup([]byte(openAIResponse))
	require.Error(t, err)
}

func TestChatCompletion_Response(t *testing.T) {
	ex, err := DefaultRegistry().Extract([]byte(openAIResponse))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", ex.Model)
	assert.Equal(t, "stop", ex.FinishReason)
	require.Len(t, ex.OutputMessages, 1)
	assert.Equal(t, []ToolCall{{Name: "lookup", Arguments: `{"q":"france"}`}}, ex.OutputMessages[0].ToolCalls)

	attrs := ex.Attributes()
	assert.Equal(t, "openai", attrs[observability.AttrLLMProvider])
	assert.Equal(t, "Paris", attrs[observability.AttrOutputValue])
	assert.Equal(t, "Paris", attrs["llm.output_messages.0.message.content"])
	assert.Equal(t, "lookup", attrs["llm.output_messages.0.message.tool_calls.0.tool_call.function.name"])
	assert.Equal(t, 14, attrs[observability.AttrLLMTokenCountPrompt])
	assert.Equal(t, 16, attrs[observability.AttrLLMTokenCountTotal])
	assert.NotContains(t, attrs, observability.AttrLLMInvocationParameters)
}

func TestChatCompletion_Request(t *testing.T) {
	ex, err := DefaultRegistry().Extract([]byte(openAIRequest))
	require.NoError(t, err)

	require.Len(t, ex.InputMessages, 2)
	assert.Equal(t, "Capital of France?", ex.InputMessages[1].Content, "non-text parts are skipped")
	assert.Equal(t, map[string]any{"temperature": 0.2}, ex.InvocationParams)

	attrs := ex.Attributes()
	assert.Equal(t, "Capital of France?", attrs[observability.AttrInputValue])
	assert.Equal(t, `{"temperature":0.2}`, attrs[observability.AttrLLMInvocationParameters])
	assert.Equal(t, "system", attrs["llm.input_messages.0.message.role"])
}

func TestAnthropicMessage(t *testing.T) {
	ex, err := DefaultRegistry().Extract([]byte(anthropicResponse))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", ex.Provider)
	assert.Equal(t, "tool_use", ex.FinishReason)
	require.Len(t, ex.OutputMessages, 1)
	out := ex.OutputMessages[0]
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "Let me check.", out.Content)
	assert.Equal(t, []ToolCall{{Name: "weather", Arguments: `{"city": "Oslo"}`}}, out.ToolCalls)
	assert.Equal(t, 27, ex.Attributes()[observability.AttrLLMTokenCountTotal])

	ex, err = DefaultRegistry().Extract([]byte(anthropicRequest))
	require.NoError(t, err)
	require.Len(t, ex.InputMessages, 2)
	assert.Equal(t, Message{Role: "system", Content: "You are terse."}, ex.InputMessages[0])
	assert.Equal(t, map[string]any{"max_tokens": float64(1024)}, ex.InvocationParams)
}

func TestEmbedding(t *testing.T) {
	ex, err := DefaultRegistry().Extract([]byte(embeddingResponse))
	require.NoError(t, err)

	require.Len(t, ex.Embeddings, 2)
	assert.Equal(t, Vector{Text: "world", Values: []float64{0.5, 0.25}}, ex.Embeddings[0])
	assert.Equal(t, Vector{Text: "hello", Values: []float64{0.1, 0.2}}, ex.Embeddings[1])

	attrs := ex.Attributes()
	assert.Equal(t, "text-embedding-3-small", attrs[observability.AttrEmbeddingModelName])
	assert.NotContains(t, attrs, observability.AttrLLMModelName)
	assert.Equal(t, []float64{0.5, 0.25}, attrs["embedding.embeddings.0.embedding.vector"])
	assert.Equal(t, "hello", attrs["embedding.embeddings.1.embedding.text"])
}
