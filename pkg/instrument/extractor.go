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
	"encoding/json"
	"fmt"
	"slices"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// Message is a chat message in vendor-neutral form.
type Message struct {
	Role      string
	Content   string
	Name      string
	ToolCalls []ToolCall
}

// ToolCall is a function call requested by a model.
type ToolCall struct {
	Name      string
	Arguments string
}

// Usage is token accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Vector is one embedding returned by an embedding call.
type Vector struct {
	Text   string
	Values []float64
}

// Extraction is the vendor-neutral content of a request or response.
type Extraction struct {
	Provider         string
	Model            string
	InvocationParams map[string]any
	InputMessages    []Message
	OutputMessages   []Message
	FinishReason     string
	Usage            *Usage
	Embeddings       []Vector
}

// Attributes flattens e into span attributes.
func (e Extraction) Attributes() map[string]any {
	attrs := make(map[string]any)
	if e.Provider != "" {
		attrs[observability.AttrLLMProvider] = e.Provider
	}
	if e.Model != "" {
		if len(e.Embeddings) > 0 {
			attrs[observability.AttrEmbeddingModelName] = e.Model
		} else {
			attrs[observability.AttrLLMModelName] = e.Model
		}
	}
	if len(e.InvocationParams) > 0 {
		if b, err := json.Marshal(e.InvocationParams); err == nil {
			attrs[observability.AttrLLMInvocationParameters] = string(b)
		}
	}
	messageAttributes(attrs, observability.AttrLLMInputMessages, e.InputMessages)
	messageAttributes(attrs, observability.AttrLLMOutputMessages, e.OutputMessages)
	if in, ok := lastMessage(e.InputMessages, "user"); ok {
		attrs[observability.AttrInputValue] = in
		attrs[observability.AttrInputMimeType] = observability.MimeTypeTextPlain
	}
	if out, ok := lastMessage(e.OutputMessages, ""); ok {
		attrs[observability.AttrOutputValue] = out
		attrs[observability.AttrOutputMimeType] = observability.MimeTypeTextPlain
	}
	if e.FinishReason != "" {
		attrs[observability.AttrLLMFinishReason] = e.FinishReason
	}
	if u := e.Usage; u != nil {
		total := u.TotalTokens
		if total == 0 {
			total = u.InputTokens + u.OutputTokens
		}
		attrs[observability.AttrLLMTokenCountPrompt] = u.InputTokens
		attrs[observability.AttrLLMTokenCountCompletion] = u.OutputTokens
		attrs[observability.AttrLLMTokenCountTotal] = total
	}
	for i, emb := range e.Embeddings {
		base := fmt.Sprintf("%s.%d.", observability.AttrEmbeddingEmbeddings, i)
		if emb.Text != "" {
			attrs[base+observability.EmbeddingTextSuffix] = emb.Text
		}
		if len(emb.Values) > 0 {
			attrs[base+observability.EmbeddingVectorSuffix] = emb.Values
		}
	}
	return attrs
}

func messageAttributes(attrs map[string]any, prefix string, msgs []Message) {
	for i, m := range msgs {
		base := fmt.Sprintf("%s.%d.", prefix, i)
		attrs[base+observability.MessageRole] = m.Role
		if m.Content != "" {
			attrs[base+observability.MessageContent] = m.Content
		}
		if m.Name != "" {
			attrs[base+observability.MessageName] = m.Name
		}
		for j, tc := range m.ToolCalls {
			tcBase := fmt.Sprintf("%s%s.%d.", base, observability.MessageToolCalls, j)
			attrs[tcBase+observability.ToolCallFunctionName] = tc.Name
			attrs[tcBase+observability.ToolCallFunctionArguments] = tc.Arguments
		}
	}
}

// lastMessage returns the content of the last message with role, or of
// the last message at all when role is empty.
func lastMessage(msgs []Message, role string) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if (role == "" || msgs[i].Role == role) && msgs[i].Content != "" {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// Shape is the top-level keys of a decoded JSON object.
type Shape map[string]json.RawMessage

// Has reports whether every key is present and not null.
func (s Shape) Has(keys ...string) bool {
	for _, k := range keys {
		v, ok := s[k]
		if !ok || string(v) == "null" {
			return false
		}
	}
	return true
}

// String returns the value of key when it is a JSON string.
func (s Shape) String(key string) string {
	var out string
	if raw, ok := s[key]; ok {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// Extractor converts one payload shape into an Extraction.
type Extractor interface {
	// Name identifies the extractor in logs and errors.
	Name() string
	// Match reports whether the payload has this extractor's shape.
	Match(s Shape) bool
	// Extract decodes payload. It is called only after Match succeeded.
	Extract(payload []byte) (Extraction, error)
}

// Registry selects an Extractor by payload shape. The first registered
// extractor whose Match succeeds wins.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns a registry over extractors, in order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: slices.Clone(extractors)}
}

// DefaultRegistry knows OpenAI-style chat completions, Anthropic messages
// and embedding lists.
func DefaultRegistry() *Registry {
	return NewRegistry(ChatCompletion{}, AnthropicMessage{}, Embedding{})
}

// Register appends e.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Lookup returns the extractor matching payload.
func (r *Registry) Lookup(payload []byte) (Extractor, error) {
	var shape Shape
	if err := json.Unmarshal(payload, &shape); err != nil {
		return nil, &errors.ValidationError{Field: "payload", Message: fmt.Sprintf("not a JSON object: %v", err)}
	}
	for _, e := range r.extractors {
		if e.Match(shape) {
			return e, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "extractor", ID: shapeKeys(shape)}
}

// Extract decodes payload with the first matching extractor.
func (r *Registry) Extract(payload []byte) (Extraction, error) {
	e, err := r.Lookup(payload)
	if err != nil {
		return Extraction{}, err
	}
	out, err := e.Extract(payload)
	if err != nil {
		return Extraction{}, fmt.Errorf("%s extractor: %w", e.Name(), err)
	}
	return out, nil
}

func shapeKeys(s Shape) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return fmt.Sprint(keys)
}
