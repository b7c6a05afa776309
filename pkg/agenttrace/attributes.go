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

package agenttrace

import (
	"encoding/json"
	"fmt"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// payloadAttributes flattens p into span attributes. Zero fields are
// omitted so that a sparse end payload does not erase start attributes.
func payloadAttributes(p Payload) map[string]any {
	attrs := make(map[string]any)
	switch v := p.(type) {
	case AgentPayload:
		attrs[observability.AttrAgentName] = v.Name
		attrs[observability.AttrGraphNodeID] = v.Name
		if len(v.Tools) > 0 {
			attrs[observability.AttrLLMTools] = v.Tools
		}

	case FunctionPayload:
		attrs[observability.AttrToolName] = v.Name
		if v.Input != "" {
			attrs[observability.AttrInputValue] = v.Input
			attrs[observability.AttrInputMimeType] = mimeOf(v.Input)
		}
		if v.Output != "" {
			attrs[observability.AttrOutputValue] = v.Output
			attrs[observability.AttrOutputMimeType] = mimeOf(v.Output)
		}

	case GenerationPayload:
		setModel(attrs, v.Model, v.ModelConfig)
		setMessages(attrs, observability.AttrLLMInputMessages, v.Input)
		setMessages(attrs, observability.AttrLLMOutputMessages, v.Output)
		if len(v.Input) > 0 {
			attrs[observability.AttrInputValue] = encodeJSON(v.Input)
			attrs[observability.AttrInputMimeType] = observability.MimeTypeJSON
		}
		if out, ok := lastContent(v.Output); ok {
			attrs[observability.AttrOutputValue] = out
			attrs[observability.AttrOutputMimeType] = observability.MimeTypeTextPlain
		}
		setUsage(attrs, v.Usage)

	case ResponsePayload:
		setModel(attrs, v.Model, nil)
		setMessages(attrs, observability.AttrLLMInputMessages, v.Input)
		if len(v.Input) > 0 {
			attrs[observability.AttrInputValue] = encodeJSON(v.Input)
			attrs[observability.AttrInputMimeType] = observability.MimeTypeJSON
		}
		if v.Output != "" {
			setMessages(attrs, observability.AttrLLMOutputMessages, []Message{{Role: "assistant", Content: v.Output}})
			attrs[observability.AttrOutputValue] = v.Output
			attrs[observability.AttrOutputMimeType] = observability.MimeTypeTextPlain
		}
		setUsage(attrs, v.Usage)

	case HandoffPayload:
		if v.FromAgent != "" {
			attrs[observability.AttrHandoffFromAgent] = v.FromAgent
		}
		if v.ToAgent != "" {
			attrs[observability.AttrHandoffToAgent] = v.ToAgent
		}

	case GuardrailPayload:
		attrs[observability.AttrGuardrailName] = v.Name
		attrs[observability.AttrGuardrailTriggered] = v.Triggered

	case CustomPayload:
		if len(v.Data) > 0 {
			attrs[observability.AttrOutputValue] = encodeJSON(v.Data)
			attrs[observability.AttrOutputMimeType] = observability.MimeTypeJSON
		}
	}
	return attrs
}

// inputCandidate returns the user-facing input reported by p, if any.
// Only model calls report trace-level input.
func inputCandidate(p Payload) (string, bool) {
	var msgs []Message
	switch v := p.(type) {
	case GenerationPayload:
		msgs = v.Input
	case ResponsePayload:
		msgs = v.Input
	default:
		return "", false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" && msgs[i].Content != "" {
			return msgs[i].Content, true
		}
	}
	if len(msgs) == 0 {
		return "", false
	}
	return encodeJSON(msgs), true
}

// outputCandidate returns the answer reported by a successful unit.
func outputCandidate(p Payload) (string, bool) {
	switch v := p.(type) {
	case FunctionPayload:
		return v.Output, v.Output != ""
	case GenerationPayload:
		return lastContent(v.Output)
	case ResponsePayload:
		return v.Output, v.Output != ""
	case CustomPayload:
		if len(v.Data) == 0 {
			return "", false
		}
		return encodeJSON(v.Data), true
	}
	return "", false
}

func setModel(attrs map[string]any, model string, config map[string]any) {
	if model != "" {
		attrs[observability.AttrLLMModelName] = model
	}
	if len(config) > 0 {
		attrs[observability.AttrLLMInvocationParameters] = encodeJSON(config)
	}
}

func setMessages(attrs map[string]any, prefix string, msgs []Message) {
	for i, m := range msgs {
		base := fmt.Sprintf("%s.%d.", prefix, i)
		attrs[base+observability.MessageRole] = m.Role
		attrs[base+observability.MessageContent] = m.Content
		if m.Name != "" {
			attrs[base+observability.MessageName] = m.Name
		}
	}
}

func setUsage(attrs map[string]any, u *Usage) {
	if u == nil {
		return
	}
	attrs[observability.AttrLLMTokenCountPrompt] = u.InputTokens
	attrs[observability.AttrLLMTokenCountCompletion] = u.OutputTokens
	attrs[observability.AttrLLMTokenCountTotal] = u.InputTokens + u.OutputTokens
}

func lastContent(msgs []Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Content != "" {
			return msgs[i].Content, true
		}
	}
	return "", false
}

func mimeOf(s string) string {
	if json.Valid([]byte(s)) && (s[0] == '{' || s[0] == '[') {
		return observability.MimeTypeJSON
	}
	return observability.MimeTypeTextPlain
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
