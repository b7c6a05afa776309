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
	"bytes"
	"encoding/json"
	"strings"
)

// ChatCompletion extracts OpenAI-compatible chat completion requests
// ({"model","messages"}) and responses ({"choices":[{"message"}]}).
type ChatCompletion struct{}

func (ChatCompletion) Name() string { return "chat_completion" }

func (ChatCompletion) Match(s Shape) bool {
	if s.Has("choices") {
		return s.String("object") == "" || strings.HasPrefix(s.String("object"), "chat.completion")
	}
	return s.Has("model", "messages") && !s.Has("max_tokens", "system")
}

type openAIMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Name      string          `json:"name"`
	ToolCalls []struct {
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func (m openAIMessage) toMessage() Message {
	out := Message{Role: m.Role, Content: contentText(m.Content), Name: m.Name}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

var chatParams = []string{"temperature", "top_p", "max_tokens", "max_completion_tokens", "n", "stop", "presence_penalty", "frequency_penalty", "seed"}

func (ChatCompletion) Extract(payload []byte) (Extraction, error) {
	var body struct {
		Model    string          `json:"model"`
		Messages []openAIMessage `json:"messages"`
		Choices  []struct {
			Message      openAIMessage `json:"message"`
			FinishReason string        `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Extraction{}, err
	}

	out := Extraction{Provider: "openai", Model: body.Model}
	for _, m := range body.Messages {
		out.InputMessages = append(out.InputMessages, m.toMessage())
	}
	for _, c := range body.Choices {
		out.OutputMessages = append(out.OutputMessages, c.Message.toMessage())
		if out.FinishReason == "" {
			out.FinishReason = c.FinishReason
		}
	}
	if u := body.Usage; u != nil {
		out.Usage = &Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	if len(body.Messages) > 0 {
		out.InvocationParams = invocationParams(payload, chatParams)
	}
	return out, nil
}

// AnthropicMessage extracts Anthropic Messages API requests
// ({"model","max_tokens","messages"}) and responses ({"type":"message"}).
type AnthropicMessage struct{}

func (AnthropicMessage) Name() string { return "anthropic_message" }

func (AnthropicMessage) Match(s Shape) bool {
	if s.String("type") == "message" && s.Has("content") {
		return true
	}
	return s.Has("model", "messages", "max_tokens")
}

var anthropicParams = []string{"max_tokens", "temperature", "top_p", "top_k", "stop_sequences"}

func (AnthropicMessage) Extract(payload []byte) (Extraction, error) {
	var body struct {
		Model    string          `json:"model"`
		Role     string          `json:"role"`
		System   json.RawMessage `json:"system"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		Content    json.RawMessage `json:"content"`
		StopReason string          `json:"stop_reason"`
		Usage      *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Extraction{}, err
	}

	out := Extraction{Provider: "anthropic", Model: body.Model, FinishReason: body.StopReason}
	if sys := contentText(body.System); sys != "" {
		out.InputMessages = append(out.InputMessages, Message{Role: "system", Content: sys})
	}
	for _, m := range body.Messages {
		out.InputMessages = append(out.InputMessages, Message{Role: m.Role, Content: contentText(m.Content)})
	}
	if len(body.Content) > 0 {
		msg := Message{Role: body.Role, Content: contentText(body.Content), ToolCalls: anthropicToolUses(body.Content)}
		if msg.Role == "" {
			msg.Role = "assistant"
		}
		out.OutputMessages = append(out.OutputMessages, msg)
	}
	if u := body.Usage; u != nil {
		out.Usage = &Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
	}
	if len(body.Messages) > 0 {
		out.InvocationParams = invocationParams(payload, anthropicParams)
	}
	return out, nil
}

func anthropicToolUses(raw json.RawMessage) []ToolCall {
	var blocks []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}
	if json.Unmarshal(raw, &blocks) != nil {
		return nil
	}
	var calls []ToolCall
	for _, b := range blocks {
		if b.Type == "tool_use" {
			calls = append(calls, ToolCall{Name: b.Name, Arguments: string(b.Input)})
		}
	}
	return calls
}

// Embedding extracts embedding responses ({"data":[{"embedding":[...]}]}).
// The request's "input" texts, when present, are paired by index.
type Embedding struct{}

func (Embedding) Name() string { return "embedding" }

func (Embedding) Match(s Shape) bool {
	if !s.Has("data") {
		return false
	}
	var items []map[string]json.RawMessage
	if json.Unmarshal(s["data"], &items) != nil || len(items) == 0 {
		return false
	}
	_, ok := items[0]["embedding"]
	return ok
}

func (Embedding) Extract(payload []byte) (Extraction, error) {
	var body struct {
		Model string          `json:"model"`
		Input json.RawMessage `json:"input"`
		Data  []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage *struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Extraction{}, err
	}

	texts := stringList(body.Input)
	out := Extraction{Model: body.Model, Embeddings: make([]Vector, len(body.Data))}
	for i, d := range body.Data {
		v := Vector{Values: d.Embedding}
		if d.Index >= 0 && d.Index < len(texts) {
			v.Text = texts[d.Index]
		}
		out.Embeddings[i] = v
	}
	if u := body.Usage; u != nil {
		out.Usage = &Usage{InputTokens: u.PromptTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// contentText flattens a content field that is either a string or a list
// of typed parts. Non-text parts are skipped.
func contentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Text != "" && (p.Type == "text" || p.Type == "") {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "")
}

func stringList(raw json.RawMessage) []string {
	var one string
	if json.Unmarshal(raw, &one) == nil {
		return []string{one}
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		return many
	}
	return nil
}

func invocationParams(payload []byte, keys []string) map[string]any {
	var all map[string]any
	if json.Unmarshal(payload, &all) != nil {
		return nil
	}
	params := make(map[string]any)
	for _, k := range keys {
		if v, ok := all[k]; ok && v != nil {
			params[k] = v
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
