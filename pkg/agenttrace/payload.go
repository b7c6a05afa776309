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

	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// UnitType discriminates the payload carried by a Unit.
type UnitType string

const (
	UnitAgent      UnitType = "agent"
	UnitFunction   UnitType = "function"
	UnitGeneration UnitType = "generation"
	UnitResponse   UnitType = "response"
	UnitHandoff    UnitType = "handoff"
	UnitGuardrail  UnitType = "guardrail"
	UnitCustom     UnitType = "custom"
)

// Payload is the type-specific data of a unit. The concrete types are
// AgentPayload, FunctionPayload, GenerationPayload, ResponsePayload,
// HandoffPayload, GuardrailPayload and CustomPayload.
type Payload interface {
	Type() UnitType
}

// Message is one chat message sent to or received from a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Usage is the token accounting reported by a model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentPayload describes one agent turn.
type AgentPayload struct {
	Name     string   `json:"name"`
	Tools    []string `json:"tools,omitempty"`
	Handoffs []string `json:"handoffs,omitempty"`
}

// FunctionPayload describes a tool call. Input holds the raw arguments.
type FunctionPayload struct {
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// GenerationPayload describes a chat-completion style model call.
type GenerationPayload struct {
	Model       string         `json:"model,omitempty"`
	ModelConfig map[string]any `json:"model_config,omitempty"`
	Input       []Message      `json:"input,omitempty"`
	Output      []Message      `json:"output,omitempty"`
	Usage       *Usage         `json:"usage,omitempty"`
}

// ResponsePayload describes a responses-API style model call.
type ResponsePayload struct {
	ResponseID string    `json:"response_id,omitempty"`
	Model      string    `json:"model,omitempty"`
	Input      []Message `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Usage      *Usage    `json:"usage,omitempty"`
}

// HandoffPayload records control passing from one agent to another.
type HandoffPayload struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
}

// GuardrailPayload records a guardrail check.
type GuardrailPayload struct {
	Name      string `json:"name"`
	Triggered bool   `json:"triggered"`
}

// CustomPayload carries arbitrary data. Non-empty Data is the unit's output.
type CustomPayload struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

func (AgentPayload) Type() UnitType      { return UnitAgent }
func (FunctionPayload) Type() UnitType   { return UnitFunction }
func (GenerationPayload) Type() UnitType { return UnitGeneration }
func (ResponsePayload) Type() UnitType   { return UnitResponse }
func (HandoffPayload) Type() UnitType    { return UnitHandoff }
func (GuardrailPayload) Type() UnitType  { return UnitGuardrail }
func (CustomPayload) Type() UnitType     { return UnitCustom }

// DecodePayload decodes raw into the payload variant named by t. An empty
// raw yields the zero payload of that type.
func DecodePayload(t UnitType, raw json.RawMessage) (Payload, error) {
	var p Payload
	var err error
	switch t {
	case UnitAgent:
		p, err = decodeInto[AgentPayload](raw)
	case UnitFunction:
		p, err = decodeInto[FunctionPayload](raw)
	case UnitGeneration:
		p, err = decodeInto[GenerationPayload](raw)
	case UnitResponse:
		p, err = decodeInto[ResponsePayload](raw)
	case UnitHandoff:
		p, err = decodeInto[HandoffPayload](raw)
	case UnitGuardrail:
		p, err = decodeInto[GuardrailPayload](raw)
	case UnitCustom:
		p, err = decodeInto[CustomPayload](raw)
	default:
		return nil, &errors.ValidationError{Field: "type", Message: fmt.Sprintf("unknown unit type %q", t)}
	}
	if err != nil {
		return nil, &errors.ValidationError{Field: "payload", Message: fmt.Sprintf("invalid %s payload: %v", t, err)}
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// spanName is the name of the span opened for p.
func spanName(p Payload) string {
	switch v := p.(type) {
	case AgentPayload:
		return nonEmpty(v.Name, "agent")
	case FunctionPayload:
		return nonEmpty(v.Name, "function")
	case GuardrailPayload:
		return nonEmpty(v.Name, "guardrail")
	case CustomPayload:
		return nonEmpty(v.Name, "custom")
	case HandoffPayload:
		if v.FromAgent != "" && v.ToAgent != "" {
			return fmt.Sprintf("handoff %s -> %s", v.FromAgent, v.ToAgent)
		}
		return "handoff"
	default:
		return string(p.Type())
	}
}

func spanKind(p Payload) observability.SpanKind {
	switch p.Type() {
	case UnitAgent:
		return observability.SpanKindAgent
	case UnitFunction, UnitHandoff:
		return observability.SpanKindTool
	case UnitGeneration, UnitResponse:
		return observability.SpanKindLLM
	case UnitGuardrail:
		return observability.SpanKindGuardrail
	default:
		return observability.SpanKindChain
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
