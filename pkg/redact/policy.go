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

// Package redact decides which span attributes may be materialized.
//
// A Policy is consulted on every attribute write. Values in a hidden
// category are dropped before they reach the span, so they never exist in
// memory or on the wire.
package redact

import (
	"fmt"
	"strings"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// ScrubMode determines whether secret patterns are rewritten inside
// string values that are otherwise allowed.
type ScrubMode string

const (
	// ScrubNone leaves allowed values untouched.
	ScrubNone ScrubMode = "none"

	// ScrubStandard rewrites common secrets (API keys, tokens, private keys)
	// and drops attributes whose key names a credential.
	ScrubStandard ScrubMode = "standard"
)

// TruncationMarker is appended to values cut at Base64ImageMaxLength.
const TruncationMarker = "...[truncated]"

// Config holds the redaction switches.
type Config struct {
	HideInputs           bool `yaml:"hide_inputs" envconfig:"FI_HIDE_INPUTS"`
	HideOutputs          bool `yaml:"hide_outputs" envconfig:"FI_HIDE_OUTPUTS"`
	HideInputMessages    bool `yaml:"hide_input_messages" envconfig:"FI_HIDE_INPUT_MESSAGES"`
	HideOutputMessages   bool `yaml:"hide_output_messages" envconfig:"FI_HIDE_OUTPUT_MESSAGES"`
	HideInputImages      bool `yaml:"hide_input_images" envconfig:"FI_HIDE_INPUT_IMAGES"`
	HideInputText        bool `yaml:"hide_input_text" envconfig:"FI_HIDE_INPUT_TEXT"`
	HideOutputText       bool `yaml:"hide_output_text" envconfig:"FI_HIDE_OUTPUT_TEXT"`
	HideEmbeddingVectors bool `yaml:"hide_embedding_vectors" envconfig:"FI_HIDE_EMBEDDING_VECTORS"`

	// Base64ImageMaxLength caps inlined base64 payloads. Zero disables the cap.
	Base64ImageMaxLength int `yaml:"base64_image_max_length" envconfig:"FI_BASE64_IMAGE_MAX_LENGTH" default:"32000"`

	// ScrubMode selects secret scrubbing (default: none).
	ScrubMode ScrubMode `yaml:"scrub_mode" envconfig:"FI_SCRUB_MODE" default:"none"`

	// Patterns replaces StandardPatterns when ScrubMode is standard.
	Patterns []Pattern `yaml:"-" ignored:"true"`
}

// DefaultConfig returns a configuration that hides nothing and caps base64
// images at 32000 characters.
func DefaultConfig() Config {
	return Config{
		Base64ImageMaxLength: 32000,
		ScrubMode:            ScrubNone,
	}
}

// Policy is an immutable, resolved redaction configuration.
type Policy struct {
	cfg      Config
	patterns []Pattern
}

// NewPolicy validates cfg and resolves it into a Policy.
func NewPolicy(cfg Config) (*Policy, error) {
	if cfg.Base64ImageMaxLength < 0 {
		return nil, &errors.ConfigError{
			Key:    "base64_image_max_length",
			Reason: fmt.Sprintf("must be >= 0, got %d", cfg.Base64ImageMaxLength),
		}
	}

	p := &Policy{cfg: cfg}
	switch cfg.ScrubMode {
	case "", ScrubNone:
		p.cfg.ScrubMode = ScrubNone
	case ScrubStandard:
		p.patterns = cfg.Patterns
		if len(p.patterns) == 0 {
			p.patterns = StandardPatterns()
		}
	default:
		return nil, &errors.ConfigError{
			Key:    "scrub_mode",
			Reason: fmt.Sprintf("unknown scrub mode %q", cfg.ScrubMode),
		}
	}
	p.cfg.Patterns = nil
	return p, nil
}

// AllowAll returns a policy that hides nothing.
func AllowAll() *Policy {
	p, _ := NewPolicy(Config{})
	return p
}

// Config returns a copy of the resolved configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Hidden reports whether attribute key belongs to a hidden category.
func (p *Policy) Hidden(key string) bool {
	if p == nil {
		return false
	}
	c := p.cfg

	switch key {
	case observability.AttrInputValue, observability.AttrInputMimeType:
		return c.HideInputs
	case observability.AttrOutputValue, observability.AttrOutputMimeType:
		return c.HideOutputs
	}

	switch {
	case strings.HasPrefix(key, observability.AttrLLMInputMessages):
		if c.HideInputs || c.HideInputMessages {
			return true
		}
		if c.HideInputImages && strings.Contains(key, observability.MessageContentImage) {
			return true
		}
		if c.HideInputText && isMessageText(key) {
			return true
		}
	case strings.HasPrefix(key, observability.AttrLLMOutputMessages):
		if c.HideOutputs || c.HideOutputMessages {
			return true
		}
		if c.HideOutputText && isMessageText(key) {
			return true
		}
	case strings.HasPrefix(key, observability.AttrEmbeddingEmbeddings):
		if c.HideEmbeddingVectors && strings.HasSuffix(key, observability.EmbeddingVectorSuffix) {
			return true
		}
	}

	if c.ScrubMode == ScrubStandard && isCredentialKey(key) {
		return true
	}
	return false
}

// isMessageText matches both the flat message.content key and the
// multi-part message_content.text key.
func isMessageText(key string) bool {
	return strings.HasSuffix(key, observability.MessageContent) ||
		strings.HasSuffix(key, observability.MessageContentText)
}

// Apply returns the value to store for key and whether it may be stored.
// Hidden keys return (nil, false).
func (p *Policy) Apply(key string, value any) (any, bool) {
	if p.Hidden(key) {
		return nil, false
	}
	if p == nil {
		return value, true
	}

	switch v := value.(type) {
	case string:
		return p.applyString(v), true
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = p.applyString(s)
		}
		return out, true
	default:
		return value, true
	}
}

func (p *Policy) applyString(s string) string {
	if max := p.cfg.Base64ImageMaxLength; max > 0 && len(s) > max && isBase64Payload(s) {
		s = s[:max] + TruncationMarker
	}
	if len(p.patterns) > 0 {
		s = scrub(s, p.patterns)
	}
	return s
}

// isBase64Payload detects inlined binary data URIs such as
// "data:image/png;base64,....".
func isBase64Payload(s string) bool {
	if !strings.HasPrefix(s, "data:") {
		return false
	}
	head := s
	if len(head) > 128 {
		head = head[:128]
	}
	return strings.Contains(head, ";base64,")
}
