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
	"encoding/json"
	"maps"
	"slices"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// PromptTemplate describes the template that produced an LLM prompt.
type PromptTemplate struct {
	Template  string
	Version   string
	Variables map[string]any
}

// Frame is the ambient metadata copied onto every span started under it.
// Frames are immutable; each With* call derives a new one.
type Frame struct {
	SessionID      string
	UserID         string
	Tags           []string
	Metadata       map[string]any
	PromptTemplate *PromptTemplate
}

type frameKey struct{}
type suppressKey struct{}

// FrameFromContext returns the frame active in ctx. The zero Frame is
// returned when none is set.
func FrameFromContext(ctx context.Context) Frame {
	if f, ok := ctx.Value(frameKey{}).(Frame); ok {
		return f
	}
	return Frame{}
}

func withFrame(ctx context.Context, update func(*Frame)) context.Context {
	f := FrameFromContext(ctx).clone()
	update(&f)
	return context.WithValue(ctx, frameKey{}, f)
}

func (f Frame) clone() Frame {
	out := f
	out.Tags = slices.Clone(f.Tags)
	out.Metadata = maps.Clone(f.Metadata)
	if f.PromptTemplate != nil {
		pt := *f.PromptTemplate
		pt.Variables = maps.Clone(pt.Variables)
		out.PromptTemplate = &pt
	}
	return out
}

// ContextWithSession returns a child of ctx whose frame carries session id.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return withFrame(ctx, func(f *Frame) { f.SessionID = id })
}

// ContextWithUser returns a child of ctx whose frame carries user id.
func ContextWithUser(ctx context.Context, id string) context.Context {
	return withFrame(ctx, func(f *Frame) { f.UserID = id })
}

// ContextWithMetadata shallow-merges md over the parent frame's metadata.
func ContextWithMetadata(ctx context.Context, md map[string]any) context.Context {
	return withFrame(ctx, func(f *Frame) {
		if f.Metadata == nil {
			f.Metadata = make(map[string]any, len(md))
		}
		maps.Copy(f.Metadata, md)
	})
}

// ContextWithTags unions tags into the parent frame's tags, keeping
// first-seen order.
func ContextWithTags(ctx context.Context, tags ...string) context.Context {
	return withFrame(ctx, func(f *Frame) {
		for _, tag := range tags {
			if !slices.Contains(f.Tags, tag) {
				f.Tags = append(f.Tags, tag)
			}
		}
	})
}

// ContextWithPromptTemplate records the prompt template in the frame.
func ContextWithPromptTemplate(ctx context.Context, template, version string, variables map[string]any) context.Context {
	return withFrame(ctx, func(f *Frame) {
		f.PromptTemplate = &PromptTemplate{
			Template:  template,
			Version:   version,
			Variables: maps.Clone(variables),
		}
	})
}

// WithSession runs fn with the session id in its context.
func WithSession(ctx context.Context, id string, fn func(context.Context) error) error {
	return fn(ContextWithSession(ctx, id))
}

// WithUser runs fn with the user id in its context.
func WithUser(ctx context.Context, id string, fn func(context.Context) error) error {
	return fn(ContextWithUser(ctx, id))
}

// WithMetadata runs fn with md merged into the ambient metadata.
func WithMetadata(ctx context.Context, md map[string]any, fn func(context.Context) error) error {
	return fn(ContextWithMetadata(ctx, md))
}

// WithTags runs fn with tags added to the ambient tag set.
func WithTags(ctx context.Context, tags []string, fn func(context.Context) error) error {
	return fn(ContextWithTags(ctx, tags...))
}

// WithPromptTemplate runs fn with the prompt template in its context.
func WithPromptTemplate(ctx context.Context, template, version string, variables map[string]any, fn func(context.Context) error) error {
	return fn(ContextWithPromptTemplate(ctx, template, version, variables))
}

// SuppressTracing returns a child of ctx in which spans are not recorded.
func SuppressTracing(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

// WithSuppressedTracing runs fn with tracing suppressed.
func WithSuppressedTracing(ctx context.Context, fn func(context.Context) error) error {
	return fn(SuppressTracing(ctx))
}

// IsTracingSuppressed reports whether ctx was derived from SuppressTracing.
func IsTracingSuppressed(ctx context.Context) bool {
	suppressed, _ := ctx.Value(suppressKey{}).(bool)
	return suppressed
}

// Attributes returns the span attributes contributed by the frame.
// Metadata and template variables are JSON-encoded strings.
func (f Frame) Attributes() map[string]any {
	attrs := make(map[string]any)
	if f.SessionID != "" {
		attrs[observability.AttrSessionID] = f.SessionID
	}
	if f.UserID != "" {
		attrs[observability.AttrUserID] = f.UserID
	}
	if len(f.Tags) > 0 {
		attrs[observability.AttrTags] = slices.Clone(f.Tags)
	}
	if len(f.Metadata) > 0 {
		if b, err := json.Marshal(f.Metadata); err == nil {
			attrs[observability.AttrMetadata] = string(b)
		}
	}
	if pt := f.PromptTemplate; pt != nil {
		attrs[observability.AttrLLMPromptTemplate] = pt.Template
		if pt.Version != "" {
			attrs[observability.AttrLLMPromptTemplateVersion] = pt.Version
		}
		if len(pt.Variables) > 0 {
			if b, err := json.Marshal(pt.Variables); err == nil {
				attrs[observability.AttrLLMPromptTemplateVariables] = string(b)
			}
		}
	}
	return attrs
}
