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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
)

func TestWithSession_Nesting(t *testing.T) {
	ctx := context.Background()

	err := WithSession(ctx, "s1", func(ctx context.Context) error {
		return WithUser(ctx, "u1", func(ctx context.Context) error {
			f := FrameFromContext(ctx)
			assert.Equal(t, "s1", f.SessionID)
			assert.Equal(t, "u1", f.UserID)

			return WithSession(ctx, "s2", func(ctx context.Context) error {
				f := FrameFromContext(ctx)
				assert.Equal(t, "s2", f.SessionID, "inner scalar overrides")
				assert.Equal(t, "u1", f.UserID)
				return nil
			})
		})
	})
	require.NoError(t, err)

	f := FrameFromContext(ctx)
	assert.Empty(t, f.SessionID)
	assert.Empty(t, f.UserID)
}

func TestWithSession_ReturnsCallbackError(t *testing.T) {
	boom := errors.New("boom")
	err := WithSession(context.Background(), "s1", func(context.Context) error { return boom })
	assert.Same(t, boom, err)
}

func TestContextWithTags_Union(t *testing.T) {
	ctx := ContextWithTags(context.Background(), "a", "b")
	inner := ContextWithTags(ctx, "b", "c", "a")

	assert.Equal(t, []string{"a", "b", "c"}, FrameFromContext(inner).Tags)
	assert.Equal(t, []string{"a", "b"}, FrameFromContext(ctx).Tags, "parent frame unchanged")
}

func TestContextWithMetadata_ShallowMergeChildWins(t *testing.T) {
	md := map[string]any{"tenant": "acme", "tier": "free"}
	ctx := ContextWithMetadata(context.Background(), md)
	md["tenant"] = "mutated"

	inner := ContextWithMetadata(ctx, map[string]any{"tier": "pro", "region": "eu"})

	assert.Equal(t, map[string]any{"tenant": "acme", "tier": "pro", "region": "eu"}, FrameFromContext(inner).Metadata)
	assert.Equal(t, map[string]any{"tenant": "acme", "tier": "free"}, FrameFromContext(ctx).Metadata)
}

func TestFrame_Attributes(t *testing.T) {
	ctx := ContextWithSession(context.Background(), "s1")
	ctx = ContextWithUser(ctx, "u1")
	ctx = ContextWithTags(ctx, "prod")
	ctx = ContextWithMetadata(ctx, map[string]any{"tenant": "acme"})
	ctx = ContextWithPromptTemplate(ctx, "Hello {{name}}", "v3", map[string]any{"name": "Ada"})

	assert.Equal(t, map[string]any{
		observability.AttrSessionID:                  "s1",
		observability.AttrUserID:                     "u1",
		observability.AttrTags:                       []string{"prod"},
		observability.AttrMetadata:                   `{"tenant":"acme"}`,
		observability.AttrLLMPromptTemplate:          "Hello {{name}}",
		observability.AttrLLMPromptTemplateVersion:   "v3",
		observability.AttrLLMPromptTemplateVariables: `{"name":"Ada"}`,
	}, FrameFromContext(ctx).Attributes())

	assert.Empty(t, Frame{}.Attributes())
}

func TestWithPromptTemplate(t *testing.T) {
	err := WithPromptTemplate(context.Background(), "Summarize {{doc}}", "", nil, func(ctx context.Context) error {
		pt := FrameFromContext(ctx).PromptTemplate
		require.NotNil(t, pt)
		assert.Equal(t, "Summarize {{doc}}", pt.Template)
		return nil
	})
	require.NoError(t, err)
}

func TestFrame_FollowsGoroutines(t *testing.T) {
	tracer, exp := newTestTracer(t, redact.DefaultConfig())

	err := WithSession(context.Background(), "async", func(ctx context.Context) error {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.Equal(t, "async", FrameFromContext(ctx).SessionID)
				_, span := tracer.StartSpan(ctx, "worker")
				span.End()
			}()
		}
		wg.Wait()
		return nil
	})
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 4)
	for _, s := range spans {
		assert.Equal(t, "async", attrs(s)[observability.AttrSessionID].AsString())
	}
}

func TestSuppressTracing(t *testing.T) {
	assert.False(t, IsTracingSuppressed(context.Background()))
	ctx := SuppressTracing(context.Background())
	assert.True(t, IsTracingSuppressed(ctx))
	assert.True(t, IsTracingSuppressed(ContextWithSession(ctx, "s")), "suppression is inherited")
}
