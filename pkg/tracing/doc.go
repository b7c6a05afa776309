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

// Package tracing records AI workloads as OpenTelemetry spans.
//
// Register builds a Provider from FI_* environment variables and options.
// Tracers obtained from the provider create Spans whose attribute writes
// pass through a redaction policy, so hidden inputs and outputs never
// reach memory or the wire:
//
//	provider, err := tracing.Register(tracing.WithProjectName("checkout"))
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(context.Background())
//
//	tracer := provider.Tracer("checkout.agent")
//	err = tracing.WithSession(ctx, "sess-42", func(ctx context.Context) error {
//		return tracer.StartActiveSpan(ctx, "plan", func(ctx context.Context, span *tracing.Span) error {
//			span.SetInput(question)
//			answer, err := plan(ctx, question)
//			span.SetOutput(answer)
//			return err
//		}, observability.WithSpanKind(observability.SpanKindAgent))
//	})
//
// Session, user, tags, metadata and prompt templates ride the
// context.Context and are copied onto every span started beneath them.
// SuppressTracing disables span creation for a subtree.
package tracing
