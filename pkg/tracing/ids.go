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
	"crypto/rand"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// IDGenerator produces random trace and span identifiers from crypto/rand.
// The all-zero identifier is reserved for "no span" and is never returned.
type IDGenerator struct{}

var _ sdktrace.IDGenerator = (*IDGenerator)(nil)

// NewIDGenerator returns a generator backed by crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewIDs returns a new trace id and root span id.
func (g *IDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID(), g.spanID()
}

// NewSpanID returns a span id for a child of traceID.
func (g *IDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {
	return g.spanID()
}

// GenerateTraceID returns a 32 character lowercase hex trace id.
func (g *IDGenerator) GenerateTraceID() string {
	return g.traceID().String()
}

// GenerateSpanID returns a 16 character lowercase hex span id.
func (g *IDGenerator) GenerateSpanID() string {
	return g.spanID().String()
}

func (g *IDGenerator) traceID() trace.TraceID {
	var id trace.TraceID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}

func (g *IDGenerator) spanID() trace.SpanID {
	var id trace.SpanID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}
