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

// Package agenttrace turns the start/end event stream of an external agent
// runtime into a parented span tree.
//
// A trace is opened by TraceStart and closed by TraceEnd. In between, units
// (agent turns, tool calls, model generations, handoffs, guardrails) are
// opened and closed by id. A unit's parent is looked up by ParentID among
// the trace's units; unknown or empty parents attach to the root span. The
// root's input and output are inferred from unit traffic: the first model
// input seen becomes the trace input and the last successful output becomes
// the trace output.
package agenttrace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
	"github.com/future-agi/traceAI-sub007/pkg/tracing"
)

// Phase is the lifecycle position of a trace.
type Phase int

const (
	// PhasePending means the root span is open and no unit has started.
	PhasePending Phase = iota
	// PhaseActive means at least one unit has started.
	PhaseActive
	// PhaseFinalizing means TraceEnd was received while streams were still
	// draining; the root ends when the last one finishes.
	PhaseFinalizing
	// PhaseClosed means the root span has ended and all state is gone.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "closed"
	}
}

// Unit is an externally reported step of a trace.
type Unit struct {
	ID       string
	TraceID  string
	ParentID string
	Payload  Payload
}

// Outcome is the result of a unit. A nil Payload keeps the start payload.
type Outcome struct {
	Payload Payload
	Err     error
}

type traceState struct {
	id     string
	logger *slog.Logger
	root   *tracing.Span
	ctx   context.Context
	phase Phase
	units map[string]*unitState

	input, output       string
	hasInput, hasOutput bool

	// handoffs maps a receiving agent name to the agent that handed off.
	handoffs map[string]string

	// streams counts units whose output is still being drained.
	streams   int
	ended     bool
	closeOnce sync.Once
}

type unitState struct {
	id        string
	trace     *traceState
	span      *tracing.Span
	payload   Payload
	closed    bool
	streaming bool
	closeOnce sync.Once
}

// Processor aggregates unit events into spans. It is safe for concurrent
// use; events for one trace are applied in arrival order.
type Processor struct {
	tracer *tracing.Tracer
	logger *slog.Logger

	mu       sync.Mutex
	traces   map[string]*traceState
	units    map[string]*unitState
	draining map[string]*traceState
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for aggregation problems.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor returns a processor that creates spans with tracer.
func NewProcessor(tracer *tracing.Tracer, opts ...Option) *Processor {
	p := &Processor{
		tracer:   tracer,
		logger:   log.Discard(),
		traces:   make(map[string]*traceState),
		units:    make(map[string]*unitState),
		draining: make(map[string]*traceState),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.WithComponent(p.logger, "agenttrace")
	return p
}

// TraceStart opens the root span of traceID. metadata is merged into the
// ambient metadata of ctx. A trace id that is already open is ignored.
func (p *Processor) TraceStart(ctx context.Context, traceID, name string, metadata map[string]any) error {
	if traceID == "" {
		return &errors.ValidationError{Field: "trace_id", Message: "must not be empty"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.traces[traceID]; ok {
		p.logger.Warn("duplicate trace start ignored", log.TraceIDKey, traceID)
		return nil
	}

	if len(metadata) > 0 {
		ctx = tracing.ContextWithMetadata(ctx, metadata)
	}
	// The root never inherits a caller span.
	ctx = oteltrace.ContextWithSpanContext(ctx, oteltrace.SpanContext{})
	ctx, root := p.tracer.StartSpan(ctx, nonEmpty(name, "trace"),
		observability.WithSpanKind(observability.SpanKindAgent))

	p.traces[traceID] = &traceState{
		id:       traceID,
		logger:   log.WithTrace(p.logger, traceID),
		root:     root,
		ctx:      ctx,
		units:    make(map[string]*unitState),
		handoffs: make(map[string]string),
	}
	p.logger.Debug("trace started", log.TraceIDKey, traceID, "span_id", root.SpanID())
	return nil
}

// UnitStart opens a span for u under its parent unit, or under the root
// when the parent is unknown.
func (p *Processor) UnitStart(ctx context.Context, u Unit) error {
	switch {
	case u.ID == "":
		return &errors.ValidationError{Field: "unit_id", Message: "must not be empty"}
	case u.Payload == nil:
		return &errors.ValidationError{Field: "payload", Message: "must not be nil"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.traces[u.TraceID]
	if !ok {
		p.logger.Warn("unit start for unknown trace", log.TraceIDKey, u.TraceID, log.UnitIDKey, u.ID)
		return &errors.NotFoundError{Resource: "trace", ID: u.TraceID}
	}
	if _, dup := p.units[u.ID]; dup {
		p.logger.Warn("duplicate unit start ignored", log.TraceIDKey, u.TraceID, log.UnitIDKey, u.ID)
		return &errors.ValidationError{Field: "unit_id", Message: fmt.Sprintf("unit %s already started", u.ID)}
	}

	parent := t.root
	if u.ParentID != "" {
		if pu, ok := t.units[u.ParentID]; ok {
			parent = pu.span
		} else {
			p.logger.Debug("unknown parent unit, attaching to root",
				log.TraceIDKey, u.TraceID, log.UnitIDKey, u.ID, "parent_id", u.ParentID)
		}
	}

	// Units inherit the trace's frame, not the caller's.
	_, span := p.tracer.StartSpan(tracing.ContextWithSpan(t.ctx, parent), spanName(u.Payload),
		observability.WithSpanKind(spanKind(u.Payload)),
		observability.WithAttributes(payloadAttributes(u.Payload)),
	)

	us := &unitState{id: u.ID, trace: t, span: span, payload: u.Payload}
	t.units[u.ID] = us
	p.units[u.ID] = us
	if t.phase == PhasePending {
		t.phase = PhaseActive
	}
	p.recordInputLocked(t, u.Payload)
	return nil
}

// UnitEnd writes the outcome onto the unit's span and ends it. An outcome
// error marks the span failed; whatever the payload reported is still
// written.
func (p *Processor) UnitEnd(ctx context.Context, unitID string, outcome Outcome) error {
	p.mu.Lock()
	us, err := p.claimLocked(unitID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	us.closed = true
	payload := p.resolvePayload(us, outcome.Payload)
	t := us.trace

	if outcome.Err == nil {
		p.recordInputLocked(t, payload)
		p.recordOutputLocked(t, payload)
	}
	var cameFrom string
	switch v := payload.(type) {
	case HandoffPayload:
		if v.ToAgent != "" {
			t.handoffs[v.ToAgent] = v.FromAgent
		}
	case AgentPayload:
		if from, ok := t.handoffs[v.Name]; ok {
			cameFrom = from
			delete(t.handoffs, v.Name)
		}
	}
	p.mu.Unlock()

	us.closeOnce.Do(func() {
		us.span.SetAttributes(payloadAttributes(payload))
		if cameFrom != "" {
			us.span.SetAttribute(observability.AttrGraphNodeParentID, cameFrom)
		}
		finishSpan(us.span, outcome.Err)
	})
	return nil
}

// claimLocked returns the open unit for unitID.
func (p *Processor) claimLocked(unitID string) (*unitState, error) {
	us, ok := p.units[unitID]
	if !ok {
		p.logger.Warn("unit end for unknown unit", log.UnitIDKey, unitID)
		return nil, &errors.NotFoundError{Resource: "unit", ID: unitID}
	}
	if us.closed || us.streaming {
		p.logger.Warn("unit already ended", log.UnitIDKey, unitID)
		return nil, &errors.ValidationError{Field: "unit_id", Message: fmt.Sprintf("unit %s already ended", unitID)}
	}
	return us, nil
}

// resolvePayload picks the end payload when it matches the unit type.
func (p *Processor) resolvePayload(us *unitState, end Payload) Payload {
	if end == nil {
		return us.payload
	}
	if end.Type() != us.payload.Type() {
		p.logger.Warn("end payload type differs from start, keeping start payload",
			log.UnitIDKey, us.id, "start_type", us.payload.Type(), "end_type", end.Type())
		return us.payload
	}
	return end
}

func (p *Processor) recordInputLocked(t *traceState, payload Payload) {
	if t.hasInput {
		return
	}
	if in, ok := inputCandidate(payload); ok {
		t.input, t.hasInput = in, true
	}
}

func (p *Processor) recordOutputLocked(t *traceState, payload Payload) {
	if out, ok := outputCandidate(payload); ok {
		t.output, t.hasOutput = out, true
	}
}

// TraceEnd finalizes traceID. Units still open are ended, the accumulated
// input and output are written to the root, and the root is ended. When
// streamed units are still draining the root ends after the last of them.
// All state for the trace is discarded.
func (p *Processor) TraceEnd(ctx context.Context, traceID string) error {
	p.mu.Lock()
	t, ok := p.traces[traceID]
	if !ok {
		p.mu.Unlock()
		p.logger.Warn("trace end for unknown trace", log.TraceIDKey, traceID)
		return &errors.NotFoundError{Resource: "trace", ID: traceID}
	}
	delete(p.traces, traceID)

	var open []*unitState
	for id, us := range t.units {
		delete(p.units, id)
		if !us.closed && !us.streaming {
			us.closed = true
			open = append(open, us)
		}
	}
	t.ended = true
	pending := t.streams
	if pending > 0 {
		t.phase = PhaseFinalizing
		p.draining[traceID] = t
	}
	p.mu.Unlock()

	for _, us := range open {
		t.logger.Debug("ending unit left open at trace end", log.UnitIDKey, us.id)
		us.closeOnce.Do(func() { us.span.End() })
	}

	if pending > 0 {
		t.logger.Debug("trace end waiting on streams", "streams", pending)
		return nil
	}
	p.closeTrace(t)
	return nil
}

// closeTrace writes the inferred input and output onto the root and ends it.
func (p *Processor) closeTrace(t *traceState) {
	t.closeOnce.Do(func() {
		p.mu.Lock()
		delete(p.draining, t.id)
		t.phase = PhaseClosed
		input, hasInput := t.input, t.hasInput
		output, hasOutput := t.output, t.hasOutput
		p.mu.Unlock()

		if hasInput {
			t.root.SetInput(input)
		}
		if hasOutput {
			t.root.SetOutput(output)
		}
		t.root.SetStatus(observability.StatusCodeOK, "")
		t.root.End()
		t.logger.Debug("trace closed")
	})
}

// Phase reports the lifecycle position of traceID. Unknown and finished
// traces report PhaseClosed and false.
func (p *Processor) Phase(traceID string) (Phase, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.traces[traceID]; ok {
		return t.phase, true
	}
	if t, ok := p.draining[traceID]; ok {
		return t.phase, true
	}
	return PhaseClosed, false
}

// Shutdown ends every open trace, then force-closes streams that were
// never drained. Spans of abandoned streams are marked failed.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.traces))
	for id := range p.traces {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = p.TraceEnd(ctx, id)
	}

	p.mu.Lock()
	var abandoned []*unitState
	for _, t := range p.draining {
		for _, us := range t.units {
			if us.streaming {
				abandoned = append(abandoned, us)
			}
		}
	}
	p.mu.Unlock()

	for _, us := range abandoned {
		p.finishStream(us, us.payload, "", fmt.Errorf("processor shut down before stream %s completed", us.id))
	}
	return ctx.Err()
}

func finishSpan(span *tracing.Span, err error) {
	if err != nil {
		span.SetError(err)
	} else {
		span.SetStatus(observability.StatusCodeOK, "")
	}
	span.End()
}
