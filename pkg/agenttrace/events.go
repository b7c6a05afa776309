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
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"iter"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
)

// EventKind names a processor operation.
type EventKind string

const (
	EventTraceStart EventKind = "trace_start"
	EventUnitStart  EventKind = "unit_start"
	EventUnitEnd    EventKind = "unit_end"
	EventTraceEnd   EventKind = "trace_end"
)

// Event is one recorded processor call. A unit_end event with a non-nil
// Stream is replayed through UnitEndStream.
type Event struct {
	Kind     EventKind      `json:"event"`
	TraceID  string         `json:"trace_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	UnitID   string   `json:"unit_id,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
	Type     UnitType `json:"type,omitempty"`
	Payload  Payload  `json:"-"`
	Error    string   `json:"error,omitempty"`

	Stream      []string `json:"stream,omitempty"`
	StreamError string   `json:"stream_error,omitempty"`
}

type eventFields Event

type wireEvent struct {
	eventFields
	RawPayload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEvents reads a sequence of JSON event objects from r. Payloads are
// decoded into the variant named by the event's type; a unit_end without a
// type takes the type of its unit_start.
func DecodeEvents(r io.Reader) ([]Event, error) {
	dec := json.NewDecoder(r)
	types := make(map[string]UnitType)

	var events []Event
	for i := 0; ; i++ {
		var w wireEvent
		if err := dec.Decode(&w); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return nil, errors.Wrapf(err, "decode event %d", i)
		}
		ev := Event(w.eventFields)

		switch ev.Kind {
		case EventTraceStart, EventTraceEnd:
		case EventUnitStart:
			types[ev.UnitID] = ev.Type
		case EventUnitEnd:
			if ev.Type == "" {
				ev.Type = types[ev.UnitID]
			}
		default:
			return nil, &errors.ValidationError{Field: "event", Message: fmt.Sprintf("event %d: unknown kind %q", i, ev.Kind)}
		}

		if ev.Kind == EventUnitStart || (ev.Kind == EventUnitEnd && len(w.RawPayload) > 0) {
			p, err := DecodePayload(ev.Type, w.RawPayload)
			if err != nil {
				return nil, errors.Wrapf(err, "event %d", i)
			}
			ev.Payload = p
		}
		events = append(events, ev)
	}
}

// MarshalJSON writes the event with its payload inline.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{eventFields: eventFields(e)}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		w.RawPayload = raw
		if w.Type == "" {
			w.Type = e.Payload.Type()
		}
	}
	return json.Marshal(w)
}

// Apply replays ev against p.
func Apply(ctx context.Context, p *Processor, ev Event) error {
	switch ev.Kind {
	case EventTraceStart:
		return p.TraceStart(ctx, ev.TraceID, ev.Name, ev.Metadata)
	case EventTraceEnd:
		return p.TraceEnd(ctx, ev.TraceID)
	case EventUnitStart:
		return p.UnitStart(ctx, Unit{ID: ev.UnitID, TraceID: ev.TraceID, ParentID: ev.ParentID, Payload: ev.Payload})
	case EventUnitEnd:
		outcome := Outcome{Payload: ev.Payload}
		if ev.Error != "" {
			outcome.Err = stderrors.New(ev.Error)
		}
		if ev.Stream == nil {
			return p.UnitEnd(ctx, ev.UnitID, outcome)
		}
		var streamErr error
		for _, err := range p.UnitEndStream(ctx, ev.UnitID, outcome, replayStream(ev.Stream, ev.StreamError)) {
			if err != nil {
				streamErr = err
			}
		}
		return streamErr
	default:
		return &errors.ValidationError{Field: "event", Message: fmt.Sprintf("unknown kind %q", ev.Kind)}
	}
}

// replayStream yields chunks, then streamErr when it is set.
func replayStream(chunks []string, streamErr string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != "" {
			yield("", stderrors.New(streamErr))
		}
	}
}
