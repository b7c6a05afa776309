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
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/future-agi/traceAI-sub007/internal/log"
)

// UnitEndStream ends a unit whose output arrives as a sequence of chunks.
// The returned sequence forwards every chunk and error of seq unchanged.
// The unit's span is finalized exactly once, when seq is exhausted, when
// the consumer stops early, or when the iteration panics. The concatenated
// chunks become the span's output.value. An error from seq, a cancelled
// ctx or a panic marks the span failed; stopping early does not.
//
// The unit stays open until the returned sequence is ranged over. A
// sequence that is never started cannot be detected: its span stays open,
// and after TraceEnd the root waits in PhaseFinalizing until Shutdown ends
// the unit with an error. Callers that drop the sequence must still range
// it, breaking at once if they want nothing. An unknown unit id returns seq
// untouched.
func (p *Processor) UnitEndStream(ctx context.Context, unitID string, outcome Outcome, seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	p.mu.Lock()
	us, err := p.claimLocked(unitID)
	if err != nil {
		p.mu.Unlock()
		return seq
	}
	us.streaming = true
	us.trace.streams++
	payload := p.resolvePayload(us, outcome.Payload)
	p.mu.Unlock()

	return func(yield func(string, error) bool) {
		var buf strings.Builder
		streamErr := outcome.Err
		chunks := 0

		defer func() {
			r := recover()
			switch {
			case r != nil:
				streamErr = fmt.Errorf("panic: %v", r)
			case streamErr == nil && ctx.Err() != nil:
				streamErr = ctx.Err()
			}
			log.Trace(p.logger, "stream drained", slog.String(log.UnitIDKey, unitID), slog.Int("chunks", chunks))
			p.finishStream(us, payload, buf.String(), streamErr)
			if r != nil {
				panic(r)
			}
		}()

		for chunk, err := range seq {
			if err != nil {
				if streamErr == nil {
					streamErr = err
				}
			} else {
				buf.WriteString(chunk)
				chunks++
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// finishStream writes the final attributes of a streamed unit and ends its
// span. When it is the last stream of an ended trace the root is closed
// too.
func (p *Processor) finishStream(us *unitState, payload Payload, output string, err error) {
	us.closeOnce.Do(func() {
		t := us.trace

		p.mu.Lock()
		us.closed = true
		if err == nil {
			p.recordInputLocked(t, payload)
			if output != "" {
				t.output, t.hasOutput = output, true
			} else {
				p.recordOutputLocked(t, payload)
			}
		}
		t.streams--
		closeRoot := t.ended && t.streams == 0
		p.mu.Unlock()

		us.span.SetAttributes(payloadAttributes(payload))
		if output != "" {
			us.span.SetOutput(output)
		}
		finishSpan(us.span, err)

		if closeRoot {
			p.closeTrace(t)
		}
	})
}
