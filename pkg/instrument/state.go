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

// Package instrument holds the pieces shared by per-vendor wrappers:
// instrumentation state, payload extractors and a traced chat client.
package instrument

import (
	"slices"
	"sync"
)

// State records which libraries have been instrumented. It is owned by
// the tracer provider and handed to each wrapper so that a library is
// never patched twice.
type State struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewState returns an empty State.
func NewState() *State {
	return &State{active: make(map[string]struct{})}
}

// Instrument marks name as instrumented. It returns false when name was
// already instrumented, in which case the caller must not patch again.
func (s *State) Instrument(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[name]; ok {
		return false
	}
	s.active[name] = struct{}{}
	return true
}

// Uninstrument clears name. It returns false when name was not instrumented.
func (s *State) Uninstrument(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[name]; !ok {
		return false
	}
	delete(s.active, name)
	return true
}

// IsInstrumented reports whether name is currently instrumented.
func (s *State) IsInstrumented(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[name]
	return ok
}

// Instrumented returns the instrumented names in sorted order.
func (s *State) Instrumented() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
