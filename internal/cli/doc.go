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


/*
Package cli provides the root command and shared flags for the traceai CLI.

The command tree is:

	traceai
	├── replay     Replay a recorded agent event log through the tracer
	└── version    Show version

Global flags (--verbose, --json, --config) are read by subcommands through
the accessors in this package. Errors carrying an exit code are mapped to
the process exit status by HandleExitError.
*/
package cli
