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


package cli

import (
	"github.com/spf13/cobra"
)

// Global flag values, set by the root command.
var (
	verboseFlag bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information.
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// Verbose reports whether --verbose was given.
func Verbose() bool {
	return verboseFlag
}

// JSON reports whether --json was given.
func JSON() bool {
	return jsonFlag
}

// ConfigPath returns the --config value.
func ConfigPath() string {
	return configFlag
}

// NewRootCommand creates the root Cobra command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traceai",
		Short: "traceai - tracing tools for LLM applications",
		Long: `traceai replays recorded agent runs through the tracing pipeline and
exports the resulting spans to a collector, an OTLP endpoint or the console.

Settings come from FI_* and OTEL_BSP_* environment variables, overlaid by
the YAML file given with --config (default: ~/.config/traceai/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ~/.config/traceai/config.yaml)")

	return cmd
}
