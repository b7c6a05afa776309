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


// Package replay implements `traceai replay`, which feeds a recorded agent
// event log through the trace processor and exports the resulting spans.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/future-agi/traceAI-sub007/internal/cli"
	"github.com/future-agi/traceAI-sub007/internal/config"
	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/agenttrace"
	"github.com/future-agi/traceAI-sub007/pkg/tracing"
)

// Summary reports what a replay did.
type Summary struct {
	File      string   `json:"file"`
	Events    int      `json:"events"`
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	Traces    int      `json:"traces"`
	Transport string   `json:"transport"`
	Errors    []string `json:"errors,omitempty"`
}

type flags struct {
	transport   string
	endpoint    string
	project     string
	sessionName string
	noBatch     bool
	strict      bool
}

// NewCommand creates the replay command.
func NewCommand() *cobra.Command {
	return newCommand()
}

// newCommand accepts extra provider options so tests can capture spans.
func newCommand(extra ...tracing.Option) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay a recorded agent event log",
		Long: `Replay reads JSON event objects (trace_start, unit_start, unit_end,
trace_end) from a file, or from stdin when the path is "-", applies them to
a trace processor and exports the resulting spans with the configured
transport.

Events that reference unknown traces or units are reported and skipped.
With --strict the first such event aborts the replay.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], f, extra)
		},
	}

	cmd.Flags().StringVar(&f.transport, "transport", "", "Override the transport (immediate, streaming, otlp-grpc, otlp-http, console)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Override the collector base URL")
	cmd.Flags().StringVar(&f.project, "project", "", "Override the project name")
	cmd.Flags().StringVar(&f.sessionName, "session-name", "", "Override the session name")
	cmd.Flags().BoolVar(&f.noBatch, "no-batch", false, "Export each span as it ends")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Stop at the first event that fails to apply")

	return cmd
}

func run(cmd *cobra.Command, path string, f flags, extra []tracing.Option) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	settings, err := config.Resolve(cli.ConfigPath())
	if err != nil {
		return cli.NewConfigError("failed to load settings", err)
	}

	events, err := readEvents(path, cmd.InOrStdin())
	if err != nil {
		return cli.NewInputError("failed to read events", err)
	}

	opts := []tracing.Option{
		tracing.WithSettings(*settings),
		tracing.WithConsoleWriter(cmd.OutOrStdout()),
	}
	if f.transport != "" {
		opts = append(opts, tracing.WithTransport(f.transport))
	}
	if f.endpoint != "" {
		opts = append(opts, tracing.WithEndpoint(f.endpoint))
	}
	if f.project != "" {
		opts = append(opts, tracing.WithProjectName(f.project))
	}
	if f.sessionName != "" {
		opts = append(opts, tracing.WithSessionName(f.sessionName))
	}
	if f.noBatch {
		opts = append(opts, tracing.WithBatch(false))
	}
	if cli.Verbose() {
		opts = append(opts, tracing.WithVerbose(true))
	}
	opts = append(opts, extra...)

	provider, err := tracing.Register(opts...)
	if err != nil {
		return cli.NewConfigError("failed to configure tracer", err)
	}
	logger := log.WithComponent(provider.Logger(), "replay")

	processor := agenttrace.NewProcessor(provider.Tracer("traceai.replay"), agenttrace.WithLogger(provider.Logger()))

	summary := Summary{File: path, Events: len(events), Transport: provider.Settings().Transport}
	var applyErr error
	for i, ev := range events {
		if ev.Kind == agenttrace.EventTraceStart {
			summary.Traces++
		}
		if err := agenttrace.Apply(ctx, processor, ev); err != nil {
			summary.Failed++
			msg := fmt.Sprintf("event %d (%s): %v", i, ev.Kind, err)
			summary.Errors = append(summary.Errors, msg)
			logger.Warn("event not applied", "index", i, "event", ev.Kind, log.Error(err))
			if f.strict {
				applyErr = fmt.Errorf("event %d: %w", i, err)
				break
			}
			continue
		}
		summary.Applied++
	}

	shutdownErr := errors.Join(processor.Shutdown(ctx), provider.Shutdown(ctx))
	if shutdownErr != nil {
		logger.Warn("shutdown incomplete", log.Error(shutdownErr))
	}

	if err := writeSummary(cmd.ErrOrStderr(), summary); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}
	if summary.Failed > 0 {
		return &cli.ExitError{
			Code:    cli.ExitFailed,
			Message: fmt.Sprintf("%d of %d events failed", summary.Failed, summary.Events),
			Cause:   shutdownErr,
		}
	}
	return shutdownErr
}

func readEvents(path string, stdin io.Reader) ([]agenttrace.Event, error) {
	if path == "-" {
		return agenttrace.DecodeEvents(stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return agenttrace.DecodeEvents(file)
}

func writeSummary(w io.Writer, s Summary) error {
	if cli.JSON() {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "Replayed %s via %s\n", s.File, s.Transport)
	fmt.Fprintf(w, "  traces:  %d\n", s.Traces)
	fmt.Fprintf(w, "  events:  %d applied, %d failed\n", s.Applied, s.Failed)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	return nil
}
