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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}

	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}

	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}

	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:     "defaults when no env vars",
			envVars:  map[string]string{},
			expected: &Config{Level: "info", Format: FormatJSON},
		},
		{
			name:     "LOG_LEVEL=DEBUG (case insensitive)",
			envVars:  map[string]string{"LOG_LEVEL": "DEBUG"},
			expected: &Config{Level: "debug", Format: FormatJSON},
		},
		{
			name:     "TRACEAI_LOG_LEVEL wins over LOG_LEVEL",
			envVars:  map[string]string{"LOG_LEVEL": "error", "TRACEAI_LOG_LEVEL": "trace"},
			expected: &Config{Level: "trace", Format: FormatJSON},
		},
		{
			name:     "TRACEAI_DEBUG enables debug and source",
			envVars:  map[string]string{"TRACEAI_DEBUG": "1", "TRACEAI_LOG_LEVEL": "error"},
			expected: &Config{Level: "debug", Format: FormatJSON, AddSource: true},
		},
		{
			name:     "LOG_FORMAT=text",
			envVars:  map[string]string{"LOG_FORMAT": "text"},
			expected: &Config{Level: "info", Format: FormatText},
		},
		{
			name:     "LOG_SOURCE=1",
			envVars:  map[string]string{"LOG_SOURCE": "1"},
			expected: &Config{Level: "info", Format: FormatJSON, AddSource: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"TRACEAI_DEBUG", "TRACEAI_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.expected.Level {
				t.Errorf("expected level %q, got %q", tt.expected.Level, cfg.Level)
			}
			if cfg.Format != tt.expected.Format {
				t.Errorf("expected format %q, got %q", tt.expected.Format, cfg.Format)
			}
			if cfg.AddSource != tt.expected.AddSource {
				t.Errorf("expected AddSource %v, got %v", tt.expected.AddSource, cfg.AddSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}

	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg field to be 'test message', got: %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("expected key field to be 'value', got: %v", logEntry["key"])
	}
	if logEntry["level"] != "INFO" {
		t.Errorf("expected level field to be 'INFO', got: %v", logEntry["level"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "msg=\"test message\"") {
		t.Errorf("expected text output, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNilConfig(t *testing.T) {
	if logger := New(nil); logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestWithComponentAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithTrace(WithComponent(logger, "agenttrace"), "trace_1").Info("closed", Error(errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry[ComponentKey] != "agenttrace" {
		t.Errorf("component = %v", entry[ComponentKey])
	}
	if entry[TraceIDKey] != "trace_1" {
		t.Errorf("trace_id = %v", entry[TraceIDKey])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer

	Trace(New(&Config{Level: "debug", Output: &buf}), "chunk")
	if buf.Len() != 0 {
		t.Errorf("trace message should be filtered at debug level, got %s", buf.String())
	}

	Trace(New(&Config{Level: "trace", Output: &buf}), "chunk", slog.Int("index", 3))
	if !strings.Contains(buf.String(), "chunk") {
		t.Errorf("trace message should be written at trace level, got %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled for any level")
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sk-abcdef123456", "...3456"},
		{"abcd", "[REDACTED]"},
		{"", "[REDACTED]"},
	}

	for _, tt := range tests {
		if got := SanitizeAPIKey(tt.input); got != tt.want {
			t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
