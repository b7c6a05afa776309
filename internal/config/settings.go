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

// Package config loads tracing settings from the environment and from
// optional YAML files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
	"github.com/future-agi/traceAI-sub007/pkg/tracing/export"
)

// DefaultBaseURL is the collector used when FI_BASE_URL is unset.
const DefaultBaseURL = "https://api.futureagi.com"

// Settings holds everything needed to construct a tracer provider.
type Settings struct {
	BaseURL            string `envconfig:"FI_BASE_URL" default:"https://api.futureagi.com" yaml:"base_url"`
	StreamURL          string `envconfig:"FI_STREAM_URL" yaml:"stream_url"`
	APIKey             string `envconfig:"FI_API_KEY" yaml:"api_key"`
	SecretKey          string `envconfig:"FI_SECRET_KEY" yaml:"secret_key"`
	ProjectName        string `envconfig:"FI_PROJECT_NAME" yaml:"project_name"`
	ProjectVersionName string `envconfig:"FI_PROJECT_VERSION_NAME" yaml:"project_version_name"`
	SessionName        string `envconfig:"FI_SESSION_NAME" yaml:"session_name"`

	// Transport is one of immediate, streaming, otlp-grpc, otlp-http or console.
	Transport string `envconfig:"FI_TRANSPORT" default:"immediate" yaml:"transport"`

	// Batch selects the batching span processor.
	Batch   bool `envconfig:"FI_BATCH" default:"true" yaml:"batch"`
	Verbose bool `envconfig:"FI_VERBOSE" yaml:"verbose"`

	Redaction      redact.Config `yaml:"redaction"`
	BatchProcessor BatchSettings `yaml:"batch_processor"`
}

// BatchSettings mirrors the OTEL_BSP_* variables. Durations are milliseconds.
type BatchSettings struct {
	ScheduleDelay      int `envconfig:"OTEL_BSP_SCHEDULE_DELAY" default:"5000" yaml:"schedule_delay"`
	MaxQueueSize       int `envconfig:"OTEL_BSP_MAX_QUEUE_SIZE" default:"2048" yaml:"max_queue_size"`
	MaxExportBatchSize int `envconfig:"OTEL_BSP_MAX_EXPORT_BATCH_SIZE" default:"512" yaml:"max_export_batch_size"`
	ExportTimeout      int `envconfig:"OTEL_BSP_EXPORT_TIMEOUT" default:"30000" yaml:"export_timeout"`
}

// ScheduleDelayDuration returns ScheduleDelay as a time.Duration.
func (b BatchSettings) ScheduleDelayDuration() time.Duration {
	return time.Duration(b.ScheduleDelay) * time.Millisecond
}

// ExportTimeoutDuration returns ExportTimeout as a time.Duration.
func (b BatchSettings) ExportTimeoutDuration() time.Duration {
	return time.Duration(b.ExportTimeout) * time.Millisecond
}

// Load reads settings from the environment, applying defaults for unset
// variables.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, &errors.ConfigError{
			Key:    "env",
			Reason: "failed to process environment",
			Cause:  err,
		}
	}
	return &s, nil
}

// LoadFile reads settings from the environment and then overlays the YAML
// file at path. Keys present in the file win.
func LoadFile(path string) (*Settings, error) {
	s, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to read %s", path),
			Cause:  err,
		}
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, &errors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to parse %s", path),
			Cause:  err,
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings for values that cannot produce a working
// provider.
func (s *Settings) Validate() error {
	if _, err := export.ParseTransport(s.Transport); err != nil {
		return &errors.ConfigError{Key: "transport", Reason: err.Error()}
	}

	if err := validateURL("base_url", s.BaseURL, "http", "https"); err != nil {
		return err
	}
	if s.StreamURL != "" {
		if err := validateURL("stream_url", s.StreamURL, "ws", "wss"); err != nil {
			return err
		}
	}

	if _, err := redact.NewPolicy(s.Redaction); err != nil {
		return err
	}

	b := s.BatchProcessor
	switch {
	case b.ScheduleDelay <= 0:
		return &errors.ConfigError{Key: "schedule_delay", Reason: fmt.Sprintf("must be > 0, got %d", b.ScheduleDelay)}
	case b.MaxQueueSize <= 0:
		return &errors.ConfigError{Key: "max_queue_size", Reason: fmt.Sprintf("must be > 0, got %d", b.MaxQueueSize)}
	case b.MaxExportBatchSize <= 0:
		return &errors.ConfigError{Key: "max_export_batch_size", Reason: fmt.Sprintf("must be > 0, got %d", b.MaxExportBatchSize)}
	case b.MaxExportBatchSize > b.MaxQueueSize:
		return &errors.ConfigError{Key: "max_export_batch_size", Reason: "must not exceed max_queue_size"}
	case b.ExportTimeout <= 0:
		return &errors.ConfigError{Key: "export_timeout", Reason: fmt.Sprintf("must be > 0, got %d", b.ExportTimeout)}
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &errors.ConfigError{Key: key, Reason: "invalid URL", Cause: err}
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return &errors.ConfigError{Key: key, Reason: fmt.Sprintf("%q must use one of %v", raw, schemes)}
}
