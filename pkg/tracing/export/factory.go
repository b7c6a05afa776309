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

package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
)

// TransportKind names an export transport.
type TransportKind string

const (
	TransportImmediate TransportKind = "immediate"
	TransportStreaming TransportKind = "streaming"
	TransportOTLPGRPC  TransportKind = "otlp-grpc"
	TransportOTLPHTTP  TransportKind = "otlp-http"
	TransportConsole   TransportKind = "console"
)

// TransportKinds lists every supported transport.
var TransportKinds = []TransportKind{
	TransportImmediate, TransportStreaming, TransportOTLPGRPC, TransportOTLPHTTP, TransportConsole,
}

// Collector routes, relative to the base URL.
const (
	TracePath  = "/tracer/observation-span/create_otel_span/"
	StreamPath = "/tracer/v1/stream"
)

// ParseTransport resolves s to a TransportKind. The empty string selects
// the immediate transport.
func ParseTransport(s string) (TransportKind, error) {
	if s == "" {
		return TransportImmediate, nil
	}
	normalized := TransportKind(strings.ReplaceAll(strings.ToLower(s), "_", "-"))
	for _, k := range TransportKinds {
		if normalized == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// Config describes the exporter to build.
type Config struct {
	Transport TransportKind

	// BaseURL is the collector root; transport routes are appended.
	BaseURL string

	// StreamURL overrides the websocket endpoint derived from BaseURL.
	StreamURL string

	ProjectName        string
	ProjectVersionName string
	SessionName        string

	APIKey    string
	SecretKey string
	Headers   map[string]string

	// TLS configures OTLP transports against https endpoints.
	TLS TLSConfigInput

	// Console receives output of the console transport. Default: stdout.
	Console io.Writer

	Logger   *slog.Logger
	Recorder Recorder
}

// New builds the span exporter selected by cfg.Transport.
func New(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []Option{WithRecorder(cfg.Recorder), WithLogger(cfg.Logger)}

	switch cfg.Transport {
	case TransportImmediate, "":
		endpoint, err := joinURL(cfg.BaseURL, TracePath)
		if err != nil {
			return nil, err
		}
		t, err := NewHTTPTransport(HTTPConfig{
			Endpoint:           endpoint,
			ProjectName:        cfg.ProjectName,
			ProjectVersionName: cfg.ProjectVersionName,
			SessionName:        cfg.SessionName,
			APIKey:             cfg.APIKey,
			SecretKey:          cfg.SecretKey,
			Headers:            cfg.Headers,
			Logger:             cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return NewSpanExporter(string(TransportImmediate), t, opts...), nil

	case TransportStreaming:
		streamURL := cfg.StreamURL
		if streamURL == "" {
			var err error
			if streamURL, err = StreamURLFromBase(cfg.BaseURL); err != nil {
				return nil, err
			}
		}
		t, err := NewStreamTransport(StreamConfig{
			URL:                streamURL,
			ProjectName:        cfg.ProjectName,
			ProjectVersionName: cfg.ProjectVersionName,
			SessionName:        cfg.SessionName,
			APIKey:             cfg.APIKey,
			SecretKey:          cfg.SecretKey,
			Headers:            cfg.Headers,
			Logger:             cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		return NewSpanExporter(string(TransportStreaming), t, opts...), nil

	case TransportOTLPGRPC, TransportOTLPHTTP:
		return newOTLP(ctx, cfg, opts)

	case TransportConsole:
		exp, err := NewConsoleExporter(ConsoleConfig{Writer: cfg.Console, PrettyPrint: true})
		if err != nil {
			return nil, err
		}
		return Metered(string(TransportConsole), exp, opts...), nil

	default:
		return nil, &errors.ConfigError{Key: "transport", Reason: fmt.Sprintf("unknown transport %q", cfg.Transport)}
	}
}

func newOTLP(ctx context.Context, cfg Config, opts []Option) (sdktrace.SpanExporter, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, &errors.ConfigError{Key: "endpoint", Reason: fmt.Sprintf("invalid OTLP endpoint %q", cfg.BaseURL), Cause: err}
	}
	insecure := u.Scheme == "http"

	tlsInput := cfg.TLS
	if !insecure && !tlsInput.Enabled {
		tlsInput = TLSConfigInput{Enabled: true, VerifyCertificate: true}
	}
	tlsConfig, err := BuildTLSConfig(tlsInput)
	if err != nil {
		return nil, &errors.ConfigError{Key: "tls", Reason: "failed to build TLS config", Cause: err}
	}

	headers := make(map[string]string, len(cfg.Headers)+2)
	if cfg.APIKey != "" {
		headers[HeaderAPIKey] = cfg.APIKey
	}
	if cfg.SecretKey != "" {
		headers[HeaderSecretKey] = cfg.SecretKey
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var exp sdktrace.SpanExporter
	if cfg.Transport == TransportOTLPGRPC {
		exp, err = NewOTLPExporter(ctx, OTLPConfig{
			Endpoint:  u.Host,
			Insecure:  insecure,
			TLSConfig: tlsConfig,
			Headers:   headers,
		})
	} else {
		path := u.Path
		if path == "" || path == "/" {
			path = ""
		}
		exp, err = NewOTLPHTTPExporter(ctx, OTLPHTTPConfig{
			Endpoint:  u.Host,
			URLPath:   path,
			Insecure:  insecure,
			TLSConfig: tlsConfig,
			Headers:   headers,
		})
	}
	if err != nil {
		return nil, err
	}
	return Metered(string(cfg.Transport), exp, opts...), nil
}

// StreamURLFromBase derives the websocket endpoint from an http(s) base URL.
func StreamURLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", &errors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("invalid base URL %q", base), Cause: err}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		return u.String(), nil
	default:
		return "", &errors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	u.Path = strings.TrimRight(u.Path, "/") + StreamPath
	return u.String(), nil
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", &errors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("invalid base URL %q", base), Cause: err}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
