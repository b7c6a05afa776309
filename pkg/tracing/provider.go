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

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/future-agi/traceAI-sub007/internal/config"
	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/instrument"
	"github.com/future-agi/traceAI-sub007/pkg/redact"
	"github.com/future-agi/traceAI-sub007/pkg/tracing/export"
)

// Provider owns the span pipeline: ID generation, redaction policy, span
// processor, exporter and metrics. Create one with Register and call
// Shutdown before the process exits so queued spans are delivered.
type Provider struct {
	settings config.Settings

	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
	metrics  *MetricsCollector

	policy          *redact.Policy
	ids             *IDGenerator
	logger          *slog.Logger
	instrumentation *instrument.State

	shutdownOnce sync.Once
}

// BatchConfig tunes the batching span processor.
type BatchConfig struct {
	ScheduleDelay      time.Duration
	MaxQueueSize       int
	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

type registerOptions struct {
	settings *config.Settings
	headers  map[string]string
	tls      export.TLSConfigInput
	console  io.Writer
	exporter sdktrace.SpanExporter
	logger   *slog.Logger
}

// Option configures Register. Options are applied over the environment.
type Option func(*registerOptions)

// WithSettings replaces the environment settings and everything set by
// earlier options, including Batch. Options listed after it still apply on
// top, so pass WithSettings first.
func WithSettings(s config.Settings) Option {
	return func(o *registerOptions) { *o.settings = s }
}

// WithProjectName sets the project spans are filed under.
func WithProjectName(name string) Option {
	return func(o *registerOptions) { o.settings.ProjectName = name }
}

// WithProjectVersionName sets the project version label.
func WithProjectVersionName(name string) Option {
	return func(o *registerOptions) { o.settings.ProjectVersionName = name }
}

// WithSessionName sets the session label sent with every batch.
func WithSessionName(name string) Option {
	return func(o *registerOptions) { o.settings.SessionName = name }
}

// WithEndpoint sets the collector base URL.
func WithEndpoint(baseURL string) Option {
	return func(o *registerOptions) { o.settings.BaseURL = baseURL }
}

// WithStreamURL overrides the websocket endpoint of the streaming transport.
func WithStreamURL(streamURL string) Option {
	return func(o *registerOptions) { o.settings.StreamURL = streamURL }
}

// WithCredentials sets the collector API and secret keys.
func WithCredentials(apiKey, secretKey string) Option {
	return func(o *registerOptions) {
		o.settings.APIKey = apiKey
		o.settings.SecretKey = secretKey
	}
}

// WithTransport selects immediate, streaming, otlp-grpc, otlp-http or console.
func WithTransport(transport string) Option {
	return func(o *registerOptions) { o.settings.Transport = transport }
}

// WithBatch selects the batching processor (true) or the simple processor
// that exports every span as it ends (false).
func WithBatch(batch bool) Option {
	return func(o *registerOptions) { o.settings.Batch = batch }
}

// WithBatchConfig tunes the batching processor.
func WithBatchConfig(cfg BatchConfig) Option {
	return func(o *registerOptions) {
		b := &o.settings.BatchProcessor
		b.ScheduleDelay = int(cfg.ScheduleDelay.Milliseconds())
		b.MaxQueueSize = cfg.MaxQueueSize
		b.MaxExportBatchSize = cfg.MaxExportBatchSize
		b.ExportTimeout = int(cfg.ExportTimeout.Milliseconds())
	}
}

// WithHeaders adds headers to every collector request.
func WithHeaders(headers map[string]string) Option {
	return func(o *registerOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithTLS configures TLS for the OTLP transports.
func WithTLS(cfg export.TLSConfigInput) Option {
	return func(o *registerOptions) { o.tls = cfg }
}

// WithConsoleWriter sets the destination of the console transport.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *registerOptions) { o.console = w }
}

// WithVerbose logs at debug level.
func WithVerbose(verbose bool) Option {
	return func(o *registerOptions) { o.settings.Verbose = verbose }
}

// WithRedaction sets the redaction configuration.
func WithRedaction(cfg redact.Config) Option {
	return func(o *registerOptions) { o.settings.Redaction = cfg }
}

// WithExporter bypasses transport selection and sends spans to exp.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *registerOptions) { o.exporter = exp }
}

// WithLogger sets the logger used by the provider and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(o *registerOptions) { o.logger = logger }
}

// Register builds a Provider from the environment and opts, and installs
// it as the global OpenTelemetry tracer provider. Invalid settings are
// reported as *errors.ConfigError before anything is started.
func Register(opts ...Option) (*Provider, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	o := &registerOptions{settings: settings}
	for _, opt := range opts {
		opt(o)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logCfg := log.FromEnv()
		if settings.Verbose && logCfg.Level != "trace" {
			logCfg.Level = "debug"
		}
		logger = log.New(logCfg)
	}
	logger = log.WithComponent(logger, "tracing")

	policy, err := redact.NewPolicy(settings.Redaction)
	if err != nil {
		return nil, err
	}

	res, err := newResource(settings)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	metrics, err := NewMetricsCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	exporter, err := newExporter(settings, o, metrics, logger)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}

	ids := NewIDGenerator()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithIDGenerator(ids),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(newProcessor(settings, exporter)),
	)

	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("opentelemetry error", log.Error(err))
	}))

	logger.Debug("tracer provider registered",
		"project", settings.ProjectName,
		log.TransportKey, settings.Transport,
		"batch", settings.Batch,
		"api_key", log.SanitizeAPIKey(settings.APIKey),
	)

	return &Provider{
		settings:        *settings,
		tp:              tp,
		mp:              mp,
		registry:        registry,
		metrics:         metrics,
		policy:          policy,
		ids:             ids,
		logger:          logger,
		instrumentation: instrument.NewState(),
	}, nil
}

func newResource(s *config.Settings) (*resource.Resource, error) {
	service := s.ProjectName
	if service == "" {
		service = "traceai"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(service)}
	if s.ProjectVersionName != "" {
		attrs = append(attrs, semconv.ServiceVersion(s.ProjectVersionName))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newExporter(s *config.Settings, o *registerOptions, metrics *MetricsCollector, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	if o.exporter != nil {
		return export.Metered("custom", o.exporter, export.WithRecorder(metrics), export.WithLogger(logger)), nil
	}
	kind, err := export.ParseTransport(s.Transport)
	if err != nil {
		return nil, err
	}
	return export.New(context.Background(), export.Config{
		Transport:          kind,
		BaseURL:            s.BaseURL,
		StreamURL:          s.StreamURL,
		ProjectName:        s.ProjectName,
		ProjectVersionName: s.ProjectVersionName,
		SessionName:        s.SessionName,
		APIKey:             s.APIKey,
		SecretKey:          s.SecretKey,
		Headers:            o.headers,
		TLS:                o.tls,
		Console:            o.console,
		Logger:             logger,
		Recorder:           metrics,
	})
}

func newProcessor(s *config.Settings, exporter sdktrace.SpanExporter) sdktrace.SpanProcessor {
	if !s.Batch {
		return sdktrace.NewSimpleSpanProcessor(exporter)
	}
	b := s.BatchProcessor
	return sdktrace.NewBatchSpanProcessor(exporter,
		sdktrace.WithBatchTimeout(b.ScheduleDelayDuration()),
		sdktrace.WithMaxQueueSize(b.MaxQueueSize),
		sdktrace.WithMaxExportBatchSize(b.MaxExportBatchSize),
		sdktrace.WithExportTimeout(b.ExportTimeoutDuration()),
	)
}

// Tracer returns a tracer for the named instrumentation scope.
func (p *Provider) Tracer(name string) *Tracer {
	t := NewTracer(p.tp.Tracer(name), p.policy, p.logger)
	t.metrics = p.metrics
	return t
}

// ForceFlush exports every span that has ended so far.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}

// Shutdown drains the span processor, then releases the exporter's
// transport and the meter provider. Calls after the first return nil.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		err = errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
		if err != nil {
			p.logger.Warn("tracer provider shutdown incomplete", log.Error(err))
		}
	})
	return err
}

// MetricsHandler serves the provider's metrics in Prometheus text format.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Metrics returns the provider's metrics collector.
func (p *Provider) Metrics() *MetricsCollector {
	return p.metrics
}

// IDGenerator returns the generator used for trace and span ids.
func (p *Provider) IDGenerator() *IDGenerator {
	return p.ids
}

// Policy returns the resolved redaction policy.
func (p *Provider) Policy() *redact.Policy {
	return p.policy
}

// Instrumentation tracks which wrappers are installed against this provider.
func (p *Provider) Instrumentation() *instrument.State {
	return p.instrumentation
}

// Logger returns the provider's logger.
func (p *Provider) Logger() *slog.Logger {
	return p.logger
}

// Settings returns the resolved settings.
func (p *Provider) Settings() config.Settings {
	return p.settings
}
