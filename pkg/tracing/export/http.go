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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/httpclient"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// Auth header names understood by the collector.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderSecretKey = "X-Secret-Key"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// HTTPConfig configures the immediate transport.
type HTTPConfig struct {
	// Endpoint is the full URL spans are POSTed to.
	Endpoint string

	ProjectName        string
	ProjectVersionName string
	SessionName        string

	APIKey    string
	SecretKey string

	// Headers are added to every request after the auth headers.
	Headers map[string]string

	// Client overrides the default retrying client.
	Client *http.Client

	Logger *slog.Logger
}

// envelope is the request body of one batch.
type envelope struct {
	ProjectName        string               `json:"project_name"`
	ProjectVersionName string               `json:"project_version_name,omitempty"`
	SessionName        string               `json:"session_name,omitempty"`
	Spans              []observability.Span `json:"spans"`
}

// HTTPTransport sends each batch as one gzip-compressed JSON POST.
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport validates cfg and builds the transport.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &errors.ConfigError{
			Key:    "endpoint",
			Reason: fmt.Sprintf("invalid HTTP endpoint %q", cfg.Endpoint),
			Cause:  err,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	client := cfg.Client
	if client == nil {
		hc := httpclient.DefaultConfig()
		hc.Logger = cfg.Logger
		client, err = httpclient.New(hc)
		if err != nil {
			return nil, err
		}
	}
	return &HTTPTransport{cfg: cfg, client: client}, nil
}

// Send POSTs spans to the endpoint.
func (t *HTTPTransport) Send(ctx context.Context, spans []observability.Span) error {
	body, err := t.encode(spans)
	if err != nil {
		return &errors.TransportError{Transport: string(TransportImmediate), Message: "encode batch", Cause: err}
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &errors.TransportError{Transport: string(TransportImmediate), Message: "build request", RequestID: requestID, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set(httpclient.RequestIDHeader, requestID)
	if t.cfg.APIKey != "" {
		req.Header.Set(HeaderAPIKey, t.cfg.APIKey)
	}
	if t.cfg.SecretKey != "" {
		req.Header.Set(HeaderSecretKey, t.cfg.SecretKey)
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &errors.TransportError{Transport: string(TransportImmediate), Message: "request failed", RequestID: requestID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &errors.TransportError{
			Transport:  string(TransportImmediate),
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(snippet)),
			RequestID:  requestID,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *HTTPTransport) encode(spans []observability.Span) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	err := json.NewEncoder(zw).Encode(envelope{
		ProjectName:        t.cfg.ProjectName,
		ProjectVersionName: t.cfg.ProjectVersionName,
		SessionName:        t.cfg.SessionName,
		Spans:              spans,
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close drops idle keep-alive connections.
func (t *HTTPTransport) Close(ctx context.Context) error {
	t.client.CloseIdleConnections()
	return nil
}
