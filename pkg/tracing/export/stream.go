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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/future-agi/traceAI-sub007/internal/log"
	"github.com/future-agi/traceAI-sub007/pkg/errors"
	"github.com/future-agi/traceAI-sub007/pkg/observability"
)

// StreamConfig configures the streaming transport.
type StreamConfig struct {
	// URL is the ws:// or wss:// collector endpoint.
	URL string

	ProjectName        string
	ProjectVersionName string
	SessionName        string

	APIKey    string
	SecretKey string
	Headers   map[string]string

	// DialTimeout bounds the websocket handshake. Default: 10s.
	DialTimeout time.Duration

	// WriteTimeout bounds each message write. Default: 10s.
	WriteTimeout time.Duration

	// RedialInterval is the minimum gap between connection attempts.
	// Default: 1s.
	RedialInterval time.Duration

	Logger *slog.Logger
}

// hello is the first message on every connection.
type hello struct {
	Type               string `json:"type"`
	ProjectName        string `json:"project_name"`
	ProjectVersionName string `json:"project_version_name,omitempty"`
	SessionName        string `json:"session_name,omitempty"`
}

// StreamTransport keeps one websocket open to the collector and writes one
// span record per message. The connection is dialed on first use; a failed
// write drops it so the next batch redials.
type StreamTransport struct {
	cfg     StreamConfig
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	header  http.Header
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ Transport = (*StreamTransport)(nil)

// NewStreamTransport validates cfg. No connection is made until Send.
func NewStreamTransport(cfg StreamConfig) (*StreamTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, &errors.ConfigError{
			Key:    "stream_url",
			Reason: fmt.Sprintf("invalid websocket endpoint %q", cfg.URL),
			Cause:  err,
		}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RedialInterval <= 0 {
		cfg.RedialInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set(HeaderAPIKey, cfg.APIKey)
	}
	if cfg.SecretKey != "" {
		header.Set(HeaderSecretKey, cfg.SecretKey)
	}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	return &StreamTransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.RedialInterval), 1),
		header:  header,
		logger:  log.WithComponent(logger, "stream_transport"),
	}, nil
}

// Send writes each span as its own text message.
func (t *StreamTransport) Send(ctx context.Context, spans []observability.Span) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &errors.TransportError{Transport: string(TransportStreaming), Message: "transport closed"}
	}
	if t.conn == nil {
		if err := t.dialLocked(ctx); err != nil {
			return err
		}
	}

	for _, span := range spans {
		msg, err := json.Marshal(span)
		if err != nil {
			t.logger.Warn("dropping unencodable span", "span_id", span.SpanID, log.Error(err))
			continue
		}
		if err := t.writeLocked(ctx, msg); err != nil {
			t.dropLocked()
			return &errors.TransportError{Transport: string(TransportStreaming), Message: "write failed", Cause: err}
		}
	}
	return nil
}

func (t *StreamTransport) writeLocked(ctx context.Context, msg []byte) error {
	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

func (t *StreamTransport) dialLocked(ctx context.Context) error {
	if !t.limiter.Allow() {
		return &errors.TransportError{Transport: string(TransportStreaming), Message: "reconnect throttled"}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, t.header)
	if err != nil {
		te := &errors.TransportError{Transport: string(TransportStreaming), Message: "dial failed", Cause: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return te
	}
	t.conn = conn

	greeting, _ := json.Marshal(hello{
		Type:               "hello",
		ProjectName:        t.cfg.ProjectName,
		ProjectVersionName: t.cfg.ProjectVersionName,
		SessionName:        t.cfg.SessionName,
	})
	if err := t.writeLocked(ctx, greeting); err != nil {
		t.dropLocked()
		return &errors.TransportError{Transport: string(TransportStreaming), Message: "hello failed", Cause: err}
	}

	t.logger.Debug("stream connected", "url", t.cfg.URL)
	go t.readLoop(conn)
	return nil
}

// readLoop drains control frames so pings and closes are handled, and
// forgets the connection once the peer goes away.
func (t *StreamTransport) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			conn.Close()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("stream closed by collector", log.Error(err))
			}
			return
		}
	}
}

func (t *StreamTransport) dropLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Close sends a close frame and releases the connection. Later Sends fail.
func (t *StreamTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	err := t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		deadline,
	)
	t.dropLocked()
	if err != nil && err != websocket.ErrCloseSent {
		return &errors.TransportError{Transport: string(TransportStreaming), Message: "close failed", Cause: err}
	}
	return nil
}
