package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	return cfg
}

func TestRetryTransport_RetriesTransientStatuses(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusTooManyRequests, http.StatusRequestTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&attempts, 1) < 3 {
					w.WriteHeader(status)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())
			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			require.NoError(t, err)

			resp, err := transport.RoundTrip(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
		})
	}
}

func TestRetryTransport_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestRetryTransport_ExhaustedReturnsReadableResponse(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("collector overloaded"))
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.RetryAttempts = 2
	transport := newRetryTransport(http.DefaultTransport, cfg)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "collector overloaded", string(body))
}

func TestRetryTransport_IdempotencyGate(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		keyed    bool
		allow    bool
		attempts int32
	}{
		{"get", http.MethodGet, false, false, 3},
		{"head", http.MethodHead, false, false, 3},
		{"unkeyed post", http.MethodPost, false, false, 1},
		{"unkeyed put", http.MethodPut, false, false, 1},
		{"keyed post", http.MethodPost, true, false, 3},
		{"opted-in post", http.MethodPost, false, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			cfg := fastRetryConfig()
			cfg.AllowNonIdempotentRetry = tt.allow
			transport := newRetryTransport(http.DefaultTransport, cfg)

			req, err := http.NewRequest(tt.method, server.URL, nil)
			require.NoError(t, err)
			if tt.keyed {
				req.Header.Set(RequestIDHeader, "req-1")
			}

			resp, err := transport.RoundTrip(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.attempts, atomic.LoadInt32(&attempts))
		})
	}
}

func TestRetryTransport_ReplaysPostBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())

	req, err := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader([]byte(`{"spans":[]}`)))
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "batch-7")

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"spans":[]}`, `{"spans":[]}`}, bodies)
}

func TestRetryTransport_RetryAfterCapsDelay(t *testing.T) {
	var (
		attempts int32
		mu       sync.Mutex
		times    []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	transport := newRetryTransport(http.DefaultTransport, cfg)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 2)
	gap := times[1].Sub(times[0])
	assert.GreaterOrEqual(t, gap, 90*time.Millisecond)
	assert.Less(t, gap, time.Second, "the smaller of backoff and Retry-After is used")
}

func TestRetryTransport_ContextCancellation(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.LessOrEqual(t, atomic.LoadInt32(&attempts), int32(1))
}

func TestCalculateBackoff(t *testing.T) {
	transport := &retryTransport{
		baseBackoff: 100 * time.Millisecond,
		maxBackoff:  1 * time.Second,
	}

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 120 * time.Millisecond},
		{2, 200 * time.Millisecond, 240 * time.Millisecond},
		{3, 400 * time.Millisecond, 480 * time.Millisecond},
		{5, 1 * time.Second, 1200 * time.Millisecond},
	}

	for _, tt := range tests {
		got := transport.calculateBackoff(tt.attempt)
		assert.GreaterOrEqual(t, got, tt.min, "attempt %d", tt.attempt)
		assert.LessOrEqual(t, got, tt.max, "attempt %d", tt.attempt)
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, time.Duration(0), retryAfter("-4"))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
	assert.Equal(t, time.Duration(0), retryAfter(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)))

	future := retryAfter(time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat))
	assert.Greater(t, future, 8*time.Second)
	assert.LessOrEqual(t, future, 10*time.Second)
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(io.ErrUnexpectedEOF))
	assert.True(t, transient(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}))
	assert.True(t, transient(&net.DNSError{Err: "timeout", IsTimeout: true}))
	assert.False(t, transient(&net.DNSError{Err: "no such host", IsNotFound: true}))
	assert.False(t, transient(context.Canceled))
	assert.False(t, transient(errors.New("tls: bad certificate")))
}
