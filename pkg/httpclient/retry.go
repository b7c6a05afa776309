package httpclient

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// retryTransport resends a request when the collector answers with a
// transient status or the connection fails before a response arrives.
//
// Reads are always eligible. Writes are eligible when they carry a
// RequestIDHeader, since the collector drops duplicates by that key, or when
// the config opts in with AllowNonIdempotentRetry.
type retryTransport struct {
	base        http.RoundTripper
	attempts    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	anyMethod   bool
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:        base,
		attempts:    cfg.RetryAttempts + 1,
		baseBackoff: cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
		anyMethod:   cfg.AllowNonIdempotentRetry,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.eligible(req) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	var wait time.Duration
	for n := 1; ; n++ {
		if n > 1 {
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			if err := rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := t.base.RoundTrip(req)
		last := n >= t.attempts
		switch {
		case err != nil:
			if last || !transient(err) {
				return nil, err
			}
			wait = t.calculateBackoff(n)
		case !retryableStatus(resp.StatusCode) || last:
			return resp, nil
		default:
			wait = t.calculateBackoff(n)
			if hint := retryAfter(resp.Header.Get("Retry-After")); hint > 0 && hint < wait {
				wait = hint
			}
			drain(resp)
		}
	}
}

// eligible reports whether req may be sent more than once.
func (t *retryTransport) eligible(req *http.Request) bool {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return t.anyMethod || req.Header.Get(RequestIDHeader) != ""
}

// calculateBackoff doubles baseBackoff per attempt up to maxBackoff and
// adds up to 20% jitter.
func (t *retryTransport) calculateBackoff(attempt int) time.Duration {
	d := t.baseBackoff
	for i := 1; i < attempt && d < t.maxBackoff; i++ {
		d *= 2
	}
	if d > t.maxBackoff {
		d = t.maxBackoff
	}
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// transient classifies transport errors worth another attempt.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
