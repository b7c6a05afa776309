// Package httpclient builds the outbound HTTP client used by the span
// exporter's immediate transport.
//
// Clients are composed from two round-trip layers:
//   - a logging layer that sets User-Agent, stamps every request with an
//     X-Request-ID and logs the sanitized URL, status and duration
//   - a retry layer with exponential backoff and jitter for transient
//     failures (5xx, 408, 429 and connection errors)
//
// Retries are bounded by RetryAttempts and by the request context, so a
// failing collector never stalls the caller for longer than Timeout.
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Logger = logger
//	client, err := httpclient.New(cfg)
//
// Writes are retried only when the caller sets X-Request-ID up front, which
// the collector uses to drop duplicates, or when AllowNonIdempotentRetry is
// on. POST bodies are replayed on retry through Request.GetBody, which
// http.NewRequest populates for bytes.Reader and bytes.Buffer bodies.
package httpclient
