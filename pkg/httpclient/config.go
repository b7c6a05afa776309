package httpclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/future-agi/traceAI-sub007/pkg/errors"
)

// DefaultUserAgent identifies the exporter to the collector.
const DefaultUserAgent = "traceai-go/1.0"

// Config configures the HTTP client with timeout, retry, and logging settings.
type Config struct {
	// Timeout is the total request timeout (includes retries).
	// Default: 10s. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts (0 = no retries).
	// Default: 2. Must be >= 0.
	RetryAttempts int

	// RetryBackoff is the initial backoff delay before first retry.
	// Default: 200ms. Must be > 0 if RetryAttempts > 0.
	RetryBackoff time.Duration

	// MaxBackoff is the maximum backoff delay cap.
	// Default: 2s. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value. Required.
	UserAgent string

	// AllowNonIdempotentRetry retries writes that carry no X-Request-ID.
	// Writes that set the header before the request is sent are always
	// eligible.
	AllowNonIdempotentRetry bool

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config sized for span export: short timeouts and
// few retries, since tracing must not hold up the host application.
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		MaxBackoff:    2 * time.Second,
		UserAgent:     DefaultUserAgent,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return &errors.ConfigError{Key: "timeout", Reason: fmt.Sprintf("must be > 0, got %v", c.Timeout)}
	}

	if c.RetryAttempts < 0 {
		return &errors.ConfigError{Key: "retry_attempts", Reason: fmt.Sprintf("must be >= 0, got %d", c.RetryAttempts)}
	}

	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return &errors.ConfigError{Key: "retry_backoff", Reason: fmt.Sprintf("must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)}
		}
		if c.MaxBackoff < c.RetryBackoff {
			return &errors.ConfigError{Key: "max_backoff", Reason: fmt.Sprintf("%v must be >= retry_backoff %v", c.MaxBackoff, c.RetryBackoff)}
		}
	}

	if c.UserAgent == "" {
		return &errors.ConfigError{Key: "user_agent", Reason: "required"}
	}
	return nil
}
