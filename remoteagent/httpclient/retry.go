package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// retryConfig configures exponential backoff retries around the initial
// connect-and-submit request a remote call makes before its stream opens.
// Once the stream is open, frames are not retried — a partially consumed
// remote stream can't be safely replayed.
type retryConfig struct {
	maxAttempts       int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
}

// defaultRetryConfig: three attempts, 100ms initial backoff doubling up to
// 10s, with light jitter to avoid synchronized retries across concurrent
// tasks against one agent.
var defaultRetryConfig = retryConfig{
	maxAttempts:       3,
	initialBackoff:    100 * time.Millisecond,
	maxBackoff:        10 * time.Second,
	backoffMultiplier: 2.0,
	jitter:            0.1,
}

// httpStatusError reports a non-2xx response from the remote agent.
type httpStatusError struct {
	statusCode int
	status     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("remoteagent/httpclient: http %d: %s", e.statusCode, e.status)
}

// isRetryable reports whether err is worth retrying: request timeouts,
// transient DNS failures, and the handful of HTTP status codes that
// typically indicate a transient upstream condition rather than a
// permanent rejection of the request.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// retryWithBackoff runs fn, retrying with exponential backoff plus jitter
// while isRetryable(err) holds, up to cfg.maxAttempts.
func retryWithBackoff(ctx context.Context, cfg retryConfig, fn func(ctx context.Context) error) error {
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= cfg.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(cfg, attempt)):
		}
	}
	return fmt.Errorf("remoteagent/httpclient: exhausted %d attempts: %w", cfg.maxAttempts, lastErr)
}

func backoffFor(cfg retryConfig, attempt int) time.Duration {
	backoff := float64(cfg.initialBackoff) * math.Pow(cfg.backoffMultiplier, float64(attempt-1))
	if backoff > float64(cfg.maxBackoff) {
		backoff = float64(cfg.maxBackoff)
	}
	if cfg.jitter > 0 {
		backoff += backoff * cfg.jitter * (rand.Float64()*2 - 1) //nolint:gosec
	}
	return time.Duration(backoff)
}
