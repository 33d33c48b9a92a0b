package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/oguzhankir/ai-gateway/gwerrors"
)

// transientStatus reports whether an HTTP status code from a provider is
// worth retrying (5xx and 429), per the connector retry policy.
func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// WithRetry runs fn up to maxRetries+1 times, backing off
// delay·2^attempt between transient failures, and wraps any error that
// survives every attempt (or is non-transient) into a *gwerrors.ProviderError.
func WithRetry(ctx context.Context, providerName string, maxRetries int, delay time.Duration, fn func() (*CompletionResult, int, error)) (*CompletionResult, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, status, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		lastStatus = status

		if !transientStatus(status) {
			break
		}
		if attempt == maxRetries {
			break
		}

		backoff := delay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, &gwerrors.ProviderError{Provider: providerName, Status: lastStatus, Message: lastErr.Error()}
}

// classifyHTTPErr maps a transport-level error (not an HTTP status) to a
// status code placeholder used only for the transient/non-transient
// decision in WithRetry.
func classifyHTTPErr(err error) int {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
