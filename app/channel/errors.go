package channel

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ValidationError: content or media violates a channel's static limits.
// Never retried; surfaced verbatim to the caller.
type ValidationError struct {
	Channel string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Channel, strings.Join(e.Errors, "; "))
}

// AuthError: credential missing, expired, or refresh failed. Reauth marks
// failures that require a full reconnect rather than a retry.
type AuthError struct {
	Channel string
	Reason  string
	Reauth  bool
}

func (e *AuthError) Error() string {
	if e.Reauth {
		return fmt.Sprintf("%s: %s (reauthentication required)", e.Channel, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Channel, e.Reason)
}

// TransientError: network, rate-limit, or 5xx failure. Eligible for
// bounded retry with backoff.
type TransientError struct {
	Channel    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("%s: transient failure", e.Channel)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ConfigError: channel not registered, target not specified, or similar
// setup problem. Fails fast, no retry.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// IsReauthRequired reports whether err carries the reconnect marker the
// UI uses to prompt for a fresh channel connection.
func IsReauthRequired(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reauth
}

// IsTransient reports whether err is eligible for retry with backoff.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// classifyHTTPError maps a non-2xx response status to the error taxonomy.
// 401/403 are auth failures, 429 and 5xx are transient, other 4xx are
// terminal.
func classifyHTTPError(channel string, status int, retryAfter string, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Channel: channel, Reason: fmt.Sprintf("HTTP %d: %s", status, body)}
	case status == http.StatusTooManyRequests:
		return &TransientError{Channel: channel, StatusCode: status, RetryAfter: parseRetryAfter(retryAfter)}
	case status >= 500:
		return &TransientError{Channel: channel, StatusCode: status, Err: fmt.Errorf("%s", body)}
	default:
		return fmt.Errorf("%s: HTTP %d: %s", channel, status, body)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
