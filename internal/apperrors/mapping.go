package apperrors

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// MapHTTPError builds an APIError from an upstream non-2xx response,
// pulling a human-readable message out of whichever envelope shape the
// upstream used (OpenAI, Gemini or Claude native all nest it
// differently) before falling back to a generic status-line message.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	message := extractUpstreamMessage(upstreamBody)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	code := "upstream_error"
	errType := "api_error"
	switch statusCode {
	case http.StatusBadRequest:
		code, errType = "invalid_request", "invalid_request_error"
	case http.StatusUnauthorized:
		code, errType = "invalid_api_key", "authentication_error"
	case http.StatusForbidden:
		code, errType = "forbidden", "permission_error"
	case http.StatusNotFound:
		code, errType = "not_found", "not_found_error"
	case http.StatusTooManyRequests:
		code, errType = "rate_limit_exceeded", "rate_limit_error"
	case http.StatusServiceUnavailable:
		code, errType = "overloaded", "overloaded_error"
	}

	return &APIError{HTTPStatus: statusCode, Code: code, Type: errType, Message: message}
}

// extractUpstreamMessage looks for a message field under the envelope
// shapes known to this proxy's three upstreams, in the order they're
// most likely to appear.
func extractUpstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return firstNonEmpty(
		gjson.GetBytes(body, "error.message").String(),
		gjson.GetBytes(body, "message").String(),
		gjson.GetBytes(body, "error").String(),
	)
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// MapNetworkError classifies a transport-level failure (no HTTP status
// available at all) into an APIError, matching the teacher's
// substring-based classification of Go's generically-worded net errors.
func MapNetworkError(err error) *APIError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{HTTPStatus: 499, Code: "request_canceled", Type: "connection_error", Message: "request canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{HTTPStatus: http.StatusGatewayTimeout, Code: "timeout", Type: "connection_error", Message: "upstream request timed out"}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &APIError{HTTPStatus: http.StatusGatewayTimeout, Code: "timeout", Type: "connection_error", Message: msg}
	case strings.Contains(lower, "connection refused"):
		return &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "connection_refused", Type: "connection_error", Message: msg}
	case strings.Contains(lower, "no such host") || strings.Contains(lower, "dns"):
		return &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "dns_error", Type: "connection_error", Message: msg}
	case strings.Contains(lower, "certificate") || strings.Contains(lower, "tls"):
		return &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "tls_error", Type: "connection_error", Message: msg}
	case strings.Contains(lower, "eof") || strings.Contains(lower, "connection reset"):
		return &APIError{HTTPStatus: http.StatusBadGateway, Code: "connection_error", Type: "connection_error", Message: msg}
	default:
		return &APIError{HTTPStatus: http.StatusBadGateway, Code: "network_error", Type: "connection_error", Message: msg}
	}
}

// GetRetryAfter reports a suggested retry delay in seconds for a
// rate-limited or overloaded error, or 0 when no suggestion applies.
func (e *APIError) GetRetryAfter() int {
	if e.HTTPStatus == http.StatusTooManyRequests {
		return 5
	}
	if e.HTTPStatus == http.StatusServiceUnavailable {
		return 2
	}
	return 0
}

// IsCritical reports whether e represents a condition an operator
// should be paged for (as opposed to an expected, client-facing error
// like invalid-request or rate-limit).
func (e *APIError) IsCritical() bool {
	switch e.HTTPStatus {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return e.Code == "network_error" || e.Code == "connection_error"
}
