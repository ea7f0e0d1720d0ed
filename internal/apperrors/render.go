package apperrors

import (
	"encoding/json"
	"net/http"
)

// ToJSON marshals e into the given provider's error envelope.
func (e *APIError) ToJSON(format Format) ([]byte, error) {
	switch format {
	case FormatGemini:
		return e.toGeminiJSON()
	case FormatClaudeNative:
		return e.toClaudeNativeJSON()
	default:
		return e.toOpenAIJSON()
	}
}

func (e *APIError) toOpenAIJSON() ([]byte, error) {
	var env OpenAIError
	env.Error.Message = e.Message
	env.Error.Type = e.Type
	env.Error.Code = e.Code
	env.Error.Details = e.Details
	return json.Marshal(env)
}

func (e *APIError) toGeminiJSON() ([]byte, error) {
	var env GeminiError
	env.Error.Code = e.HTTPStatus
	env.Error.Message = e.Message
	env.Error.Status = e.geminiStatus()
	env.Error.Details = e.Details
	return json.Marshal(env)
}

func (e *APIError) toClaudeNativeJSON() ([]byte, error) {
	var env ClaudeNativeError
	env.Type = "error"
	env.Error.Type = e.claudeNativeErrorType()
	env.Error.Message = e.Message
	return json.Marshal(env)
}

func (e *APIError) geminiStatus() string {
	switch e.HTTPStatus {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusInternalServerError:
		return "INTERNAL"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEADLINE_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// claudeNativeErrorType maps the standardized code onto Anthropic's
// closed error-type enum (invalid_request_error, authentication_error,
// permission_error, not_found_error, rate_limit_error, api_error,
// overloaded_error).
func (e *APIError) claudeNativeErrorType() string {
	switch e.HTTPStatus {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

// IsRetryable reports whether a client may usefully retry the request
// that produced e.
func (e *APIError) IsRetryable() bool {
	switch e.HTTPStatus {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return true
	}
	switch e.Code {
	case "timeout", "connection_error", "network_error", "dns_error":
		return true
	}
	return false
}
