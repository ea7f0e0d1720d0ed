// Package apperrors is the standardized error surface every ingress
// format renders from: one internal APIError, marshaled into whichever
// provider envelope the request arrived in. Adapted from the teacher's
// internal/errors package, extended with a third envelope
// (ClaudeNative) since this proxy fronts three wire formats instead of
// the teacher's two.
package apperrors

import "clewdr-go/internal/credstore"

// Format identifies which provider envelope to render an APIError into.
type Format string

const (
	FormatOpenAI       Format = "openai"
	FormatGemini       Format = "gemini"
	FormatClaudeNative Format = "claude"
)

// APIError is a standardized error, provider-agnostic until rendered.
type APIError struct {
	HTTPStatus int
	Code       string
	Type       string
	Message    string
	Details    map[string]interface{}
}

func (e *APIError) Error() string { return e.Message }

// New constructs an APIError.
func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

// WithDetails attaches structured detail fields, returning e for chaining.
func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// OpenAIError mirrors OpenAI's error envelope.
type OpenAIError struct {
	Error struct {
		Message string                 `json:"message"`
		Type    string                 `json:"type"`
		Code    string                 `json:"code,omitempty"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// GeminiError mirrors Gemini's error envelope.
type GeminiError struct {
	Error struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Status  string                 `json:"status"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// ClaudeNativeError mirrors Anthropic's /v1/messages error envelope.
type ClaudeNativeError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrStorageUnavailable is the sentinel admin handlers check before any
// mutating call, re-exported from credstore so callers only need to
// import apperrors for the mapping layer.
var ErrStorageUnavailable = credstore.ErrStorageUnavailable
