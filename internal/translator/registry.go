package translator

import "fmt"

// Format identifies one of the three wire protocols this proxy accepts
// on ingress, per spec.md §6.
type Format string

const (
	FormatOpenAI      Format = "openai"
	FormatClaudeNative Format = "claude"
	FormatGemini      Format = "gemini"
)

// ParseRequest converts a raw ingress request body in the given wire
// format into the canonical Request, the hub every transactor consumes.
// Unlike the teacher's from/to transform matrix (direct OpenAI<->Gemini),
// every format here converts through one canonical hub, since this proxy
// has three legs instead of two.
func ParseRequest(format Format, raw []byte) (*Request, error) {
	switch format {
	case FormatOpenAI:
		return OpenAIRequestToCanonical(raw)
	case FormatClaudeNative:
		return ClaudeRequestToCanonical(raw)
	case FormatGemini:
		return GeminiRequestToCanonical(raw)
	default:
		return nil, fmt.Errorf("translator: unknown ingress format %q", format)
	}
}

// RenderResponse converts a canonical Response back into the wire shape
// the original client expects.
func RenderResponse(format Format, resp *Response) ([]byte, error) {
	switch format {
	case FormatOpenAI:
		return CanonicalToOpenAIResponse(resp)
	case FormatClaudeNative:
		return CanonicalToClaudeResponse(resp)
	case FormatGemini:
		return CanonicalToGeminiResponse(resp)
	default:
		return nil, fmt.Errorf("translator: unknown egress format %q", format)
	}
}
