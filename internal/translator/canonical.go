// Package translator implements Component H, the Format Translator:
// converts OpenAI chat/completions, native Claude messages, and native
// Gemini generateContent requests/responses to and from one canonical
// shape so the streaming and caching pipelines never need to know which
// wire format a client spoke. Adapted from the teacher's
// internal/translator (OpenAI<->Gemini only); the third leg,
// ClaudeNative<->Canonical, is grounded on
// original_source/src/types/claude.rs and src/middleware/claude/*.
package translator

// Role is the canonical turn role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind tags a ContentPart's payload.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
)

// ContentPart is one piece of a message's content, tagged by kind. Only
// the fields matching Kind are meaningful.
type ContentPart struct {
	Kind PartKind

	Text string // PartText

	ImageMIME string // PartImage
	ImageData string // PartImage, base64 or URL depending on ImageIsURL
	ImageIsURL bool

	ToolUseID   string      // PartToolUse, PartToolResult
	ToolName    string      // PartToolUse
	ToolInput   interface{} // PartToolUse, decoded JSON
	ToolResult  string      // PartToolResult
	ToolIsError bool        // PartToolResult
}

// Message is one canonical conversation turn.
type Message struct {
	Role  Role
	Parts []ContentPart
}

// Request is the canonical translation of an inbound chat request,
// independent of which of the three wire formats it arrived in.
type Request struct {
	Model         string
	System        []ContentPart
	Messages      []Message
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
	Stream        bool
	Tools         []ToolDef
}

// ToolDef is a canonical function/tool declaration.
type ToolDef struct {
	Name        string
	Description string
	Parameters  interface{} // JSON schema, decoded
}

// StopReason is the canonical completion-stop classification.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequenceHit  StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
)

// Usage is token accounting in the canonical shape; providers that only
// report totals leave the unknown half zero.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the canonical translation of a complete (non-streamed, or
// fully assembled from a stream) model response.
type Response struct {
	Model      string
	Message    Message
	StopReason StopReason
	Usage      Usage
}

// Delta is one canonical incremental streaming event, the unit
// internal/streampipe operates on.
type Delta struct {
	TextDelta  string
	ToolCall   *ContentPart // set only when a tool_use part completes
	StopReason StopReason   // set only on the final delta
	Usage      *Usage       // set only on the final delta, when known
}
