package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestOpenAIRequestToCanonicalExtractsSystemAndUser(t *testing.T) {
	raw := []byte(`{
		"model": "gpt-4",
		"max_tokens": 256,
		"stop": ["STOP"],
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"}
		]
	}`)
	req, err := ParseRequest(FormatOpenAI, raw)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 256, req.MaxTokens)
	assert.Equal(t, []string{"STOP"}, req.StopSequences)
	require.Len(t, req.System, 1)
	assert.Equal(t, "be terse", req.System[0].Text)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Parts[0].Text)
}

func TestClaudeRequestToCanonicalExtractsToolUse(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-5-sonnet",
		"system": "be terse",
		"messages": [
			{"role": "user", "content": "what's the weather"},
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "t1", "name": "get_weather", "input": {"city": "nyc"}}
			]}
		]
	}`)
	req, err := ParseRequest(FormatClaudeNative, raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	toolParts := toolUseParts(req.Messages[1].Parts)
	require.Len(t, toolParts, 1)
	assert.Equal(t, "get_weather", toolParts[0].ToolName)
}

func TestGeminiRequestToCanonicalMapsModelRoleToAssistant(t *testing.T) {
	raw := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"text": "hi"}]},
			{"role": "model", "parts": [{"text": "hello"}]}
		],
		"generationConfig": {"maxOutputTokens": 100, "stopSequences": ["X"]}
	}`)
	req, err := ParseRequest(FormatGemini, raw)
	require.NoError(t, err)
	assert.Equal(t, 100, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleAssistant, req.Messages[1].Role)
}

func TestCanonicalResponseRendersToAllThreeFormats(t *testing.T) {
	resp := &Response{
		Model: "m1",
		Message: Message{
			Role:  RoleAssistant,
			Parts: []ContentPart{{Kind: PartText, Text: "hi there"}},
		},
		StopReason: StopEndTurn,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	}

	openaiBody, err := RenderResponse(FormatOpenAI, resp)
	require.NoError(t, err)
	assert.Equal(t, "hi there", gjson.GetBytes(openaiBody, "choices.0.message.content").String())

	claudeBody, err := RenderResponse(FormatClaudeNative, resp)
	require.NoError(t, err)
	assert.Equal(t, "hi there", gjson.GetBytes(claudeBody, "content.0.text").String())
	assert.Equal(t, "end_turn", gjson.GetBytes(claudeBody, "stop_reason").String())

	geminiBody, err := RenderResponse(FormatGemini, resp)
	require.NoError(t, err)
	assert.Equal(t, "hi there", gjson.GetBytes(geminiBody, "candidates.0.content.parts.0.text").String())
	assert.Equal(t, int64(15), gjson.GetBytes(geminiBody, "usageMetadata.totalTokenCount").Int())
}

func TestSanitizeDropsEmptyAssistantTurnsAndCoalescesSameRole(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Parts: []ContentPart{{Kind: PartText, Text: "a"}}},
		{Role: RoleUser, Parts: []ContentPart{{Kind: PartText, Text: "b"}}},
		{Role: RoleAssistant, Parts: nil},
		{Role: RoleAssistant, Parts: []ContentPart{{Kind: PartText, Text: "reply"}}},
	}
	out := Sanitize(messages)
	require.Len(t, out, 2)
	assert.Equal(t, RoleUser, out[0].Role)
	assert.Len(t, out[0].Parts, 2)
	assert.Equal(t, RoleAssistant, out[1].Role)
	assert.Equal(t, "reply", out[1].Parts[0].Text)
}

func TestSanitizeInsertsAlternationPlaceholder(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Parts: []ContentPart{{Kind: PartText, Text: "a"}}},
	}
	// Simulate a caller appending two user turns without an assistant
	// reply between them (e.g. replayed history) — alternation must hold.
	messages = append(messages, Message{Role: RoleUser, Parts: []ContentPart{{Kind: PartText, Text: "b"}}})
	out := insertAlternationPlaceholders(messages)
	require.Len(t, out, 3)
	assert.Equal(t, RoleAssistant, out[1].Role)
}

// TestToolResultWithBlockArrayContentRoundTripsUnchanged covers
// end-to-end scenario 5: a tool_result whose content is a block array
// (rather than a plain string) must be accepted and forwarded unchanged,
// not coerced into a string.
func TestToolResultWithBlockArrayContentRoundTripsUnchanged(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-5-sonnet",
		"messages": [
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "t1", "content": [{"type": "text", "text": "ok"}]}
			]}
		]
	}`)
	req, err := ClaudeRequestToCanonical(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	parts := req.Messages[0].Parts
	require.Len(t, parts, 1)
	assert.Equal(t, PartToolResult, parts[0].Kind)

	out, err := CanonicalToClaudeRequest(req)
	require.NoError(t, err)
	content := gjson.GetBytes(out, "messages.0.content.0.content")
	require.True(t, content.IsArray())
	assert.Equal(t, "ok", content.Array()[0].Get("text").String())
}

// TestRequestRoundTripIsStableAcrossRepeatedTranslation is the
// property-based invariant from spec.md §8: translating a canonical
// request to an origin wire format and back must reach a fixed point —
// a second round trip must reproduce exactly what the first one did,
// since nothing about the shape should be lossy in a way that keeps
// eroding on repeated translation. Covers Claude and Gemini, the two
// formats with a canonical-to-origin request renderer.
func TestRequestRoundTripIsStableAcrossRepeatedTranslation(t *testing.T) {
	cases := []struct {
		name       string
		toCanon    func([]byte) (*Request, error)
		fromCanon  func(*Request) ([]byte, error)
		raw        []byte
	}{
		{
			name:      "claude",
			toCanon:   ClaudeRequestToCanonical,
			fromCanon: CanonicalToClaudeRequest,
			raw: []byte(`{
				"model": "claude-3-5-sonnet",
				"max_tokens": 128,
				"system": "be terse",
				"messages": [
					{"role": "user", "content": "hi"},
					{"role": "assistant", "content": "hello"}
				]
			}`),
		},
		{
			name:      "gemini",
			toCanon:   GeminiRequestToCanonical,
			fromCanon: CanonicalToGeminiRequest,
			raw: []byte(`{
				"contents": [
					{"role": "user", "parts": [{"text": "hi"}]},
					{"role": "model", "parts": [{"text": "hello"}]}
				],
				"generationConfig": {"maxOutputTokens": 128}
			}`),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, err := tc.toCanon(tc.raw)
			require.NoError(t, err)
			wire, err := tc.fromCanon(first)
			require.NoError(t, err)
			second, err := tc.toCanon(wire)
			require.NoError(t, err)
			rewire, err := tc.fromCanon(second)
			require.NoError(t, err)
			assert.JSONEq(t, string(wire), string(rewire))
			assert.Equal(t, first.Model, second.Model)
			assert.Equal(t, first.MaxTokens, second.MaxTokens)
			require.Len(t, second.Messages, len(first.Messages))
			for i := range first.Messages {
				assert.Equal(t, first.Messages[i].Role, second.Messages[i].Role)
			}
		})
	}
}

func TestParseRequestUnknownFormatErrors(t *testing.T) {
	_, err := ParseRequest(Format("carrier-pigeon"), []byte(`{}`))
	assert.Error(t, err)
}
