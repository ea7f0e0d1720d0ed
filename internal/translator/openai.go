package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIRequestToCanonical parses an OpenAI chat/completions request body
// into the canonical Request shape, matching the teacher's gjson-walk
// style in openai_to_gemini_messages.go.
func OpenAIRequestToCanonical(raw []byte) (*Request, error) {
	root := gjson.ParseBytes(raw)
	req := &Request{
		Model:  root.Get("model").String(),
		Stream: root.Get("stream").Bool(),
	}
	if v := root.Get("max_tokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	for _, s := range root.Get("stop").Array() {
		req.StopSequences = append(req.StopSequences, s.String())
	}
	if s := root.Get("stop"); s.Exists() && !s.IsArray() {
		req.StopSequences = append(req.StopSequences, s.String())
	}
	for _, t := range root.Get("tools").Array() {
		if t.Get("type").String() != "function" {
			continue
		}
		var params interface{}
		_ = json.Unmarshal([]byte(t.Get("function.parameters").Raw), &params)
		req.Tools = append(req.Tools, ToolDef{
			Name:        t.Get("function.name").String(),
			Description: t.Get("function.description").String(),
			Parameters:  params,
		})
	}

	for _, m := range root.Get("messages").Array() {
		role := Role(m.Get("role").String())
		parts := openAIContentToParts(m.Get("content"))
		if toolCalls := m.Get("tool_calls"); toolCalls.Exists() {
			for _, tc := range toolCalls.Array() {
				// function.arguments is itself a JSON-encoded string, not a
				// nested object, per the OpenAI tool-call schema.
				var args interface{}
				_ = json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args)
				parts = append(parts, ContentPart{
					Kind:      PartToolUse,
					ToolUseID: tc.Get("id").String(),
					ToolName:  tc.Get("function.name").String(),
					ToolInput: args,
				})
			}
		}
		if role == RoleTool {
			parts = append(parts, ContentPart{
				Kind:       PartToolResult,
				ToolUseID:  m.Get("tool_call_id").String(),
				ToolResult: m.Get("content").String(),
			})
		}
		if role == RoleSystem {
			req.System = append(req.System, parts...)
			continue
		}
		req.Messages = append(req.Messages, Message{Role: role, Parts: parts})
	}
	req.Messages = Sanitize(req.Messages)
	return req, nil
}

func openAIContentToParts(content gjson.Result) []ContentPart {
	if !content.Exists() {
		return nil
	}
	if !content.IsArray() {
		if content.String() == "" {
			return nil
		}
		return []ContentPart{{Kind: PartText, Text: content.String()}}
	}
	var parts []ContentPart
	for _, p := range content.Array() {
		switch p.Get("type").String() {
		case "text":
			parts = append(parts, ContentPart{Kind: PartText, Text: p.Get("text").String()})
		case "image_url":
			parts = append(parts, ContentPart{
				Kind:       PartImage,
				ImageData:  p.Get("image_url.url").String(),
				ImageIsURL: true,
			})
		}
	}
	return parts
}

// CanonicalToOpenAIResponse renders a canonical Response as an OpenAI
// chat/completions response body.
func CanonicalToOpenAIResponse(resp *Response) ([]byte, error) {
	body := `{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`
	body, _ = sjson.Set(body, "model", resp.Model)

	text := joinText(resp.Message.Parts)
	body, _ = sjson.Set(body, "choices.0.message.content", text)
	body, _ = sjson.Set(body, "choices.0.finish_reason", openAIFinishReason(resp.StopReason))
	body, _ = sjson.Set(body, "usage.prompt_tokens", resp.Usage.InputTokens)
	body, _ = sjson.Set(body, "usage.completion_tokens", resp.Usage.OutputTokens)
	body, _ = sjson.Set(body, "usage.total_tokens", resp.Usage.InputTokens+resp.Usage.OutputTokens)

	if toolCalls := toolUseParts(resp.Message.Parts); len(toolCalls) > 0 {
		for i, tc := range toolCalls {
			prefix := "choices.0.message.tool_calls." + itoa(i)
			body, _ = sjson.Set(body, prefix+".id", tc.ToolUseID)
			body, _ = sjson.Set(body, prefix+".type", "function")
			body, _ = sjson.Set(body, prefix+".function.name", tc.ToolName)
			args, _ := json.Marshal(tc.ToolInput)
			body, _ = sjson.Set(body, prefix+".function.arguments", string(args))
		}
	}
	return []byte(body), nil
}

func openAIFinishReason(r StopReason) string {
	switch r {
	case StopMaxTokens:
		return "length"
	case StopToolUse:
		return "tool_calls"
	default:
		return "stop"
	}
}
