package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GeminiRequestToCanonical parses a native Gemini generateContent request
// body into the canonical Request shape. Adapted from the teacher's
// openai_to_gemini_messages.go contents/parts walk, run in reverse.
func GeminiRequestToCanonical(raw []byte) (*Request, error) {
	root := gjson.ParseBytes(raw)
	req := &Request{Model: root.Get("model").String()}

	gen := root.Get("generationConfig")
	if v := gen.Get("maxOutputTokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	}
	if v := gen.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := gen.Get("topP"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	for _, s := range gen.Get("stopSequences").Array() {
		req.StopSequences = append(req.StopSequences, s.String())
	}

	for _, decl := range root.Get("tools.#.functionDeclarations").Array() {
		for _, fn := range decl.Array() {
			var params interface{}
			_ = json.Unmarshal([]byte(fn.Get("parameters").Raw), &params)
			req.Tools = append(req.Tools, ToolDef{
				Name:        fn.Get("name").String(),
				Description: fn.Get("description").String(),
				Parameters:  params,
			})
		}
	}

	if si := root.Get("systemInstruction"); si.Exists() {
		for _, p := range si.Get("parts").Array() {
			req.System = append(req.System, ContentPart{Kind: PartText, Text: p.Get("text").String()})
		}
	}

	for _, c := range root.Get("contents").Array() {
		role := RoleUser
		if c.Get("role").String() == "model" {
			role = RoleAssistant
		}
		var parts []ContentPart
		for _, p := range c.Get("parts").Array() {
			switch {
			case p.Get("text").Exists():
				parts = append(parts, ContentPart{Kind: PartText, Text: p.Get("text").String()})
			case p.Get("inlineData").Exists():
				parts = append(parts, ContentPart{
					Kind:      PartImage,
					ImageMIME: p.Get("inlineData.mimeType").String(),
					ImageData: p.Get("inlineData.data").String(),
				})
			case p.Get("functionCall").Exists():
				var args interface{}
				_ = json.Unmarshal([]byte(p.Get("functionCall.args").Raw), &args)
				parts = append(parts, ContentPart{
					Kind:      PartToolUse,
					ToolName:  p.Get("functionCall.name").String(),
					ToolInput: args,
				})
			case p.Get("functionResponse").Exists():
				parts = append(parts, ContentPart{
					Kind:       PartToolResult,
					ToolName:   p.Get("functionResponse.name").String(),
					ToolResult: p.Get("functionResponse.response").Raw,
				})
			}
		}
		req.Messages = append(req.Messages, Message{Role: role, Parts: parts})
	}
	req.Messages = Sanitize(req.Messages)
	return req, nil
}

// CanonicalToGeminiRequest renders a canonical Request as a native
// Gemini generateContent request body, the inverse of
// GeminiRequestToCanonical.
func CanonicalToGeminiRequest(req *Request) ([]byte, error) {
	body := `{}`
	body, _ = sjson.Set(body, "model", req.Model)
	if req.MaxTokens > 0 {
		body, _ = sjson.Set(body, "generationConfig.maxOutputTokens", req.MaxTokens)
	}
	if req.Temperature != nil {
		body, _ = sjson.Set(body, "generationConfig.temperature", *req.Temperature)
	}
	if req.TopP != nil {
		body, _ = sjson.Set(body, "generationConfig.topP", *req.TopP)
	}
	if len(req.StopSequences) > 0 {
		body, _ = sjson.Set(body, "generationConfig.stopSequences", req.StopSequences)
	}

	if len(req.System) > 0 {
		sysText := joinText(req.System)
		body, _ = sjson.Set(body, "systemInstruction.role", "user")
		body, _ = sjson.Set(body, "systemInstruction.parts.0.text", sysText)
	}

	for ti, tool := range req.Tools {
		prefix := "tools.0.functionDeclarations." + itoa(ti)
		body, _ = sjson.Set(body, prefix+".name", tool.Name)
		body, _ = sjson.Set(body, prefix+".description", tool.Description)
		schema, _ := json.Marshal(tool.Parameters)
		body, _ = sjson.SetRaw(body, prefix+".parameters", string(schema))
	}

	idx := 0
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		prefix := "contents." + itoa(idx)
		body, _ = sjson.Set(body, prefix+".role", role)
		pidx := 0
		for _, p := range m.Parts {
			pprefix := prefix + ".parts." + itoa(pidx)
			switch p.Kind {
			case PartText:
				body, _ = sjson.Set(body, pprefix+".text", p.Text)
			case PartImage:
				body, _ = sjson.Set(body, pprefix+".inlineData.mimeType", p.ImageMIME)
				body, _ = sjson.Set(body, pprefix+".inlineData.data", p.ImageData)
			case PartToolUse:
				body, _ = sjson.Set(body, pprefix+".functionCall.name", p.ToolName)
				args, _ := json.Marshal(p.ToolInput)
				body, _ = sjson.SetRaw(body, pprefix+".functionCall.args", string(args))
			case PartToolResult:
				body, _ = sjson.Set(body, pprefix+".functionResponse.name", p.ToolName)
				body, _ = sjson.SetRaw(body, pprefix+".functionResponse.response", normalizeToolResultJSON(p.ToolResult))
			default:
				continue
			}
			pidx++
		}
		idx++
	}
	return []byte(body), nil
}

// normalizeToolResultJSON ensures a tool result renders as a JSON value;
// plain text results are wrapped into a {"result": ...} object since
// functionResponse.response must be a JSON object.
func normalizeToolResultJSON(raw string) string {
	trimmed := raw
	if len(trimmed) == 0 {
		return `{}`
	}
	if gjson.Valid(trimmed) && (trimmed[0] == '{' || trimmed[0] == '[') {
		return trimmed
	}
	wrapped, _ := sjson.Set(`{}`, "result", raw)
	return wrapped
}

// CanonicalToGeminiResponse renders a canonical Response as a native
// Gemini generateContent response body.
func CanonicalToGeminiResponse(resp *Response) ([]byte, error) {
	body := `{"candidates":[{"content":{"role":"model","parts":[]},"index":0}]}`
	body, _ = sjson.Set(body, "candidates.0.finishReason", geminiFinishReason(resp.StopReason))
	body, _ = sjson.Set(body, "usageMetadata.promptTokenCount", resp.Usage.InputTokens)
	body, _ = sjson.Set(body, "usageMetadata.candidatesTokenCount", resp.Usage.OutputTokens)
	body, _ = sjson.Set(body, "usageMetadata.totalTokenCount", resp.Usage.InputTokens+resp.Usage.OutputTokens)

	idx := 0
	for _, p := range resp.Message.Parts {
		prefix := "candidates.0.content.parts." + itoa(idx)
		switch p.Kind {
		case PartText:
			body, _ = sjson.Set(body, prefix+".text", p.Text)
		case PartToolUse:
			body, _ = sjson.Set(body, prefix+".functionCall.name", p.ToolName)
			args, _ := json.Marshal(p.ToolInput)
			body, _ = sjson.SetRaw(body, prefix+".functionCall.args", string(args))
		default:
			continue
		}
		idx++
	}
	return []byte(body), nil
}

func geminiFinishReason(r StopReason) string {
	switch r {
	case StopMaxTokens:
		return "MAX_TOKENS"
	case StopSequenceHit:
		return "STOP"
	default:
		return "STOP"
	}
}
