package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ClaudeRequestToCanonical parses a native Claude /v1/messages request
// body into the canonical Request shape. Grounded on
// original_source/src/types/claude.rs's ClaudeMessage/ContentBlock enum.
func ClaudeRequestToCanonical(raw []byte) (*Request, error) {
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
	for _, s := range root.Get("stop_sequences").Array() {
		req.StopSequences = append(req.StopSequences, s.String())
	}
	for _, t := range root.Get("tools").Array() {
		var params interface{}
		_ = json.Unmarshal([]byte(t.Get("input_schema").Raw), &params)
		req.Tools = append(req.Tools, ToolDef{
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
			Parameters:  params,
		})
	}

	if sys := root.Get("system"); sys.Exists() {
		if sys.IsArray() {
			for _, p := range sys.Array() {
				req.System = append(req.System, ContentPart{Kind: PartText, Text: p.Get("text").String()})
			}
		} else {
			req.System = append(req.System, ContentPart{Kind: PartText, Text: sys.String()})
		}
	}

	for _, m := range root.Get("messages").Array() {
		req.Messages = append(req.Messages, Message{
			Role:  Role(m.Get("role").String()),
			Parts: claudeContentToParts(m.Get("content")),
		})
	}
	req.Messages = Sanitize(req.Messages)
	return req, nil
}

func claudeContentToParts(content gjson.Result) []ContentPart {
	if !content.Exists() {
		return nil
	}
	if !content.IsArray() {
		return []ContentPart{{Kind: PartText, Text: content.String()}}
	}
	var parts []ContentPart
	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			parts = append(parts, ContentPart{Kind: PartText, Text: block.Get("text").String()})
		case "image":
			parts = append(parts, ContentPart{
				Kind:      PartImage,
				ImageMIME: block.Get("source.media_type").String(),
				ImageData: block.Get("source.data").String(),
			})
		case "tool_use":
			var input interface{}
			_ = json.Unmarshal([]byte(block.Get("input").Raw), &input)
			parts = append(parts, ContentPart{
				Kind:      PartToolUse,
				ToolUseID: block.Get("id").String(),
				ToolName:  block.Get("name").String(),
				ToolInput: input,
			})
		case "tool_result":
			parts = append(parts, ContentPart{
				Kind:        PartToolResult,
				ToolUseID:   block.Get("tool_use_id").String(),
				ToolResult:  block.Get("content").String(),
				ToolIsError: block.Get("is_error").Bool(),
			})
		}
	}
	return parts
}

// CanonicalToClaudeRequest renders a canonical Request as a native Claude
// /v1/messages request body, the inverse of ClaudeRequestToCanonical.
func CanonicalToClaudeRequest(req *Request) ([]byte, error) {
	body := `{}`
	body, _ = sjson.Set(body, "model", req.Model)
	if req.MaxTokens > 0 {
		body, _ = sjson.Set(body, "max_tokens", req.MaxTokens)
	}
	if req.Temperature != nil {
		body, _ = sjson.Set(body, "temperature", *req.Temperature)
	}
	if req.TopP != nil {
		body, _ = sjson.Set(body, "top_p", *req.TopP)
	}
	if req.Stream {
		body, _ = sjson.Set(body, "stream", true)
	}
	if len(req.StopSequences) > 0 {
		body, _ = sjson.Set(body, "stop_sequences", req.StopSequences)
	}
	if system := joinText(req.System); system != "" {
		body, _ = sjson.Set(body, "system", system)
	}
	for ti, tool := range req.Tools {
		prefix := "tools." + itoa(ti)
		body, _ = sjson.Set(body, prefix+".name", tool.Name)
		body, _ = sjson.Set(body, prefix+".description", tool.Description)
		schema, _ := json.Marshal(tool.Parameters)
		body, _ = sjson.SetRaw(body, prefix+".input_schema", string(schema))
	}

	idx := 0
	for _, m := range req.Messages {
		prefix := "messages." + itoa(idx)
		body, _ = sjson.Set(body, prefix+".role", string(m.Role))
		cidx := 0
		for _, p := range m.Parts {
			cprefix := prefix + ".content." + itoa(cidx)
			switch p.Kind {
			case PartText:
				body, _ = sjson.Set(body, cprefix+".type", "text")
				body, _ = sjson.Set(body, cprefix+".text", p.Text)
			case PartImage:
				body, _ = sjson.Set(body, cprefix+".type", "image")
				body, _ = sjson.Set(body, cprefix+".source.media_type", p.ImageMIME)
				body, _ = sjson.Set(body, cprefix+".source.data", p.ImageData)
			case PartToolUse:
				body, _ = sjson.Set(body, cprefix+".type", "tool_use")
				body, _ = sjson.Set(body, cprefix+".id", p.ToolUseID)
				body, _ = sjson.Set(body, cprefix+".name", p.ToolName)
				input, _ := json.Marshal(p.ToolInput)
				body, _ = sjson.SetRaw(body, cprefix+".input", string(input))
			case PartToolResult:
				body, _ = sjson.Set(body, cprefix+".type", "tool_result")
				body, _ = sjson.Set(body, cprefix+".tool_use_id", p.ToolUseID)
				if gjson.Valid(p.ToolResult) && len(p.ToolResult) > 0 && (p.ToolResult[0] == '[' || p.ToolResult[0] == '{') {
					// A tool result whose content was itself a block array
					// (e.g. [{"type":"text","text":"ok"}]) round-trips as
					// that same array, not as a stringified blob.
					body, _ = sjson.SetRaw(body, cprefix+".content", p.ToolResult)
				} else {
					body, _ = sjson.Set(body, cprefix+".content", p.ToolResult)
				}
				if p.ToolIsError {
					body, _ = sjson.Set(body, cprefix+".is_error", true)
				}
			default:
				continue
			}
			cidx++
		}
		idx++
	}
	return []byte(body), nil
}

// CanonicalToClaudeResponse renders a canonical Response as a native
// Claude /v1/messages response body.
func CanonicalToClaudeResponse(resp *Response) ([]byte, error) {
	body := `{"type":"message","role":"assistant","content":[]}`
	body, _ = sjson.Set(body, "model", resp.Model)
	body, _ = sjson.Set(body, "stop_reason", string(resp.StopReason))
	body, _ = sjson.Set(body, "usage.input_tokens", resp.Usage.InputTokens)
	body, _ = sjson.Set(body, "usage.output_tokens", resp.Usage.OutputTokens)

	idx := 0
	for _, p := range resp.Message.Parts {
		prefix := "content." + itoa(idx)
		switch p.Kind {
		case PartText:
			body, _ = sjson.Set(body, prefix+".type", "text")
			body, _ = sjson.Set(body, prefix+".text", p.Text)
		case PartToolUse:
			body, _ = sjson.Set(body, prefix+".type", "tool_use")
			body, _ = sjson.Set(body, prefix+".id", p.ToolUseID)
			body, _ = sjson.Set(body, prefix+".name", p.ToolName)
			input, _ := json.Marshal(p.ToolInput)
			body, _ = sjson.SetRaw(body, prefix+".input", string(input))
		default:
			continue
		}
		idx++
	}
	return []byte(body), nil
}
