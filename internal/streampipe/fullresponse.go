package streampipe

import (
	"encoding/json"
	"fmt"

	"clewdr-go/internal/translator"

	"github.com/tidwall/gjson"
)

// DecodeFullResponse parses a complete (non-streamed) upstream response
// body into the canonical Response shape, for callers that need usage
// accounting or other canonical fields alongside (or instead of) the
// rendered egress bytes Buffer produces.
func DecodeFullResponse(format translator.Format, body []byte) (*translator.Response, error) {
	return decodeFullResponse(format, body)
}

// decodeFullResponse parses a complete (non-streamed) upstream response
// body into the canonical Response shape, mirroring the per-format
// delta decoders in delta.go but over the whole-document envelope.
func decodeFullResponse(format translator.Format, body []byte) (*translator.Response, error) {
	switch format {
	case translator.FormatOpenAI:
		return decodeOpenAIResponse(body)
	case translator.FormatClaudeNative:
		return decodeClaudeResponse(body)
	case translator.FormatGemini:
		return decodeGeminiResponse(body)
	default:
		return nil, fmt.Errorf("streampipe: unknown upstream format %q", format)
	}
}

func decodeOpenAIResponse(body []byte) (*translator.Response, error) {
	root := gjson.ParseBytes(body)
	choice := root.Get("choices.0")
	resp := &translator.Response{
		Model: root.Get("model").String(),
		Message: translator.Message{
			Role:  translator.RoleAssistant,
			Parts: []translator.ContentPart{{Kind: translator.PartText, Text: choice.Get("message.content").String()}},
		},
		StopReason: mapOpenAIFinishReason(choice.Get("finish_reason").String()),
		Usage: translator.Usage{
			InputTokens:  root.Get("usage.prompt_tokens").Int(),
			OutputTokens: root.Get("usage.completion_tokens").Int(),
		},
	}
	for _, tc := range choice.Get("message.tool_calls").Array() {
		var args interface{}
		_ = json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args)
		resp.Message.Parts = append(resp.Message.Parts, translator.ContentPart{
			Kind:      translator.PartToolUse,
			ToolUseID: tc.Get("id").String(),
			ToolName:  tc.Get("function.name").String(),
			ToolInput: args,
		})
	}
	return resp, nil
}

func decodeClaudeResponse(body []byte) (*translator.Response, error) {
	root := gjson.ParseBytes(body)
	resp := &translator.Response{
		Model:      root.Get("model").String(),
		Message:    translator.Message{Role: translator.RoleAssistant},
		StopReason: translator.StopReason(root.Get("stop_reason").String()),
		Usage: translator.Usage{
			InputTokens:  root.Get("usage.input_tokens").Int(),
			OutputTokens: root.Get("usage.output_tokens").Int(),
		},
	}
	for _, block := range root.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			resp.Message.Parts = append(resp.Message.Parts, translator.ContentPart{
				Kind: translator.PartText, Text: block.Get("text").String(),
			})
		case "tool_use":
			var input interface{}
			_ = json.Unmarshal([]byte(block.Get("input").Raw), &input)
			resp.Message.Parts = append(resp.Message.Parts, translator.ContentPart{
				Kind:      translator.PartToolUse,
				ToolUseID: block.Get("id").String(),
				ToolName:  block.Get("name").String(),
				ToolInput: input,
			})
		}
	}
	return resp, nil
}

func decodeGeminiResponse(body []byte) (*translator.Response, error) {
	root := gjson.ParseBytes(body)
	cand := root.Get("candidates.0")
	resp := &translator.Response{
		Message:    translator.Message{Role: translator.RoleAssistant},
		StopReason: mapGeminiFinishReason(cand.Get("finishReason").String()),
		Usage: translator.Usage{
			InputTokens:  root.Get("usageMetadata.promptTokenCount").Int(),
			OutputTokens: root.Get("usageMetadata.candidatesTokenCount").Int(),
		},
	}
	for _, p := range cand.Get("content.parts").Array() {
		if txt := p.Get("text"); txt.Exists() {
			resp.Message.Parts = append(resp.Message.Parts, translator.ContentPart{
				Kind: translator.PartText, Text: txt.String(),
			})
			continue
		}
		if fc := p.Get("functionCall"); fc.Exists() {
			var args interface{}
			_ = json.Unmarshal([]byte(fc.Get("args").Raw), &args)
			resp.Message.Parts = append(resp.Message.Parts, translator.ContentPart{
				Kind: translator.PartToolUse, ToolName: fc.Get("name").String(), ToolInput: args,
			})
		}
	}
	return resp, nil
}
