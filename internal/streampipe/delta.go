package streampipe

import (
	"encoding/json"
	"strings"

	"clewdr-go/internal/translator"

	"github.com/tidwall/gjson"
)

// DecodeDelta extracts one canonical Delta from a single upstream SSE
// frame's data payload, per the wire format the upstream actually speaks
// (which is not necessarily the client's ingress format — the middleware
// translates both ends independently through the canonical hub). done
// reports whether this frame signals stream completion.
func DecodeDelta(format translator.Format, data []byte) (delta translator.Delta, done bool, err error) {
	if strings.TrimSpace(string(data)) == "[DONE]" {
		return translator.Delta{}, true, nil
	}
	switch format {
	case translator.FormatOpenAI:
		return decodeOpenAIDelta(data)
	case translator.FormatClaudeNative:
		return decodeClaudeDelta(data)
	case translator.FormatGemini:
		return decodeGeminiDelta(data)
	default:
		return translator.Delta{}, false, nil
	}
}

func decodeOpenAIDelta(data []byte) (translator.Delta, bool, error) {
	root := gjson.ParseBytes(data)
	choice := root.Get("choices.0")
	d := translator.Delta{TextDelta: choice.Get("delta.content").String()}
	if fr := choice.Get("finish_reason"); fr.Exists() && fr.String() != "" {
		d.StopReason = mapOpenAIFinishReason(fr.String())
	}
	if usage := root.Get("usage"); usage.Exists() {
		d.Usage = &translator.Usage{
			InputTokens:  usage.Get("prompt_tokens").Int(),
			OutputTokens: usage.Get("completion_tokens").Int(),
		}
	}
	return d, false, nil
}

func mapOpenAIFinishReason(reason string) translator.StopReason {
	switch reason {
	case "length":
		return translator.StopMaxTokens
	case "tool_calls":
		return translator.StopToolUse
	default:
		return translator.StopEndTurn
	}
}

// decodeClaudeDelta handles the content_block_delta / message_delta /
// message_stop event family. It sees only the JSON payload, not the SSE
// "event:" line, and reads delta.text, delta.stop_reason and usage from
// whichever of them the payload carries.
func decodeClaudeDelta(data []byte) (translator.Delta, bool, error) {
	root := gjson.ParseBytes(data)
	d := translator.Delta{}
	if txt := root.Get("delta.text"); txt.Exists() {
		d.TextDelta = txt.String()
	}
	if sr := root.Get("delta.stop_reason"); sr.Exists() {
		d.StopReason = translator.StopReason(sr.String())
	}
	if usage := root.Get("usage"); usage.Exists() {
		d.Usage = &translator.Usage{
			InputTokens:  usage.Get("input_tokens").Int(),
			OutputTokens: usage.Get("output_tokens").Int(),
		}
	}
	return d, false, nil
}

func decodeGeminiDelta(data []byte) (translator.Delta, bool, error) {
	root := gjson.ParseBytes(data)
	cand := root.Get("candidates.0")
	var text strings.Builder
	for _, p := range cand.Get("content.parts").Array() {
		text.WriteString(p.Get("text").String())
	}
	d := translator.Delta{TextDelta: text.String()}
	if fr := cand.Get("finishReason"); fr.Exists() && fr.String() != "" {
		d.StopReason = mapGeminiFinishReason(fr.String())
	}
	if usage := root.Get("usageMetadata"); usage.Exists() {
		d.Usage = &translator.Usage{
			InputTokens:  usage.Get("promptTokenCount").Int(),
			OutputTokens: usage.Get("candidatesTokenCount").Int(),
		}
	}
	return d, false, nil
}

func mapGeminiFinishReason(reason string) translator.StopReason {
	switch reason {
	case "MAX_TOKENS":
		return translator.StopMaxTokens
	default:
		return translator.StopEndTurn
	}
}

// EncodeDelta renders one canonical Delta as an SSE frame in the given
// egress wire format.
func EncodeDelta(format translator.Format, d translator.Delta) (Frame, error) {
	switch format {
	case translator.FormatOpenAI:
		body := `{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`
		return encodeOpenAIDelta(body, d)
	case translator.FormatClaudeNative:
		return encodeClaudeDelta(d)
	case translator.FormatGemini:
		return encodeGeminiDelta(d)
	default:
		return Frame{}, nil
	}
}

func encodeOpenAIDelta(body string, d translator.Delta) (Frame, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Frame{}, err
	}
	choice := m["choices"].([]interface{})[0].(map[string]interface{})
	delta := choice["delta"].(map[string]interface{})
	if d.TextDelta != "" {
		delta["content"] = d.TextDelta
	}
	if d.StopReason != "" {
		choice["finish_reason"] = openAIFinishReason(d.StopReason)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: raw}, nil
}

func encodeClaudeDelta(d translator.Delta) (Frame, error) {
	if d.StopReason != "" {
		raw, err := json.Marshal(map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]interface{}{"stop_reason": string(d.StopReason)},
		})
		return Frame{Event: "message_delta", Data: raw}, err
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":  "content_block_delta",
		"delta": map[string]interface{}{"type": "text_delta", "text": d.TextDelta},
	})
	return Frame{Event: "content_block_delta", Data: raw}, err
}

func encodeGeminiDelta(d translator.Delta) (Frame, error) {
	m := map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []interface{}{map[string]interface{}{"text": d.TextDelta}},
				},
			},
		},
	}
	if d.StopReason != "" {
		cand := m["candidates"].([]interface{})[0].(map[string]interface{})
		cand["finishReason"] = geminiFinishReason(d.StopReason)
	}
	raw, err := json.Marshal(m)
	return Frame{Data: raw}, err
}

func geminiFinishReason(r translator.StopReason) string {
	if r == translator.StopMaxTokens {
		return "MAX_TOKENS"
	}
	return "STOP"
}

func openAIFinishReason(r translator.StopReason) string {
	switch r {
	case translator.StopMaxTokens:
		return "length"
	case translator.StopToolUse:
		return "tool_calls"
	default:
		return "stop"
	}
}
