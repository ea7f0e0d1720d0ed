package streampipe

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"clewdr-go/internal/translator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFramesSplitsOnBlankLines(t *testing.T) {
	input := "event: message_delta\ndata: {\"a\":1}\n\ndata: {\"b\":2}\n\n"
	var frames []Frame
	err := ReadFrames(strings.NewReader(input), func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "message_delta", frames[0].Event)
	assert.JSONEq(t, `{"a":1}`, string(frames[0].Data))
	assert.Equal(t, "", frames[1].Event)
}

func TestStopFilterTruncatesAtMatchAndWithholdsPartialTail(t *testing.T) {
	filter := NewStopFilter([]string{"STOP"})

	emit1, hit1 := filter.Feed("hello wor")
	assert.False(t, hit1)
	assert.NotContains(t, emit1, "wor") // held back, sequence could start here

	emit2, hit2 := filter.Feed("ld STOP more text")
	assert.True(t, hit2)
	assert.Equal(t, "hello world ", emit1+emit2)

	// once matched, further Feed calls are inert
	emit3, hit3 := filter.Feed("ignored")
	assert.Equal(t, "", emit3)
	assert.True(t, hit3)
}

func TestStopFilterPassesThroughWithNoSequences(t *testing.T) {
	filter := NewStopFilter(nil)
	emit, hit := filter.Feed("anything")
	assert.Equal(t, "anything", emit)
	assert.False(t, hit)
}

func TestPipeConcatenatesDeltasAndAppliesStopSequence(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"content":"hello "}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"wor"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"ld STOP ignored"}}]}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"

	var out bytes.Buffer
	resp, err := Pipe(strings.NewReader(upstream), &out, translator.FormatOpenAI, translator.FormatOpenAI, []string{"STOP"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world ", resp.Message.Parts[0].Text)
	assert.Equal(t, translator.StopSequenceHit, resp.StopReason)
}

// TestPipeEmitsDoneSentinelForOpenAIEgress covers end-to-end scenario 1:
// an OpenAI-format stream must be terminated by a literal `data: [DONE]`
// frame after the final chunk, not just a chunk carrying finish_reason.
func TestPipeEmitsDoneSentinelForOpenAIEgress(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"content":"hi"}}]}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"

	var out bytes.Buffer
	_, err := Pipe(strings.NewReader(upstream), &out, translator.FormatOpenAI, translator.FormatOpenAI, nil, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), "data: [DONE]\n\n"), "stream must end with the DONE sentinel, got %q", out.String())
}

// TestPipeOmitsDoneSentinelForNonOpenAIEgress covers the inverse: Claude
// and Gemini egress frames never carry an OpenAI-specific sentinel.
func TestPipeOmitsDoneSentinelForNonOpenAIEgress(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"content":"hi"}}]}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"

	var out bytes.Buffer
	_, err := Pipe(strings.NewReader(upstream), &out, translator.FormatOpenAI, translator.FormatClaudeNative, nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "[DONE]")
}

// TestPipeInjectsKeepAliveOnUpstreamGap covers spec.md §4.I: when no
// upstream bytes arrive for the configured interval, a keep-alive comment
// frame is emitted before the stream continues.
func TestPipeInjectsKeepAliveOnUpstreamGap(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("data: [DONE]\n\n"))
		pw.Close()
	}()

	var out bytes.Buffer
	_, err := Pipe(pr, &out, translator.FormatOpenAI, translator.FormatOpenAI, nil, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, out.String(), ": keep-alive\n\n")
}

func TestBufferTruncatesNonStreamingResponseAtStopSequence(t *testing.T) {
	body := []byte(`{"model":"gpt-4","choices":[{"message":{"content":"a STOP b"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2}}`)
	out, err := Buffer(body, translator.FormatOpenAI, translator.FormatOpenAI, []string{"STOP"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"a "`)
}
