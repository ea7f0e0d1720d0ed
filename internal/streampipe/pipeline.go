package streampipe

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"clewdr-go/internal/translator"
)

// frameOrErr carries one parsed frame (or the terminal error/EOF) from the
// background reader goroutine to Pipe's select loop.
type frameOrErr struct {
	frame Frame
	err   error // non-nil only on the final item; nil frame means clean EOF
}

// Pipe relays an upstream SSE body to w, translating each frame from
// upstreamFormat to egressFormat through the canonical Delta shape,
// enforcing stopSequences, and injecting keep-alive comments when gaps
// would otherwise starve the client connection. keepAliveInterval <= 0
// disables keep-alive injection. It returns the aggregated canonical
// Response once the upstream stream ends (or an error is returned by the
// callback/upstream).
func Pipe(upstream io.Reader, w io.Writer, upstreamFormat, egressFormat translator.Format, stopSequences []string, keepAliveInterval time.Duration) (*translator.Response, error) {
	filter := NewStopFilter(stopSequences)
	var content bytes.Buffer
	var usage translator.Usage
	var stopReason translator.StopReason = translator.StopEndTurn

	items := make(chan frameOrErr)
	go func() {
		defer close(items)
		err := ReadFrames(upstream, func(frame Frame) error {
			items <- frameOrErr{frame: frame}
			return nil
		})
		if err != nil {
			items <- frameOrErr{err: err}
		}
	}()

	var timerC <-chan time.Time
	var timer *time.Timer
	if keepAliveInterval > 0 {
		timer = time.NewTimer(keepAliveInterval)
		defer timer.Stop()
		timerC = timer.C
	}

readLoop:
	for {
		select {
		case it, ok := <-items:
			if !ok {
				break readLoop
			}
			if it.err != nil {
				return nil, it.err
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(keepAliveInterval)
			}
			if err := processFrame(it.frame, upstreamFormat, egressFormat, w, filter, &content, &usage, &stopReason); err != nil {
				return nil, err
			}
		case <-timerC:
			if err := WriteKeepAlive(w); err != nil {
				return nil, err
			}
			timer.Reset(keepAliveInterval)
		}
	}

	if tail := filter.Flush(); tail != "" {
		content.WriteString(tail)
		frame, err := EncodeDelta(egressFormat, translator.Delta{TextDelta: tail})
		if err == nil {
			_ = WriteFrame(w, frame)
		}
	}

	final, err := EncodeDelta(egressFormat, translator.Delta{StopReason: stopReason, Usage: &usage})
	if err != nil {
		return nil, err
	}
	if err := WriteFrame(w, final); err != nil {
		return nil, err
	}
	if egressFormat == translator.FormatOpenAI {
		if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
			return nil, err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	return &translator.Response{
		Message: translator.Message{
			Role:  translator.RoleAssistant,
			Parts: []translator.ContentPart{{Kind: translator.PartText, Text: content.String()}},
		},
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

// processFrame decodes one upstream frame, feeds it through the stop-sequence
// filter, and relays the resulting delta to w in egressFormat. Factored out
// of Pipe's select loop so the keep-alive timer case stays free of the
// per-frame translation logic.
func processFrame(frame Frame, upstreamFormat, egressFormat translator.Format, w io.Writer, filter *StopFilter, content *bytes.Buffer, usage *translator.Usage, stopReason *translator.StopReason) error {
	if filter.matched {
		return nil
	}
	delta, done, err := DecodeDelta(upstreamFormat, frame.Data)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if delta.Usage != nil {
		*usage = *delta.Usage
	}
	if delta.StopReason != "" {
		*stopReason = delta.StopReason
	}

	emitText, hit := filter.Feed(delta.TextDelta)
	content.WriteString(emitText)
	out := translator.Delta{TextDelta: emitText}
	if hit {
		filter.ApplyStopReason(&out)
		*stopReason = translator.StopSequenceHit
	}
	if emitText == "" && !hit {
		return nil
	}
	egressFrame, err := EncodeDelta(egressFormat, out)
	if err != nil {
		return err
	}
	return WriteFrame(w, egressFrame)
}

// PipeOrBuffer relays upstream to w in the shape the client actually asked
// for: Pipe for a streaming request, Buffer for a non-streaming one. Every
// transactor funnels both client modes through here so a `stream:false`
// request never gets SSE-framed output, per spec.md §4.I. keepAliveInterval
// is ignored in the non-streaming case.
func PipeOrBuffer(upstream io.Reader, w io.Writer, stream bool, upstreamFormat, egressFormat translator.Format, stopSequences []string, keepAliveInterval time.Duration) (*translator.Response, error) {
	if stream {
		return Pipe(upstream, w, upstreamFormat, egressFormat, stopSequences, keepAliveInterval)
	}
	raw, err := io.ReadAll(upstream)
	if err != nil {
		return nil, err
	}
	resp, err := decodeFullResponse(upstreamFormat, raw)
	if err != nil {
		return nil, err
	}
	out, err := Buffer(raw, upstreamFormat, egressFormat, stopSequences)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(out); err != nil {
		return nil, err
	}
	return resp, nil
}

// Buffer reads a complete (non-streamed) upstream body in upstreamFormat
// and renders it directly in egressFormat, for clients that did not
// request streaming. No stop-sequence filtering is needed here since the
// full text is available to truncate in one pass.
func Buffer(body []byte, upstreamFormat, egressFormat translator.Format, stopSequences []string) ([]byte, error) {
	resp, err := decodeFullResponse(upstreamFormat, body)
	if err != nil {
		return nil, err
	}
	text := joinResponseText(resp)
	if truncated, hit := truncateAtStopSequence(text, stopSequences); hit {
		resp.Message.Parts = []translator.ContentPart{{Kind: translator.PartText, Text: truncated}}
		resp.StopReason = translator.StopSequenceHit
	}
	return translator.RenderResponse(egressFormat, resp)
}

func joinResponseText(resp *translator.Response) string {
	var b bytes.Buffer
	for _, p := range resp.Message.Parts {
		if p.Kind == translator.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func truncateAtStopSequence(text string, sequences []string) (string, bool) {
	filter := NewStopFilter(sequences)
	emit, hit := filter.Feed(text)
	if !hit {
		return text, false
	}
	return emit, true
}
