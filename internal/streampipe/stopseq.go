package streampipe

import (
	"strings"

	"clewdr-go/internal/translator"
)

// StopFilter buffers trailing text up to the longest configured stop
// sequence so a match split across two upstream chunks is still caught,
// truncating the emitted text at the match and replacing the stop
// reason with StopSequenceHit. Grounded on
// original_source/src/middleware/stop_sequences.rs's buffer-and-scan
// approach.
type StopFilter struct {
	sequences []string
	maxLen    int
	pending   strings.Builder
	matched   bool
}

// NewStopFilter builds a filter for the given stop sequences. An empty
// list makes every call a pass-through.
func NewStopFilter(sequences []string) *StopFilter {
	max := 0
	for _, s := range sequences {
		if len(s) > max {
			max = len(s)
		}
	}
	return &StopFilter{sequences: sequences, maxLen: max}
}

// Feed processes one incoming text delta, returning the text safe to
// emit now (empty if fully withheld pending more context) and whether a
// stop sequence was found. Once matched, every subsequent call returns
// "" and true and should not be called again by a correct caller.
func (f *StopFilter) Feed(text string) (emit string, hit bool) {
	if f.matched {
		return "", true
	}
	if len(f.sequences) == 0 {
		return text, false
	}
	f.pending.WriteString(text)
	buf := f.pending.String()

	earliest := -1
	for _, seq := range f.sequences {
		if idx := strings.Index(buf, seq); idx >= 0 && (earliest == -1 || idx < earliest) {
			earliest = idx
		}
	}
	if earliest >= 0 {
		f.matched = true
		safe := buf[:earliest]
		f.pending.Reset()
		return safe, true
	}

	// Hold back up to maxLen-1 trailing bytes in case a sequence is
	// split across the next chunk boundary.
	holdBack := f.maxLen - 1
	if holdBack < 0 {
		holdBack = 0
	}
	if len(buf) <= holdBack {
		return "", false
	}
	emitLen := len(buf) - holdBack
	f.pending.Reset()
	f.pending.WriteString(buf[emitLen:])
	return buf[:emitLen], false
}

// Flush returns any text withheld at stream end with no further match
// possible.
func (f *StopFilter) Flush() string {
	if f.matched {
		return ""
	}
	out := f.pending.String()
	f.pending.Reset()
	return out
}

// ApplyStopReason overrides d's stop reason when the filter has matched,
// per spec.md's non-emission-after-match invariant.
func (f *StopFilter) ApplyStopReason(d *translator.Delta) {
	if f.matched {
		d.StopReason = translator.StopSequenceHit
	}
}
