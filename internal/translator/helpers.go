package translator

import (
	"strconv"
	"strings"
)

// joinText concatenates every text part's content, the common case for
// providers whose response envelope carries one flat content string.
func joinText(parts []ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// toolUseParts filters a part list down to tool_use entries, preserving
// order.
func toolUseParts(parts []ContentPart) []ContentPart {
	var out []ContentPart
	for _, p := range parts {
		if p.Kind == PartToolUse {
			out = append(out, p)
		}
	}
	return out
}

func itoa(i int) string { return strconv.Itoa(i) }
