package translator

// Sanitize normalizes a canonical message list before it is handed to a
// transactor: empty assistant turns are dropped, consecutive same-role
// turns are coalesced into one (several upstreams reject back-to-back
// same-role turns), and a strict user/assistant alternation is restored
// by inserting an empty placeholder turn where a gap would otherwise
// violate it. Adapted from the teacher's sanitizer.go text-scrubbing
// pass, generalized from "strip configured patterns" to the canonical
// structural rules spec.md's translators need across all three formats.
func Sanitize(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleAssistant && isEmpty(m) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role && m.Role != RoleTool {
			out[n-1].Parts = append(out[n-1].Parts, m.Parts...)
			continue
		}
		out = append(out, m)
	}
	return insertAlternationPlaceholders(out)
}

func isEmpty(m Message) bool {
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// insertAlternationPlaceholders ensures user/assistant turns strictly
// alternate (Claude and Gemini both require this); a tool-result turn is
// treated as continuing the prior assistant turn's conversational slot.
func insertAlternationPlaceholders(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	var lastConversational Role
	for _, m := range messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			if lastConversational == m.Role {
				placeholder := Role(RoleUser)
				if m.Role == RoleUser {
					placeholder = RoleAssistant
				}
				out = append(out, Message{
					Role:  placeholder,
					Parts: []ContentPart{{Kind: PartText, Text: ""}},
				})
			}
			lastConversational = m.Role
		}
		out = append(out, m)
	}
	return out
}
