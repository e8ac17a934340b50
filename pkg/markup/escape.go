package markup

import "strings"

// metacharacters is the fixed set of bytes replaced by Escape.
const metacharacters = `"&'<>`

// Escape returns s with every occurrence of ", ', &, < and > replaced by its
// named entity. A string without any of them is returned unchanged.
func Escape(s string) string {
	if !strings.ContainsAny(s, metacharacters) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	EscapeTo(&b, s)
	return b.String()
}

// EscapeTo appends the escaped form of s to b. Scanning starts at the first
// metacharacter and moves forward once; unmatched runs are copied verbatim.
func EscapeTo(b *strings.Builder, s string) {
	first := strings.IndexAny(s, metacharacters)
	if first == -1 {
		b.WriteString(s)
		return
	}

	last := 0
	for i := first; i < len(s); i++ {
		var entity string
		switch s[i] {
		case '"':
			entity = "&quot;"
		case '\'':
			entity = "&#39;"
		case '&':
			entity = "&amp;"
		case '<':
			entity = "&lt;"
		case '>':
			entity = "&gt;"
		default:
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(entity)
		last = i + 1
	}
	b.WriteString(s[last:])
}
