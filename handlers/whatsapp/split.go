package whatsapp

import (
	"strings"
	"unicode/utf8"
)

// SplitText splits the passed in text into parts of at most max characters, breaking on whitespace
// where there is some near the end of a part
func SplitText(text string, max int) []string {
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	parts := make([]string, 0, 2)
	part := strings.Builder{}
	partLen := 0

	flush := func() {
		if p := strings.TrimSpace(part.String()); p != "" {
			parts = append(parts, p)
		}
		part.Reset()
		partLen = 0
	}

	for _, r := range text {
		part.WriteRune(r)
		partLen++

		if partLen == max || (partLen > max-6 && (r == ' ' || r == '\n')) {
			flush()
		}
	}
	flush()

	return parts
}
