package relay

import (
	"regexp"
	"strings"
)

var (
	citationRegex = regexp.MustCompile(`【.*?】`)
	boldRegex     = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// FormatForDelivery rewrites assistant output for WhatsApp: citation markers like 【4:0†source】 are
// removed and markdown bold (**x**) becomes WhatsApp bold (*x*). Rewrites are repeated until the text
// stops changing so that formatting already formatted text is a no-op.
func FormatForDelivery(text string) string {
	for {
		formatted := formatOnce(text)
		if formatted == text {
			return formatted
		}
		text = formatted
	}
}

func formatOnce(text string) string {
	text = citationRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	return boldRegex.ReplaceAllString(text, "*$1*")
}
