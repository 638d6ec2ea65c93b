package pipeline

import (
	"regexp"
	"strings"
)

var (
	fencedCode   = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`([^`]*)`")
	markdownImg  = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	citation     = regexp.MustCompile(`\[\d+\]`)
	bareURL      = regexp.MustCompile(`https?://\S+`)
	markupChars  = regexp.MustCompile(`[*_#>~|]+`)
)

// SpeechText strips markup and link syntax so the text reads naturally and
// truncates it to maxChars runes.
func SpeechText(text string, maxChars int) string {
	text = fencedCode.ReplaceAllString(text, " ")
	text = markdownImg.ReplaceAllString(text, "$1")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = citation.ReplaceAllString(text, "")
	text = bareURL.ReplaceAllString(text, "")
	text = markupChars.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")

	if maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			text = strings.TrimSpace(string(runes[:maxChars]))
		}
	}
	return text
}
