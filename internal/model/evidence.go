package model

import "strings"

const previewRunes = 150

// Evidence is a titled, URL-addressed snippet produced by the retriever.
type Evidence struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Preview returns the snippet cut to a short, display-sized prefix.
func (e Evidence) Preview() string {
	runes := []rune(strings.TrimSpace(e.Snippet))
	if len(runes) <= previewRunes {
		return string(runes)
	}
	return string(runes[:previewRunes]) + "..."
}
