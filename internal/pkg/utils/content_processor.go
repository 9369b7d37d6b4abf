package utils

import (
	"strings"
	"unicode"
)

// Excerpt shortens free-form text (reviews, update posts) for list views.
// Whitespace runs collapse to single spaces and the cut happens on a word
// boundary where possible, with an ellipsis appended.
func Excerpt(content string, max int) string {
	if max <= 0 {
		return ""
	}

	collapsed := strings.Join(strings.Fields(content), " ")
	if len(collapsed) <= max {
		return collapsed
	}

	cut := collapsed[:max]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > max/2 {
		cut = cut[:idx]
	}

	return strings.TrimRightFunc(cut, unicode.IsPunct) + "…"
}
