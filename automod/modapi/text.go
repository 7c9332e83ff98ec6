package modapi

import (
	"github.com/rivo/uniseg"
)

// platform limits on moderator-supplied text
const (
	MaxBanReasonLength = 100
	MaxModNoteLength   = 250
)

// Shortens s to at most max grapheme clusters, so emoji and combining sequences are never split.
func TruncateGraphemes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	out := ""
	count := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		if count == max {
			return out
		}
		out += gr.Str()
		count++
	}
	return out
}
