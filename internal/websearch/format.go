package websearch

import (
	"fmt"
	"strings"
)

const sourcesHeader = "Źródła wyszukiwania (skrót):"

// GroundingInstruction is appended to the system prompt when a sources block
// is part of the turn.
const GroundingInstruction = "If a 'Źródła wyszukiwania' block is present, ground the answer in it and cite briefly."

// FormatSources renders results as a numbered sources block.
func FormatSources(results []Result) string {
	if len(results) == 0 {
		return "Brak wyników wyszukiwania."
	}
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, sourcesHeader)
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s — %s\n   %s", i+1, r.Title, r.URL, r.Snippet))
	}
	return strings.Join(lines, "\n")
}

// AttachPreview extends the snippet of the top result with a page preview.
func AttachPreview(results []Result, preview string) []Result {
	if len(results) == 0 || strings.TrimSpace(preview) == "" {
		return results
	}
	out := append([]Result(nil), results...)
	out[0].Snippet += "\n[preview]\n" + preview
	return out
}
