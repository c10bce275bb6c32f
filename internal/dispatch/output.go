package dispatch

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxResponseChars is the hard cap on a final response's text.
const MaxResponseChars = 4000

// truncationMarker ends any response that hit the cap.
const truncationMarker = "\n\n[Response truncated...]"

// sendFileTag marks a file the agent wants delivered with the response.
var sendFileTag = regexp.MustCompile(`\[send_file:\s*([^\]]+)\]`)

// ExtractFiles collects the existing paths named by [send_file: …] tags.
// Nonexistent paths are dropped silently; agents hallucinate filenames.
func ExtractFiles(text string) []string {
	var files []string
	seen := map[string]bool{}
	for _, m := range sendFileTag.FindAllStringSubmatch(text, -1) {
		path := strings.TrimSpace(m[1])
		if path == "" || seen[path] {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	return files
}

// StripFileTags removes every [send_file: …] tag from the text.
func StripFileTags(text string) string {
	return sendFileTag.ReplaceAllString(text, "")
}

// FinalizeText trims, strips file tags, and truncates at MaxResponseChars
// with the truncation marker.
func FinalizeText(text string) string {
	text = strings.TrimSpace(StripFileTags(text))
	if len(text) <= MaxResponseChars {
		return text
	}
	cut := MaxResponseChars - len(truncationMarker)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}
