// Package channels holds the pieces shared by channel adapters: the
// adapter contract, message splitting for platform size limits, and the
// small JSON-backed registries adapters persist across restarts.
package channels

import (
	"context"
	"strings"
)

// Adapter is the contract a channel implementation satisfies: connect to
// the platform, translate inbound messages into queue files, and deliver
// outgoing responses, streaming partials, and approval prompts until ctx
// is done.
type Adapter interface {
	Run(ctx context.Context) error
}

// DefaultChunkSize is the Discord message limit.
const DefaultChunkSize = 2000

// SplitMessage breaks content into chunks of at most max bytes. Breaks
// prefer the last newline in the window, then the last space, and only
// then cut mid-word. Concatenating the chunks reproduces the input.
func SplitMessage(content string, max int) []string {
	if max <= 0 {
		max = DefaultChunkSize
	}
	if content == "" {
		return nil
	}

	var chunks []string
	for len(content) > max {
		cut := max
		window := content[:max]
		if idx := strings.LastIndexByte(window, '\n'); idx > max/2 {
			cut = idx + 1
		} else if idx := strings.LastIndexByte(window, ' '); idx > max/2 {
			cut = idx + 1
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// Truncate shortens s for log previews.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
