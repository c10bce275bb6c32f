package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// OutgoingItem is one file found by an adapter polling outgoing/.
// Exactly one of Response and Partial is set.
type OutgoingItem struct {
	Path     string
	Response *Response
	Partial  *StreamingPartial
}

// ListOutgoing returns the outgoing files addressed to one channel,
// partials and finals alike, oldest first. Unreadable or corrupt files are
// skipped; a final that raced a delete simply doesn't appear.
func (q *Queue) ListOutgoing(channel string) ([]OutgoingItem, error) {
	prefix := channel + "_"
	var items []OutgoingItem
	// Partials first so a message's live text is applied before a final
	// arriving in the same tick supersedes it.
	for _, pass := range []string{".streaming", ".json"} {
		names, err := q.listByModTime(q.outgoing, pass)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			path := filepath.Join(q.outgoing, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			item := OutgoingItem{Path: path}
			if pass == ".streaming" {
				var p StreamingPartial
				if json.Unmarshal(data, &p) != nil || p.Status != "streaming" {
					continue
				}
				item.Partial = &p
			} else {
				var r Response
				if json.Unmarshal(data, &r) != nil {
					continue
				}
				item.Response = &r
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// Remove deletes a delivered outgoing file. Missing files are fine.
func (q *Queue) Remove(path string) {
	_ = os.Remove(path)
}
