package channels

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// pendingTTL is how long a pending entry survives without a response
// before pruning discards it.
const pendingTTL = 3 * 24 * time.Hour

// PendingMessage remembers where a response for an in-flight message
// should be delivered.
type PendingMessage struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId,omitempty"`
	IsDM      bool   `json:"isDm,omitempty"`
	Preview   string `json:"preview,omitempty"` // original text, titles the thread
	Timestamp int64  `json:"timestamp"`         // unix ms
}

// PendingStore is a persisted messageID → PendingMessage table. Adapters
// survive restarts mid-conversation because the table lives on disk.
type PendingStore struct {
	path string

	mu      sync.Mutex
	entries map[string]PendingMessage
}

// NewPendingStore loads the table from path; a missing or corrupt file
// starts empty.
func NewPendingStore(path string) *PendingStore {
	s := &PendingStore{path: path, entries: map[string]PendingMessage{}}
	if data, err := os.ReadFile(path); err == nil {
		var entries map[string]PendingMessage
		if json.Unmarshal(data, &entries) == nil && entries != nil {
			s.entries = entries
		}
	}
	return s
}

// Put records (or replaces) the delivery target for a message.
func (s *PendingStore) Put(messageID string, p PendingMessage) {
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[messageID] = p
	s.save()
}

// Get looks up the delivery target for a message.
func (s *PendingStore) Get(messageID string) (PendingMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[messageID]
	return p, ok
}

// Delete removes a delivered message's entry.
func (s *PendingStore) Delete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[messageID]; !ok {
		return
	}
	delete(s.entries, messageID)
	s.save()
}

// Prune drops entries older than the TTL and reports how many went.
func (s *PendingStore) Prune() int {
	cutoff := time.Now().Add(-pendingTTL).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, p := range s.entries {
		if p.Timestamp < cutoff {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.save()
	}
	return removed
}

// save writes the table. Callers hold the lock. Best-effort: the table is
// a convenience cache, losing it means at worst an orphaned response file.
func (s *PendingStore) save() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return
	}
	tmp := s.path + ".tmp"
	if os.WriteFile(tmp, data, 0o644) != nil {
		return
	}
	_ = os.Rename(tmp, s.path)
}
